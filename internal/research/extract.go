package research

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	minSectionLength = 50
	insightSource    = "perplexity"
)

// Insight is one scored fragment of a research answer.
type Insight struct {
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	Tags       []string  `json:"tags"`
	Query      string    `json:"query"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

type ExtractOptions struct {
	MaxInsights   int
	MinConfidence float64
	// Now stamps insights; nil means time.Now.
	Now func() time.Time
}

// Extract splits an answer into insights. It never fails: empty or
// unusable input yields an empty slice.
//
// Paragraphs are separated by blank lines. A paragraph starting with a
// bullet ("•", "-", or "1." through "10.") opens a section and following
// plain paragraphs join it. Without any bullet each paragraph is its own
// section. The first MaxInsights sections are scored; sections shorter than
// 50 characters and those under MinConfidence are dropped.
func Extract(answer, query string, opts ExtractOptions) []Insight {
	if opts.MaxInsights <= 0 {
		return []Insight{}
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	sections := splitSections(answer)
	if len(sections) > opts.MaxInsights {
		sections = sections[:opts.MaxInsights]
	}

	insights := []Insight{}
	for i, section := range sections {
		if utf8.RuneCountInString(section) < minSectionLength {
			continue
		}
		confidence := Confidence(section, i)
		if confidence < opts.MinConfidence {
			continue
		}
		insights = append(insights, Insight{
			Content:    section,
			Confidence: confidence,
			Tags:       Tags(section),
			Query:      query,
			Source:     insightSource,
			Timestamp:  now(),
		})
	}
	return insights
}

func splitSections(answer string) []string {
	var paragraphs []string
	for _, p := range strings.Split(answer, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var (
		sections []string
		current  []string
		marked   bool
	)
	for _, p := range paragraphs {
		if startsSection(p) {
			marked = true
			if len(current) > 0 {
				sections = append(sections, strings.Join(current, " "))
			}
			current = []string{p}
			continue
		}
		current = append(current, p)
	}
	if !marked {
		return paragraphs
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, " "))
	}
	return sections
}

func startsSection(p string) bool {
	if strings.HasPrefix(p, "•") || strings.HasPrefix(p, "-") {
		return true
	}
	for i := 1; i <= 10; i++ {
		if strings.HasPrefix(p, strconv.Itoa(i)+".") {
			return true
		}
	}
	return false
}

// Confidence scores a section at position i:
// min(0.95 - 0.03i + min(len/1000, 0.05) + min(10*digits/len, 0.05), 0.99).
func Confidence(section string, i int) float64 {
	length := utf8.RuneCountInString(section)
	if length == 0 {
		return 0
	}
	digits := 0
	for _, r := range section {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	base := 0.95 - 0.03*float64(i)
	lengthFactor := math.Min(float64(length)/1000, 0.05)
	factFactor := math.Min(10*(float64(digits)/float64(length)), 0.05)
	return math.Min(base+lengthFactor+factFactor, 0.99)
}
