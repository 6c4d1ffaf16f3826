package research

import (
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

const climateAnswer = `• 5 studies show climate change trends are accelerating, with carbon emission data confirming the pattern.

• Renewable energy adoption is reshaping the global economy as investment shifts toward sustainable industry.

• Scientists are publishing new research on ecosystem biodiversity and the natural recovery of wildlife habitats.`

func TestExtractBulletedAnswer(t *testing.T) {
	insights := Extract(climateAnswer, "climate trends", ExtractOptions{MaxInsights: 5, MinConfidence: 0.7, Now: fixedNow})
	if len(insights) != 3 {
		t.Fatalf("expected 3 insights, got %d", len(insights))
	}

	if insights[0].Confidence < 0.95 || insights[0].Confidence > 0.99 {
		t.Fatalf("first confidence should start near 0.95, got %v", insights[0].Confidence)
	}
	for i := 1; i < len(insights); i++ {
		if insights[i].Confidence > insights[i-1].Confidence {
			t.Fatalf("confidence not descending at %d: %v > %v", i, insights[i].Confidence, insights[i-1].Confidence)
		}
	}

	var all []string
	for _, in := range insights {
		all = append(all, in.Tags...)
		if in.Query != "climate trends" || in.Source != "perplexity" || !in.Timestamp.Equal(fixedNow()) {
			t.Fatalf("unexpected insight metadata %+v", in)
		}
	}
	for _, want := range []string{CategoryEnvironment, CategoryScience} {
		if !slices.Contains(all, want) {
			t.Fatalf("expected tag %q among %v", want, all)
		}
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	opts := ExtractOptions{MaxInsights: 5, Now: fixedNow}
	a := Extract(climateAnswer, "q", opts)
	b := Extract(climateAnswer, "q", opts)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("extraction is not deterministic")
	}
}

func TestExtractGroupsFollowingParagraphs(t *testing.T) {
	answer := strings.Join([]string{
		"1. The first point introduces a long running debate about art and code.",
		"It continues here with supporting detail that belongs to point one.",
		"2. The second point is separate and long enough to be kept as an insight.",
	}, "\n\n")
	insights := Extract(answer, "q", ExtractOptions{MaxInsights: 5})
	if len(insights) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(insights))
	}
	if !strings.HasSuffix(insights[0].Content, "belongs to point one.") || !strings.Contains(insights[0].Content, "code. It continues") {
		t.Fatalf("paragraph not joined into its section: %q", insights[0].Content)
	}
}

func TestExtractWithoutMarkersUsesParagraphs(t *testing.T) {
	answer := "This first paragraph has no bullet marker but is comfortably long enough.\n\n" +
		"And this second paragraph is likewise unmarked and over fifty characters."
	insights := Extract(answer, "q", ExtractOptions{MaxInsights: 5})
	if len(insights) != 2 {
		t.Fatalf("expected each paragraph as a section, got %d", len(insights))
	}
}

func TestExtractTruncatesThenDropsShortSections(t *testing.T) {
	long := "- This section is definitely longer than the fifty character minimum."
	answer := strings.Join([]string{"- too short", long, long, long}, "\n\n")

	insights := Extract(answer, "q", ExtractOptions{MaxInsights: 2})
	if len(insights) != 1 {
		t.Fatalf("expected 1 insight from the first 2 sections, got %d", len(insights))
	}
	// Position is counted before short sections are dropped.
	if want := Confidence(long, 1); insights[0].Confidence != want {
		t.Fatalf("expected position-1 confidence %v, got %v", want, insights[0].Confidence)
	}
}

func TestExtractMinConfidence(t *testing.T) {
	var parts []string
	for i := 0; i < 10; i++ {
		parts = append(parts, "- A plain section without any numbers that is long enough to keep around.")
	}
	insights := Extract(strings.Join(parts, "\n\n"), "q", ExtractOptions{MaxInsights: 10, MinConfidence: 0.8})
	for _, in := range insights {
		if in.Confidence < 0.8 {
			t.Fatalf("insight below threshold kept: %v", in.Confidence)
		}
	}
	if len(insights) == 0 || len(insights) == 10 {
		t.Fatalf("expected the threshold to drop some later sections, got %d", len(insights))
	}
}

func TestExtractDegenerateInput(t *testing.T) {
	for _, answer := range []string{"", "   \n\n  ", "short"} {
		if got := Extract(answer, "q", ExtractOptions{MaxInsights: 5}); len(got) != 0 {
			t.Fatalf("expected no insights for %q, got %d", answer, len(got))
		}
	}
	if got := Extract(climateAnswer, "q", ExtractOptions{}); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice without MaxInsights, got %v", got)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name    string
		section string
		pos     int
		want    float64
	}{
		{"length only", strings.Repeat("a", 20), 0, 0.97},
		{"digits capped", strings.Repeat("abc1", 5), 2, 0.89 + 0.02 + 0.05},
		{"capped", strings.Repeat("1", 1000), 0, 0.99},
		{"later position", strings.Repeat("a", 50), 3, 0.95 - 0.09 + 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.section, tt.pos)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("Confidence = %v, want %v", got, tt.want)
			}
		})
	}
	for i := 0; i < 20; i++ {
		if c := Confidence(strings.Repeat("9", 2000), i); c > 0.99 {
			t.Fatalf("confidence above cap at %d: %v", i, c)
		}
	}
}
