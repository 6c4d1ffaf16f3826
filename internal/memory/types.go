// Package memory is the alignment-gated ingestion path and the read side of
// the character memory store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidKind is returned for a memory type outside the closed set.
	ErrInvalidKind = errors.New("invalid memory type")
	// ErrEmptyContent is returned when there is nothing to store.
	ErrEmptyContent = errors.New("memory content is required")
)

type Kind string

const (
	KindTweet    Kind = "tweet"
	KindResearch Kind = "research"
	KindThought  Kind = "thought"
	KindOutput   Kind = "output"
	KindQuote    Kind = "quote"
)

// Kinds lists every accepted memory type.
func Kinds() []Kind {
	return []Kind{KindTweet, KindResearch, KindThought, KindOutput, KindQuote}
}

// ParseKind validates a memory type. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Kinds() {
		if k == valid {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: tweet, research, thought, output, quote)", ErrInvalidKind, s)
}

// Item is a candidate memory before scoring.
type Item struct {
	Content string
	Kind    string
	Source  string
	Tags    []string
}

// Memory is a stored record. Score is the query similarity and is only set
// on search results.
type Memory struct {
	ID                string    `json:"id"`
	Content           string    `json:"content"`
	Kind              Kind      `json:"type"`
	Source            string    `json:"source"`
	Tags              []string  `json:"tags"`
	CreatedAt         time.Time `json:"timestamp"`
	AlignmentScore    float64   `json:"alignment_score"`
	MatchedAspects    []string  `json:"matched_aspects"`
	AlignmentBypassed bool      `json:"alignment_bypassed"`
	PersonaVersion    string    `json:"persona_version"`
	Score             float64   `json:"score,omitempty"`
}

// Alignment is the scorer's judgment of one text against the persona.
type Alignment struct {
	Score          float64  `json:"score"`
	MatchedAspects []string `json:"matched_aspects"`
	Explanation    string   `json:"explanation"`
}

// AlignmentScorer rates text against the current character profile.
type AlignmentScorer interface {
	Score(ctx context.Context, text string) (Alignment, error)
}

// Embedder maps text to a vector and never fails.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// PersonaVersioner reports the version tag of the active profile.
type PersonaVersioner interface {
	Version() string
}
