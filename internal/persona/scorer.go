package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
	"github.com/MarkAustinGrow/marvins-memory/pkg/llm"
)

const scoreTimeout = 30 * time.Second

const scorerSystemPrompt = `You judge how well a piece of content fits a character's memory.
Score from 0 to 1: 1 means the content is squarely within the character's interests and voice, 0 means it is unrelated.
List the profile aspects (topics or style traits) the content matches.
Respond with ONLY a JSON object: {"score": <number>, "matched_aspects": [<string>], "explanation": <string>}`

// Profiles supplies the profile to score against.
type Profiles interface {
	Current() Profile
}

// Scorer is an LLM-backed alignment scorer.
type Scorer struct {
	llm      llm.Provider
	profiles Profiles
}

func NewScorer(provider llm.Provider, profiles Profiles) *Scorer {
	return &Scorer{llm: provider, profiles: profiles}
}

func (s *Scorer) Score(ctx context.Context, text string) (memory.Alignment, error) {
	if s.llm == nil {
		return memory.Alignment{}, errors.New("LLM provider not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, scoreTimeout)
	defer cancel()

	profile := s.profiles.Current()
	temperature := 0.0
	var out memory.Alignment
	err := llm.CompleteJSON(ctx, s.llm, llm.Request{
		System: scorerSystemPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("%s\nContent:\n%s", profile.Describe(), strings.TrimSpace(text)),
		}},
		Temperature: &temperature,
		MaxTokens:   300,
	}, &out)
	if err != nil {
		return memory.Alignment{}, fmt.Errorf("score alignment: %w", err)
	}
	if out.Score < 0 || out.Score > 1 {
		return memory.Alignment{}, fmt.Errorf("score alignment: score %v outside [0,1]", out.Score)
	}
	return out, nil
}
