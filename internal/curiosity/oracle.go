// Package curiosity decides whether discovered content merits a research
// query, and what to ask.
package curiosity

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/internal/persona"
	"github.com/MarkAustinGrow/marvins-memory/pkg/llm"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

//go:embed guidelines.md
var defaultGuidelines string

const evaluateTimeout = 45 * time.Second

const systemPrompt = `You are the curiosity of an AI character deciding which posts deserve research.
Apply the character profile and the guidelines below.
Respond with ONLY a JSON object:
{"is_worth_researching": <bool>, "relevance_explanation": <string>, "research_question": <string>}
Leave research_question empty when the post is not worth researching.`

// Evaluation is the oracle's verdict on one piece of content.
type Evaluation struct {
	IsWorthResearching   bool   `json:"is_worth_researching"`
	RelevanceExplanation string `json:"relevance_explanation"`
	ResearchQuestion     string `json:"research_question"`
}

type Config struct {
	LLM      llm.Provider
	Profiles persona.Profiles
	// GuidelinesFile overrides the embedded guidelines when readable.
	GuidelinesFile string
	Logger         logging.Logger
}

type Oracle struct {
	llm        llm.Provider
	profiles   persona.Profiles
	guidelines string
	logger     logging.Logger
}

func New(cfg Config) *Oracle {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.Profiles == nil {
		cfg.Profiles = persona.StaticProfiles(persona.DefaultProfile())
	}
	return &Oracle{
		llm:        cfg.LLM,
		profiles:   cfg.Profiles,
		guidelines: loadGuidelines(cfg.GuidelinesFile, cfg.Logger),
		logger:     cfg.Logger,
	}
}

func loadGuidelines(path string, logger logging.Logger) string {
	if path == "" {
		return defaultGuidelines
	}
	raw, err := os.ReadFile(path)
	if err == nil && strings.TrimSpace(string(raw)) != "" {
		return string(raw)
	}
	if err == nil {
		err = errors.New("file is empty")
	}
	logger.WithError(err).WithField("path", path).Warn("Curiosity guidelines unavailable, using embedded defaults")
	return defaultGuidelines
}

// Guidelines returns the guideline text in effect.
func (o *Oracle) Guidelines() string {
	return o.guidelines
}

// Evaluate never fails. Any error from the model is folded into a negative
// verdict whose explanation carries the error text.
func (o *Oracle) Evaluate(ctx context.Context, text string) Evaluation {
	eval, err := o.evaluate(ctx, text)
	if err != nil {
		evaluations.WithLabelValues("error").Inc()
		o.logger.WithError(err).Warn("Curiosity evaluation failed, skipping research")
		return Evaluation{
			IsWorthResearching:   false,
			RelevanceExplanation: "Error evaluating content: " + err.Error(),
		}
	}
	if eval.IsWorthResearching {
		evaluations.WithLabelValues("research").Inc()
	} else {
		evaluations.WithLabelValues("skip").Inc()
	}
	return eval
}

func (o *Oracle) evaluate(ctx context.Context, text string) (eval Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("curiosity oracle panic: %v", r)
		}
	}()
	if o.llm == nil {
		return Evaluation{}, errors.New("LLM provider not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Evaluation{}, errors.New("empty content")
	}

	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()

	profile := o.profiles.Current()
	temperature := 0.3
	req := llm.Request{
		System:      systemPrompt + "\n\n" + profile.Describe() + "\nGuidelines:\n" + o.guidelines,
		Messages:    []llm.Message{{Role: "user", Content: "Post:\n" + text}},
		Temperature: &temperature,
		MaxTokens:   400,
	}
	if err := llm.CompleteJSON(ctx, o.llm, req, &eval); err != nil {
		return Evaluation{}, err
	}
	eval.ResearchQuestion = strings.TrimSpace(eval.ResearchQuestion)
	if !eval.IsWorthResearching {
		eval.ResearchQuestion = ""
	}
	return eval, nil
}
