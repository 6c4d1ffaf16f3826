package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/internal/embedding"
	"github.com/MarkAustinGrow/marvins-memory/internal/vectorstore"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

const (
	aspectErrorFallback = "error_fallback"
	aspectBypassed      = "bypassed"
	defaultPersona      = "default"
)

type GateConfig struct {
	Store        vectorstore.Store
	Embedder     Embedder
	Scorer       AlignmentScorer
	Persona      PersonaVersioner
	MinAlignment float64
	Logger       logging.Logger
}

// Gate scores candidate content and persists only what clears the
// alignment threshold.
type Gate struct {
	store        vectorstore.Store
	embedder     Embedder
	scorer       AlignmentScorer
	persona      PersonaVersioner
	minAlignment float64
	logger       logging.Logger
	now          func() time.Time
}

func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Store == nil {
		return nil, errors.New("memory: vector store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("memory: embedder is required")
	}
	if cfg.Scorer == nil {
		return nil, errors.New("memory: alignment scorer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Gate{
		store:        cfg.Store,
		embedder:     cfg.Embedder,
		scorer:       cfg.Scorer,
		persona:      cfg.Persona,
		minAlignment: cfg.MinAlignment,
		logger:       cfg.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// MinAlignment is the configured acceptance threshold.
func (g *Gate) MinAlignment() float64 {
	return g.minAlignment
}

// Store scores item and writes it when accepted. A rejection is not an
// error: it returns stored=false and writes nothing. With bypass set the
// scorer is skipped and the record is flagged alignment_bypassed.
func (g *Gate) Store(ctx context.Context, item Item, bypass bool) (id string, stored bool, err error) {
	kind, err := ParseKind(item.Kind)
	if err != nil {
		return "", false, err
	}
	content := strings.TrimSpace(item.Content)
	if content == "" {
		return "", false, ErrEmptyContent
	}

	var alignment Alignment
	if bypass {
		alignment = Alignment{Score: 0, MatchedAspects: []string{aspectBypassed}}
	} else {
		alignment = g.score(ctx, content, kind)
		if alignment.Score < g.minAlignment {
			memoriesRejected.WithLabelValues(string(kind)).Inc()
			g.logger.WithFields(logging.Fields{
				"type":            kind,
				"source":          item.Source,
				"alignment_score": alignment.Score,
				"threshold":       g.minAlignment,
			}).Info("Memory rejected below alignment threshold")
			return "", false, nil
		}
	}

	payload := vectorstore.Payload{
		Content:           content,
		Type:              string(kind),
		Source:            item.Source,
		Timestamp:         g.now(),
		Tags:              cleanTags(item.Tags),
		AlignmentScore:    alignment.Score,
		MatchedAspects:    nonNilStrings(alignment.MatchedAspects),
		PersonaVersion:    g.personaVersion(),
		AlignmentBypassed: bypass,
	}
	vector := g.embedder.Embed(ctx, content)
	if embedding.IsZero(vector) {
		memoriesUnembedded.WithLabelValues(string(kind)).Inc()
		g.logger.WithFields(logging.Fields{
			"type":   kind,
			"source": item.Source,
		}).Warn("Storing memory without a usable embedding")
	}
	id, err = g.store.Upsert(ctx, vector, payload)
	if err != nil {
		return "", false, fmt.Errorf("store memory: %w", err)
	}

	memoriesStored.WithLabelValues(string(kind), boolLabel(bypass)).Inc()
	g.logger.WithFields(logging.Fields{
		"memory_id":          id,
		"type":               kind,
		"source":             item.Source,
		"alignment_score":    alignment.Score,
		"alignment_bypassed": bypass,
	}).Info("Memory stored")
	return id, true, nil
}

// score never fails: scorer errors and unusable scores become a record
// sitting exactly at the threshold.
func (g *Gate) score(ctx context.Context, content string, kind Kind) Alignment {
	alignment, err := g.scorer.Score(ctx, content)
	if err == nil && (math.IsNaN(alignment.Score) || math.IsInf(alignment.Score, 0)) {
		err = fmt.Errorf("scorer returned non-finite score %v", alignment.Score)
	}
	if err != nil {
		alignmentFallbacks.Inc()
		g.logger.WithError(err).WithField("type", kind).Warn("Alignment scoring failed, using threshold fallback")
		return Alignment{
			Score:          g.minAlignment,
			MatchedAspects: []string{aspectErrorFallback},
			Explanation:    "alignment check failed: " + err.Error(),
		}
	}
	alignment.Score = math.Max(0, math.Min(1, alignment.Score))
	return alignment
}

func (g *Gate) personaVersion() string {
	if g.persona == nil {
		return defaultPersona
	}
	if v := g.persona.Version(); v != "" {
		return v
	}
	return defaultPersona
}

// cleanTags trims, drops empties and dedupes while keeping order.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
