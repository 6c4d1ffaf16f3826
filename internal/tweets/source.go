package tweets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// ErrCandidateNotFound is returned when an archive write matches no row.
var ErrCandidateNotFound = errors.New("tweet candidate not found")

// Candidate is one cached tweet awaiting processing.
type Candidate struct {
	ID              int64           `json:"id"`
	TweetID         string          `json:"tweet_id"`
	Text            string          `json:"tweet_text"`
	URL             string          `json:"tweet_url,omitempty"`
	EngagementScore float64         `json:"engagement_score"`
	PublicMetrics   json.RawMessage `json:"public_metrics,omitempty"`
	VibeTags        []string        `json:"vibe_tags,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Source yields unprocessed candidates and records that a candidate has
// been visited.
type Source interface {
	Candidates(ctx context.Context, limit int) ([]Candidate, error)
	MarkProcessed(ctx context.Context, id int64, memoryIDs []string) error
}

// SQLSource reads the tweet cache table maintained by the collector.
type SQLSource struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

func NewSQLSource(db *sql.DB, table string) (*SQLSource, error) {
	if db == nil {
		return nil, errors.New("tweets: database is required")
	}
	if table == "" {
		table = "tweets_cache"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("tweets: invalid table name %q", table)
	}
	return &SQLSource{db: db, table: table, now: time.Now}, nil
}

// Candidates returns the newest unprocessed rows first.
func (s *SQLSource) Candidates(ctx context.Context, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`
		SELECT id, tweet_id, tweet_text, COALESCE(tweet_url, ''), COALESCE(engagement_score, 0),
		       COALESCE(public_metrics::text, ''), COALESCE(vibe_tags, ''), created_at
		FROM %s
		WHERE processed_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query tweet candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Candidate
	for rows.Next() {
		var (
			c       Candidate
			metrics string
			vibes   string
		)
		if err := rows.Scan(&c.ID, &c.TweetID, &c.Text, &c.URL, &c.EngagementScore, &metrics, &vibes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tweet candidate: %w", err)
		}
		if metrics != "" {
			c.PublicMetrics = json.RawMessage(metrics)
		}
		c.VibeTags = splitVibeTags(vibes)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tweet candidates: %w", err)
	}
	return out, nil
}

// MarkProcessed archives a candidate with the memories derived from it.
func (s *SQLSource) MarkProcessed(ctx context.Context, id int64, memoryIDs []string) error {
	if memoryIDs == nil {
		memoryIDs = []string{}
	}
	ids, err := json.Marshal(memoryIDs)
	if err != nil {
		return fmt.Errorf("encode memory ids: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET processed_at = $1, memory_ids = $2 WHERE id = $3`, s.table)
	res, err := s.db.ExecContext(ctx, query, s.now().UTC(), string(ids), id)
	if err != nil {
		return fmt.Errorf("archive tweet %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}
	return nil
}

func splitVibeTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
