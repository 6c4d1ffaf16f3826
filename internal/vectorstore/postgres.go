package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

const selectColumns = `id, content, type, source, created_at, tags, alignment_score,
			matched_aspects, persona_version, alignment_bypassed`

type PostgresConfig struct {
	DB         *sql.DB
	Table      string
	Dimensions int
	Logger     logging.Logger
}

// PostgresStore keeps memories in a pgvector table and searches by cosine
// distance.
type PostgresStore struct {
	db         *sql.DB
	table      string
	dimensions int
	logger     logging.Logger
}

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DB == nil {
		return nil, errors.New("vectorstore: database is required")
	}
	if cfg.Table == "" {
		cfg.Table = "marvin.memories"
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("vectorstore: invalid table name %q", cfg.Table)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vectorstore: invalid embedding dimensions: %d", cfg.Dimensions)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &PostgresStore{db: cfg.DB, table: cfg.Table, dimensions: cfg.Dimensions, logger: cfg.Logger}, nil
}

// EnsureSchema creates the extension, schema, table and HNSW index when
// missing, then checks the column dimension. A mismatch is an error:
// stored memories are not re-derivable, so they are never truncated here.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{`CREATE EXTENSION IF NOT EXISTS vector`}
	if schema, _, ok := strings.Cut(s.table, "."); ok {
		stmts = append(stmts, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema))
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			alignment_score DOUBLE PRECISION NOT NULL,
			matched_aspects TEXT[] NOT NULL DEFAULT '{}',
			persona_version TEXT NOT NULL DEFAULT '',
			alignment_bypassed BOOLEAN NOT NULL DEFAULT false,
			embedding vector(%d) NOT NULL
		)`, s.table, s.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.indexPrefix(), s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_type_idx ON %s (type)`, s.indexPrefix(), s.table),
	)
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure memory schema: %w", err)
		}
	}

	// pgvector stores the dimension count in atttypmod for vector(N) columns.
	var current int
	err := s.db.QueryRowContext(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = $1::regclass
		  AND attname = 'embedding'
	`, s.table).Scan(&current)
	if err != nil {
		return fmt.Errorf("query current embedding dimensions: %w", err)
	}
	if current != s.dimensions {
		return fmt.Errorf("%w: column %s.embedding is vector(%d), configured %d", ErrDimensionMismatch, s.table, current, s.dimensions)
	}
	return nil
}

func (s *PostgresStore) indexPrefix() string {
	return strings.ReplaceAll(s.table[strings.Index(s.table, ".")+1:], ".", "_")
}

func (s *PostgresStore) Upsert(ctx context.Context, vector []float32, payload Payload) (string, error) {
	if len(vector) != s.dimensions {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dimensions)
	}
	id := uuid.New().String()
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, content, type, source, created_at, tags, alignment_score,
			matched_aspects, persona_version, alignment_bypassed, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.table),
		id,
		payload.Content,
		payload.Type,
		payload.Source,
		payload.Timestamp,
		pq.Array(nonNil(payload.Tags)),
		payload.AlignmentScore,
		pq.Array(nonNil(payload.MatchedAspects)),
		payload.PersonaVersion,
		payload.AlignmentBypassed,
		pgvector.NewVector(vector),
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]Record, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if limit <= 0 {
		limit = 5
	}
	args := []any{pgvector.NewVector(vector)}
	where, args, err := whereClause(filter, args)
	if err != nil {
		return nil, err
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s,
			1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, selectColumns, s.table, where, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, true)
}

func (s *PostgresStore) Scroll(ctx context.Context, filter *Filter, batchSize int, offset string) ([]Record, string, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	var args []any
	where, args, err := whereClause(filter, args)
	if err != nil {
		return nil, "", err
	}
	if offset != "" {
		args = append(args, offset)
		cursor := fmt.Sprintf("id > $%d", len(args))
		if where == "" {
			where = "WHERE " + cursor
		} else {
			where += " AND " + cursor
		}
	}
	args = append(args, batchSize)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		ORDER BY id
		LIMIT $%d
	`, selectColumns, s.table, where, len(args)), args...)
	if err != nil {
		return nil, "", fmt.Errorf("scroll memories: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, false)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(records) == batchSize {
		next = records[len(records)-1].ID
	}
	return records, next, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, filter *Filter) (int, error) {
	where, args, err := whereClause(filter, nil)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.table, where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// whereClause renders a validated filter as SQL, appending its arguments
// after the ones already bound.
func whereClause(filter *Filter, args []any) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}
	if filter == nil {
		return "", args, nil
	}
	var parts []string
	for _, c := range filter.Must {
		var sqlPart string
		sqlPart, args = conditionSQL(c, args)
		parts = append(parts, sqlPart)
	}
	if len(filter.Should) > 0 {
		var ors []string
		for _, c := range filter.Should {
			var sqlPart string
			sqlPart, args = conditionSQL(c, args)
			ors = append(ors, sqlPart)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	if len(parts) == 0 {
		return "", args, nil
	}
	return "WHERE " + strings.Join(parts, " AND "), args, nil
}

func conditionSQL(c Condition, args []any) (string, []any) {
	column := c.Key
	if c.Range != nil {
		var parts []string
		add := func(op string, v *float64) {
			if v != nil {
				args = append(args, *v)
				parts = append(parts, fmt.Sprintf("%s %s $%d", column, op, len(args)))
			}
		}
		add(">", c.Range.GT)
		add(">=", c.Range.GTE)
		add("<", c.Range.LT)
		add("<=", c.Range.LTE)
		return "(" + strings.Join(parts, " AND ") + ")", args
	}

	switch filterableFields[c.Key] {
	case kindBool:
		args = append(args, c.Match.Value)
		return fmt.Sprintf("%s = $%d", column, len(args)), args
	case kindStringList:
		args = append(args, pq.Array(c.Match.values()))
		return fmt.Sprintf("%s && $%d", column, len(args)), args
	default:
		if c.Match.Any != nil {
			args = append(args, pq.Array(c.Match.Any))
			return fmt.Sprintf("%s = ANY($%d)", column, len(args)), args
		}
		args = append(args, c.Match.Value)
		return fmt.Sprintf("%s = $%d", column, len(args)), args
	}
}

func scanRecords(rows *sql.Rows, withScore bool) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			r       Record
			tags    []string
			aspects []string
		)
		dest := []any{
			&r.ID,
			&r.Payload.Content,
			&r.Payload.Type,
			&r.Payload.Source,
			&r.Payload.Timestamp,
			pq.Array(&tags),
			&r.Payload.AlignmentScore,
			pq.Array(&aspects),
			&r.Payload.PersonaVersion,
			&r.Payload.AlignmentBypassed,
		}
		if withScore {
			dest = append(dest, &r.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		r.Score = finite(r.Score)
		r.Payload.Tags = nonNil(tags)
		r.Payload.MatchedAspects = nonNil(aspects)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return records, nil
}

// finite maps the NaN produced by zero-vector fallbacks to 0.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
