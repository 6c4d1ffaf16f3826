package persona

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrCharacterNotFound is returned when the configured character is absent.
var ErrCharacterNotFound = errors.New("character not found")

// Source loads the current character revision.
type Source interface {
	Load(ctx context.Context) (Profile, error)
}

// PostgresSource reads one row of the character_files table. content is a
// JSON document holding name, topics, style and version.
type PostgresSource struct {
	db *sql.DB
	id string
}

func NewPostgresSource(db *sql.DB, id string) *PostgresSource {
	return &PostgresSource{db: db, id: id}
}

func (s *PostgresSource) Load(ctx context.Context) (Profile, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM character_files WHERE id = $1`, s.id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fmt.Errorf("%w: %s", ErrCharacterNotFound, s.id)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load character %s: %w", s.id, err)
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return Profile{}, fmt.Errorf("decode character %s: %w", s.id, err)
	}
	return profileFromContent(s.id, content)
}

// FileSource reads a YAML (or JSON) character document from disk.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(_ context.Context) (Profile, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, fmt.Errorf("%w: %s", ErrCharacterNotFound, s.path)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read character file: %w", err)
	}
	var content map[string]any
	if err := yaml.Unmarshal(raw, &content); err != nil {
		return Profile{}, fmt.Errorf("decode character file %s: %w", s.path, err)
	}
	id, _ := content["id"].(string)
	if id == "" {
		id = s.path
	}
	return profileFromContent(id, content)
}

// StaticSource always returns the same profile.
type StaticSource struct {
	Profile Profile
}

func (s StaticSource) Load(context.Context) (Profile, error) {
	return s.Profile, nil
}

type staticProfiles struct{ p Profile }

func (s staticProfiles) Current() Profile { return s.p.clone() }

// StaticProfiles serves a fixed profile to scorers and oracles.
func StaticProfiles(p Profile) Profiles {
	return staticProfiles{p: p}
}
