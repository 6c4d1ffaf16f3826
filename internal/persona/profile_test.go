package persona

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()
	if p.Name != "Marvin" || p.Version != DefaultVersion || len(p.Topics) == 0 {
		t.Fatalf("unexpected default profile %+v", p)
	}
	desc := p.Describe()
	if !strings.Contains(desc, "Character: Marvin") || !strings.Contains(desc, "- tone:") {
		t.Fatalf("unexpected description:\n%s", desc)
	}
}

func TestHashIsStableAcrossKeyOrder(t *testing.T) {
	a, _ := profileFromContent("c1", map[string]any{"name": "M", "topics": []any{"art"}, "k": 1})
	b, _ := profileFromContent("c1", map[string]any{"k": 1, "topics": []any{"art"}, "name": "M"})
	ha, _ := a.Hash()
	hb, _ := b.Hash()
	if ha != hb {
		t.Fatalf("hash depends on key order: %s != %s", ha, hb)
	}
	c, _ := profileFromContent("c1", map[string]any{"name": "M", "topics": []any{"music"}, "k": 1})
	hc, _ := c.Hash()
	if hc == ha {
		t.Fatal("different content produced the same hash")
	}
}

func TestVersionFallsBackToHash(t *testing.T) {
	p, err := profileFromContent("c1", map[string]any{"name": "M"})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.HasPrefix(p.Version, "sha256:") || len(p.Version) != len("sha256:")+12 {
		t.Fatalf("unexpected version %q", p.Version)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := DefaultProfile()
	c := p.clone()
	c.Style["tone"] = "changed"
	if p.Style["tone"] == "changed" {
		t.Fatal("clone shares style map")
	}
}

func TestPostgresSource(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT content FROM character_files WHERE id = \$1`).WithArgs("marvin-1").
		WillReturnRows(sqlmock.NewRows([]string{"content"}).
			AddRow([]byte(`{"name":"Marvin","topics":["art","code"],"style":{"tone":"dry"},"version":3}`)))
	mock.ExpectQuery(`SELECT content FROM character_files`).WithArgs("marvin-1").
		WillReturnRows(sqlmock.NewRows([]string{"content"}))

	src := NewPostgresSource(db, "marvin-1")
	p, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.ID != "marvin-1" || p.Version != "3" || len(p.Topics) != 2 || p.Style["tone"] != "dry" {
		t.Fatalf("unexpected profile %+v", p)
	}

	if _, err := src.Load(context.Background()); !errors.Is(err, ErrCharacterNotFound) {
		t.Fatalf("expected ErrCharacterNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marvin.yaml")
	doc := `id: marvin
name: Marvin
topics:
  - glitch art
  - cyberpunk
style:
  tone: playful
version: "2026.1"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := NewFileSource(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.ID != "marvin" || p.Version != "2026.1" || p.Topics[1] != "cyberpunk" || p.Style["tone"] != "playful" {
		t.Fatalf("unexpected profile %+v", p)
	}

	if _, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background()); !errors.Is(err, ErrCharacterNotFound) {
		t.Fatalf("expected ErrCharacterNotFound, got %v", err)
	}
}
