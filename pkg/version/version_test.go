package version

import "testing"

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version == "" || info.GitCommit == "" || info.BuildDate == "" {
		t.Fatalf("expected non-empty version info")
	}
}

func TestGetShortCommit(t *testing.T) {
	orig := GitCommit
	t.Cleanup(func() { GitCommit = orig })

	GitCommit = "abcdef123456"
	if GetShortCommit() != "abcdef1" {
		t.Fatalf("expected short commit")
	}
	GitCommit = "abc"
	if GetShortCommit() != "abc" {
		t.Fatalf("expected short input to pass through")
	}
}

func TestString(t *testing.T) {
	origV, origC, origD := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = origV, origC, origD })

	Version, GitCommit, BuildDate = "v1.2.3", "0123456789", "2026-01-01"
	if got := String(); got != "v1.2.3 (0123456, built 2026-01-01)" {
		t.Fatalf("unexpected version string %q", got)
	}
}
