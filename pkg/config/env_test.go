package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("FOO", "")
	if got := GetEnv("FOO", "bar"); got != "bar" {
		t.Fatalf("expected bar, got %s", got)
	}
	t.Setenv("FOO", "  baz ")
	if got := GetEnv("FOO", "bar"); got != "baz" {
		t.Fatalf("expected trimmed baz, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("NUM", "")
	if got := GetEnvInt("NUM", 42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("NUM", "100")
	if got := GetEnvInt("NUM", 42); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	t.Setenv("NUM", "notint")
	if got := GetEnvInt("NUM", 7); got != 7 {
		t.Fatalf("expected 7 on parse error, got %d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("THRESHOLD", "0.65")
	if got := GetEnvFloat("THRESHOLD", 0.7); got != 0.65 {
		t.Fatalf("expected 0.65, got %v", got)
	}
	t.Setenv("THRESHOLD", "high")
	if got := GetEnvFloat("THRESHOLD", 0.7); got != 0.7 {
		t.Fatalf("expected default on parse error, got %v", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "")
	if got := GetEnvBool("FLAG", true); got != true {
		t.Fatalf("expected true default, got %v", got)
	}
	t.Setenv("FLAG", "false")
	if got := GetEnvBool("FLAG", true); got != false {
		t.Fatalf("expected false, got %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"6h", 6 * time.Hour},
		{"-5s", time.Minute},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("INTERVAL", tt.value)
		if got := GetEnvDuration("INTERVAL", time.Minute); got != tt.want {
			t.Fatalf("value %q: expected %v, got %v", tt.value, tt.want, got)
		}
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("ITEMS", " a, ,b ,c")
	got := GetEnvList("ITEMS")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list %v", got)
	}
	t.Setenv("ITEMS", "")
	if got := GetEnvList("ITEMS"); got != nil {
		t.Fatalf("expected nil for empty list, got %v", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if GetLogLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level")
	}
	t.Setenv("LOG_LEVEL", "WARN")
	if GetLogLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level")
	}
	t.Setenv("LOG_LEVEL", "error")
	if GetLogLevel() != logrus.ErrorLevel {
		t.Fatalf("expected error level")
	}
	t.Setenv("LOG_LEVEL", "")
	if GetLogLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level by default")
	}
}

func TestLoadEnv_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	LoadEnv(logrus.New())
}

func TestLoadEnv_OverloadsFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MARVIN_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("MARVIN_TEST_VALUE", "from-process")

	LoadEnv(nil)

	if got := os.Getenv("MARVIN_TEST_VALUE"); got != "from-file" {
		t.Fatalf("expected .env to override, got %q", got)
	}
}
