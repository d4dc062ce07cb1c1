package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"canlidoviz/internal/infrastructure/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":  zerolog.DebugLevel,
		" WARN ": zerolog.WarnLevel,
		"error":  zerolog.ErrorLevel,
		"info":   zerolog.InfoLevel,
		"":       zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigureWritesFile(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cfg, err := config.Parse("[log]\nlevel = \"debug\"\nfile = \"" + filepath.ToSlash(path) + "\"")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	closer, err := Configure(cfg)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	log.Debug().Str("k", "v").Msg("hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"message":"hello file"`) {
		t.Errorf("unexpected log file contents %q", b)
	}
}
