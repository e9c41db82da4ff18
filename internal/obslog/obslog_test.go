package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"chatty":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitFromEnvWritesJSONFile(t *testing.T) {
	t.Cleanup(func() { Set(nil) })
	path := filepath.Join(t.TempDir(), "nested", "sq.log")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	if err := InitFromEnv(); err != nil {
		t.Fatalf("InitFromEnv: %v", err)
	}
	Named("session").Debug("room_create", zap.String("room_id", "r1"))
	_ = L().Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(b)
	for _, want := range []string{`"msg":"room_create"`, `"room_id":"r1"`, `"logger":"session"`, `"level":"debug"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %s", line, want)
		}
	}
}

func TestSetNilRestoresNop(t *testing.T) {
	Set(zap.NewExample())
	Set(nil)
	if L().Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected no-op logger")
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "fancy")
	t.Setenv("LOG_TO_CONSOLE", "")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", "")

	s := settingsFromEnv()
	if s.level != zapcore.InfoLevel || s.format != "legacy" || !s.console {
		t.Fatalf("defaults: %+v", s)
	}
	if s.file != filepath.Join("logs", "secretqueen.log") {
		t.Fatalf("default file: %q", s.file)
	}
}

func TestBuildWithoutSinksIsNop(t *testing.T) {
	l, err := build(settings{level: zapcore.DebugLevel, format: "json"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if l.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("no sinks should give a no-op logger")
	}
}
