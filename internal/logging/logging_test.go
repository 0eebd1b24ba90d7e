package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithJobID(WithComponent(NewLoggerTo(&buf, "info"), "export"), "job-1")
	logger.Info("stage changed", "stage", "encoding")
	logger.Debug("hidden")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "export" || entry["job_id"] != "job-1" || entry["stage"] != "encoding" {
		t.Errorf("unexpected attributes: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcd1234efgh5678"); got != "abcd...5678" {
		t.Errorf("SanitizeToken() = %q", got)
	}
}

func TestNewLoggerTo_MasksTokens(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")
	logger.Info("speech client configured", "speech_token", "sk-1234567890abcd", "url", "https://tts.local")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["speech_token"] != "sk-1...abcd" {
		t.Errorf("speech_token = %v, want masked", entry["speech_token"])
	}
	if entry["url"] != "https://tts.local" {
		t.Errorf("url = %v, want unchanged", entry["url"])
	}
}

func TestReplaceHome(t *testing.T) {
	sep := string(os.PathSeparator)
	home := sep + filepath.Join("home", "al")
	tests := map[string]string{
		home:                                  "~",
		filepath.Join(home, "clips", "a.mp4"): "~" + sep + filepath.Join("clips", "a.mp4"),
		sep + filepath.Join("home", "alice", "a.mp4"): sep + filepath.Join("home", "alice", "a.mp4"),
		sep + "tmp": sep + "tmp",
	}
	for in, want := range tests {
		if got := replaceHome(in, home); got != want {
			t.Errorf("replaceHome(%q) = %q, want %q", in, got, want)
		}
	}
}
