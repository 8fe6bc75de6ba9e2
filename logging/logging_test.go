package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown", "height", 3)
	l.Error("also shown")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "shown") || !strings.Contains(lines[0], "height") || !strings.Contains(lines[0], "3") {
		t.Fatalf("unexpected first record %q", lines[0])
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("filtered record written")
	}
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := With(New(&buf, LevelDebug), "component", "sequencer")
	l.Info("sealed")
	if !strings.Contains(buf.String(), "sequencer") {
		t.Fatalf("attribute missing: %q", buf.String())
	}
	if With(Nop(), "k", "v") == nil {
		t.Fatalf("With(Nop) returned nil")
	}
}

func TestFormat_Deterministic(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := Format(ts, LevelInfo, "m", []interface{}{"a", 1, "dangling"})
	b := Format(ts, LevelInfo, "m", []interface{}{"a", 1, "dangling"})
	if a != b {
		t.Fatalf("format not deterministic: %q vs %q", a, b)
	}
	if !strings.Contains(a, "!badkey") || !strings.Contains(a, "dangling") {
		t.Fatalf("dangling key not reported: %q", a)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": LevelDebug, "": LevelInfo, "WARN": LevelWarn, "error": LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}
