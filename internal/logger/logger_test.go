package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestPrettyFormatterFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.DebugLevel)
	log.SetFormatter(&PrettyFormatter{NoColor: true})

	log.WithFields(logrus.Fields{"session": "abc", "peer": "p1"}).Info("Session started")

	line := buf.String()
	if !strings.Contains(line, "INFO  Session started peer=p1 session=abc") {
		t.Errorf("unexpected line: %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("expected trailing newline")
	}
}

func TestPrettyFormatterLevels(t *testing.T) {
	tests := []struct {
		level    logrus.Level
		expected string
	}{
		{logrus.DebugLevel, "DEBUG"},
		{logrus.InfoLevel, "INFO"},
		{logrus.WarnLevel, "WARN"},
		{logrus.ErrorLevel, "ERROR"},
	}

	f := &PrettyFormatter{NoColor: true}
	for _, tt := range tests {
		got := strings.TrimSpace(f.colorizeLevel(tt.level))
		if got != tt.expected {
			t.Errorf("colorizeLevel(%v) = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Info("nothing to see")
}
