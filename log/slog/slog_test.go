package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/querycache"
)

func TestLoggerLevelsAndOrder(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo})
	l := Logger{L: stdslog.New(h)}

	l.Debug("dropped", querycache.Fields{"key": "1"})
	l.Info("evicted idle entries", querycache.Fields{"removed": 2, "after": "x"})

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug line leaked: %s", out)
	}
	if !strings.Contains(out, "after=x removed=2") {
		t.Fatalf("attrs not sorted: %s", out)
	}
}
