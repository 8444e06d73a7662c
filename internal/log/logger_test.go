package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestComponentIsLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentApp})
	logger.WithComponent(ComponentRecords).Info("saved", FieldRecordID, "r1")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=records") {
		t.Fatalf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "record_id=r1") {
		t.Fatalf("missing record id: %s", out)
	}
}

func TestContextCarriesLogger(t *testing.T) {
	logger := New(Config{Handler: slog.NewTextHandler(&bytes.Buffer{}, nil), Component: ComponentHTTP})
	got := FromContext(NewContext(context.Background(), logger))
	if got != logger {
		t.Fatalf("logger not propagated")
	}
	if FromContext(context.Background()).Component() != ComponentApp {
		t.Fatalf("fallback logger should use the app component")
	}
}

func TestLogRecordSavedWarns(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentRecords}))
	sl.LogRecordSaved(context.Background(), OpCreate, "r1", "", "Hub", 10, 50, []string{"negative_mileage"})
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected warn level: %s", buf.String())
	}
}
