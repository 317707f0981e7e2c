package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsAccumulate(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithOrderID(ctx, "ord-1")
	ctx = logg.WithProvider(ctx, "kakaopay")
	logg.Info(ctx, "settlement.start")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	for key, want := range map[string]string{
		"service":    "test",
		"request_id": "req-1",
		"order_id":   "ord-1",
		"provider":   "kakaopay",
		"message":    "settlement.start",
	} {
		if entry[key] != want {
			t.Errorf("field %s = %v, want %s", key, entry[key], want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
		"error":   zerolog.ErrorLevel,
		"info":    zerolog.InfoLevel,
		"trace":   zerolog.TraceLevel,
		"Invalid": zerolog.InfoLevel,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Level: zerolog.WarnLevel, Output: &buf})

	logg.Info(context.Background(), "suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered at warn level, got %q", buf.String())
	}

	logg.Warn(context.Background(), "emitted")
	if buf.Len() == 0 {
		t.Fatal("warn line should be emitted")
	}
}
