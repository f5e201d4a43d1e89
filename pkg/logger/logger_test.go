package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewEmitsServiceField(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "worker", Output: &buf})

	logg.Info(context.Background(), "hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "worker" {
		t.Fatalf("expected service field worker, got %v", entry["service"])
	}
	if entry["message"] != "hello" {
		t.Fatalf("expected message hello, got %v", entry["message"])
	}
}

func TestContextFieldsFlowThrough(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "worker", Output: &buf})

	ctx := logg.WithNegotiationID(context.Background(), "neg-1")
	ctx = logg.WithSupplierID(ctx, "sup-9")
	ctx = logg.WithRound(ctx, 3)
	logg.Info(ctx, "round started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["negotiation_id"] != "neg-1" {
		t.Fatalf("expected negotiation_id, got %v", entry["negotiation_id"])
	}
	if entry["supplier_id"] != "sup-9" {
		t.Fatalf("expected supplier_id, got %v", entry["supplier_id"])
	}
	if entry["round"] != float64(3) {
		t.Fatalf("expected round 3, got %v", entry["round"])
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "worker", Output: &buf})

	logg.Error(context.Background(), "boom", nil)

	if !strings.Contains(buf.String(), "stack") {
		t.Fatalf("expected stack field in error log, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", got)
	}
	if got := ParseLevel(""); got != zerolog.InfoLevel {
		t.Fatalf("expected info default, got %v", got)
	}
	if got := ParseLevel("nonsense"); got != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %v", got)
	}
}
