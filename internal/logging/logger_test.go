package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kitchen/internal/services"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "batch.log")

	logger, err := New(Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("item started", String(FieldAssetID, "cpb-aacip-123"), Int(FieldItemNum, 4))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "item started") {
		t.Fatalf("missing message in output: %q", out)
	}
	if !strings.Contains(out, "asset_id=cpb-aacip-123") {
		t.Fatalf("missing asset attr in output: %q", out)
	}
	if !strings.Contains(out, "item_num=4") {
		t.Fatalf("missing ordinal attr in output: %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleHandlerPromotesComponent(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")

	logger, err := New(Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	NewComponentLogger(logger, "coordinator").Info("batch complete")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "coordinator: batch complete") {
		t.Fatalf("component prefix missing: %q", string(data))
	}
}

func TestConsoleHandlerFlattensGroups(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")

	logger, err := New(Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.WithGroup("job").Info("slicing", String("id", "batch01"), Int("items", 7))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "job.id=batch01") || !strings.Contains(out, "job.items=7") {
		t.Fatalf("group keys not flattened: %q", out)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithBatchID(context.Background(), "batch01")
	ctx = services.WithAssetID(ctx, "cpb-aacip-42")
	ctx = services.WithStage(ctx, "stage-1")

	fields := ContextFields(ctx)
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		keys[f.Key] = true
	}
	for _, want := range []string{FieldBatchID, FieldAssetID, FieldStage} {
		if !keys[want] {
			t.Fatalf("missing context field %q in %v", want, keys)
		}
	}
}
