package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// LadenMMIF is a minimal annotation-bearing document usable as a completed
// stage output in fixtures.
const LadenMMIF = `{"metadata":{"mmif":"http://mmif.clams.ai/1.0.4"},
	"views":[{"metadata":{"app":"http://apps.clams.ai/swt-detection"}}]}`

// ErrorMMIF is a document whose single view records an app error.
const ErrorMMIF = `{"metadata":{"mmif":"http://mmif.clams.ai/1.0.4"},
	"views":[{"metadata":{"error":{"message":"app failed"}}}]}`

// WriteFile writes content at path, creating parent directories as needed.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
