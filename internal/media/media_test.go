package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kitchen/internal/command"
	"kitchen/internal/manifest"
	"kitchen/internal/services"
)

func TestCiURLResolverIgnoresStderrNoise(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ci_url.sh")
	content := "#!/bin/sh\n" +
		"echo 'warning: token near expiry' >&2\n" +
		"echo \"https://ci.example.org/$1.mp4\"\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	resolver := NewCiURLResolver(script, command.New())
	url, err := resolver.ResolveURL(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ResolveURL returned error: %v", err)
	}
	if url != "https://ci.example.org/abc123.mp4" {
		t.Fatalf("unexpected URL: %q", url)
	}
}

type fakeResolver struct {
	url string
	err error
}

func (f fakeResolver) ResolveURL(context.Context, string) (string, error) {
	return f.url, f.err
}

type fakeExecutor struct {
	lines []string
	err   error
}

func (f fakeExecutor) Run(_ context.Context, _ string, _ []string, onStdout, _ func(string)) error {
	for _, line := range f.lines {
		onStdout(line)
	}
	return f.err
}

func seedFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("media"), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func TestCheckAvail(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "cpb-aacip-259-v40jx35m.mp4")
	seedFile(t, dir, "cpb-aacip-259-zz99aa00.mp4"+PartialSuffix)

	name, ok := CheckAvail("cpb-aacip-259-v40jx35m", dir)
	if !ok || name != "cpb-aacip-259-v40jx35m.mp4" {
		t.Fatalf("unexpected match: %q, %v", name, ok)
	}
	if _, ok := CheckAvail("cpb-aacip-259-zz99aa00", dir); ok {
		t.Fatal("partial download should never match")
	}
	if _, ok := CheckAvail("cpb-aacip-259-missing0", dir); ok {
		t.Fatal("unexpected match for absent asset")
	}
}

func TestCheckAvailPrefersFirstSorted(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "b_259-v40jx35m.mp4")
	seedFile(t, dir, "a_259-v40jx35m.mp4")
	name, ok := CheckAvail("cpb-aacip-259-v40jx35m", dir)
	if !ok || name != "a_259-v40jx35m.mp4" {
		t.Fatalf("expected deterministic first match, got %q", name)
	}
}

func TestFilenameFromURL(t *testing.T) {
	url := "https://ci.example.com/dl/abc123/cpb-aacip-259-v40jx35m.mp4?token=xyz"
	name, err := filenameFromURL(url, "abc123")
	if err != nil || name != "cpb-aacip-259-v40jx35m.mp4" {
		t.Fatalf("unexpected result: %q, %v", name, err)
	}

	if _, err := filenameFromURL("https://ci.example.com/dl/other/file.mp4?x=1", "abc123"); err == nil {
		t.Fatal("expected error when neither guid nor id appears")
	}
	if _, err := filenameFromURL("https://ci.example.com/cpb-aacip-259.mp4", "abc123"); err == nil {
		t.Fatal("expected error when no query terminator exists")
	}
}

func TestEnsureLocalFindsExistingFile(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "cpb-aacip-259-v40jx35m.mp4")
	m := NewManager(dir, fakeResolver{}, 0, nil)
	path, err := m.EnsureLocal(context.Background(), manifest.Item{
		AssetID: "cpb-aacip-259-v40jx35m",
	})
	if err != nil {
		t.Fatalf("EnsureLocal returned error: %v", err)
	}
	if filepath.Base(path) != "cpb-aacip-259-v40jx35m.mp4" {
		t.Fatalf("unexpected path: %q", path)
	}
}

func TestEnsureLocalNoSourceFails(t *testing.T) {
	m := NewManager(t.TempDir(), fakeResolver{}, 0, nil)
	_, err := m.EnsureLocal(context.Background(), manifest.Item{AssetID: "cpb-aacip-259-v40jx35m"})
	if !errors.Is(err, services.ErrMediaUnavailable) {
		t.Fatalf("expected media unavailable, got: %v", err)
	}
	if services.IsBatchFatal(err) {
		t.Fatal("media failure must stay item-scoped")
	}
}

func TestEnsureLocalDownloads(t *testing.T) {
	payload := strings.Repeat("x", 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	dir := t.TempDir()
	resolver := fakeResolver{url: server.URL + "/cpb-aacip-259-v40jx35m.mp4?token=t"}
	m := NewManager(dir, resolver, 1, nil)
	path, err := m.EnsureLocal(context.Background(), manifest.Item{
		AssetID:  "cpb-aacip-259-v40jx35m",
		SonyCiID: "abc123",
	})
	if err != nil {
		t.Fatalf("EnsureLocal returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != payload {
		t.Fatalf("unexpected download content (%d bytes), err %v", len(data), err)
	}
	if _, err := os.Stat(path + PartialSuffix); !os.IsNotExist(err) {
		t.Fatal("partial file should be promoted away")
	}
}

func TestEnsureLocalDownloadStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	m := NewManager(t.TempDir(), fakeResolver{url: server.URL + "/cpb-aacip-259-v40jx35m.mp4?t=1"}, 0, nil)
	_, err := m.EnsureLocal(context.Background(), manifest.Item{
		AssetID:  "cpb-aacip-259-v40jx35m",
		SonyCiID: "abc123",
	})
	if !errors.Is(err, services.ErrMediaUnavailable) {
		t.Fatalf("expected media unavailable, got: %v", err)
	}
}

func TestEnsureLocalDownloadLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2*1024*1024))
	}))
	defer server.Close()

	dir := t.TempDir()
	m := NewManager(dir, fakeResolver{url: server.URL + "/cpb-aacip-259-v40jx35m.mp4?t=1"}, 1, nil)
	_, err := m.EnsureLocal(context.Background(), manifest.Item{
		AssetID:  "cpb-aacip-259-v40jx35m",
		SonyCiID: "abc123",
	})
	if !errors.Is(err, services.ErrMediaUnavailable) {
		t.Fatalf("expected limit breach to fail, got: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected truncated download removed, found %d entries", len(entries))
	}
}

func TestCiURLResolver(t *testing.T) {
	r := NewCiURLResolver("ci_url.sh", fakeExecutor{lines: []string{`"https://ci.example.com/file.mp4?t=1"`}})
	url, err := r.ResolveURL(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ResolveURL returned error: %v", err)
	}
	if url != "https://ci.example.com/file.mp4?t=1" {
		t.Fatalf("unexpected URL: %q", url)
	}

	r = NewCiURLResolver("ci_url.sh", fakeExecutor{lines: []string{"null"}})
	if _, err := r.ResolveURL(context.Background(), "abc123"); !errors.Is(err, services.ErrMediaUnavailable) {
		t.Fatalf("expected media unavailable for null URL, got: %v", err)
	}
}

func TestRemoveMissingFileIsFine(t *testing.T) {
	if err := Remove(filepath.Join(t.TempDir(), "gone.mp4")); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
}
