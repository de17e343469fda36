// Package media makes item media available locally: checking the media
// directory for an existing file, fetching remote items from SonyCi, and
// removing media during cleanup. Credentials never pass through this
// package; the configured URL command supplies them out-of-band.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kitchen/internal/command"
	"kitchen/internal/fileutil"
	"kitchen/internal/logging"
	"kitchen/internal/manifest"
	"kitchen/internal/services"
)

// PartialSuffix marks in-flight downloads; files carrying it are never
// treated as available media.
const PartialSuffix = ".PARTIAL"

const guidPrefixLen = len("cpb-aacip-")

// URLResolver turns a SonyCi id into a time-limited download URL.
type URLResolver interface {
	ResolveURL(ctx context.Context, ciID string) (string, error)
}

// Manager acquires and removes media files for batch items.
type Manager struct {
	dir        string
	resolver   URLResolver
	client     *http.Client
	limitBytes int64
	logger     *slog.Logger
}

// NewManager builds a Manager writing into dir. limitMiB bounds single
// downloads; zero disables the bound.
func NewManager(dir string, resolver URLResolver, limitMiB int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		dir:        dir,
		resolver:   resolver,
		client:     &http.Client{},
		limitBytes: int64(limitMiB) * 1024 * 1024,
		logger:     logger.With(logging.String(logging.FieldComponent, "media")),
	}
}

// CheckAvail scans dir for a media file matching the asset id and returns
// its filename. The match is a substring match on the id with its
// collection prefix stripped; partial downloads never match.
func CheckAvail(assetID, dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	needle := assetID
	if len(needle) > guidPrefixLen {
		needle = needle[guidPrefixLen:]
	}
	var matches []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.Contains(name, PartialSuffix) {
			continue
		}
		if strings.Contains(name, needle) {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// EnsureLocal makes the item's media available in the media directory and
// returns its local path. Pre-local items are looked up on disk; remote
// items are fetched via the URL resolver.
func (m *Manager) EnsureLocal(ctx context.Context, item manifest.Item) (string, error) {
	if filename, ok := CheckAvail(item.AssetID, m.dir); ok {
		return filepath.Join(m.dir, filename), nil
	}
	if item.SonyCiID == "" {
		return "", services.Wrap(services.ErrMediaUnavailable, "media", "ensure_local",
			fmt.Sprintf("no media file for %s in %s and no remote id to fetch", item.AssetID, m.dir), nil)
	}
	filename, err := m.fetch(ctx, item)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.dir, filename), nil
}

func (m *Manager) fetch(ctx context.Context, item manifest.Item) (string, error) {
	url, err := m.resolver.ResolveURL(ctx, item.SonyCiID)
	if err != nil {
		return "", err
	}
	filename, err := filenameFromURL(url, item.SonyCiID)
	if err != nil {
		return "", services.Wrap(services.ErrMediaUnavailable, "media", "fetch",
			fmt.Sprintf("resolve filename for %s", item.AssetID), err)
	}
	if !sameGUIDTail(filename, item.AssetID) {
		m.logger.Warn("download filename does not match asset id",
			logging.String(logging.FieldAssetID, item.AssetID),
			logging.String("filename", filename))
	}

	if err := m.download(ctx, url, filename); err != nil {
		return "", err
	}
	m.logger.Info("media downloaded",
		logging.String(logging.FieldAssetID, item.AssetID),
		logging.String("filename", filename))
	return filename, nil
}

func (m *Manager) download(ctx context.Context, url, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrMediaUnavailable, "media", "download", "build request", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrMediaUnavailable, "media", "download", "request media", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrMediaUnavailable, "media", "download",
			fmt.Sprintf("download returned status %d", resp.StatusCode), nil)
	}

	final := filepath.Join(m.dir, filename)
	partial := final + PartialSuffix
	out, err := os.Create(partial)
	if err != nil {
		return services.Wrap(services.ErrMediaUnavailable, "media", "download", "stage partial file", err)
	}

	body := io.Reader(resp.Body)
	if m.limitBytes > 0 {
		body = io.LimitReader(resp.Body, m.limitBytes+1)
	}
	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(partial)
		return services.Wrap(services.ErrMediaUnavailable, "media", "download", "stream media", copyErr)
	case closeErr != nil:
		_ = os.Remove(partial)
		return services.Wrap(services.ErrMediaUnavailable, "media", "download", "close partial file", closeErr)
	case m.limitBytes > 0 && written > m.limitBytes:
		_ = os.Remove(partial)
		return services.Wrap(services.ErrMediaUnavailable, "media", "download",
			fmt.Sprintf("download exceeded limit of %d bytes", m.limitBytes), nil)
	}

	if _, err := os.Stat(final); err == nil {
		// A concurrent run finished first; keep its copy.
		_ = os.Remove(partial)
		return nil
	}
	if err := fileutil.Promote(partial, final); err != nil {
		return services.Wrap(services.ErrMediaUnavailable, "media", "download", "promote download", err)
	}
	return nil
}

// Remove deletes a media file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media %q: %w", path, err)
	}
	return nil
}

// filenameFromURL pulls the media filename out of a SonyCi download URL.
// URLs normally embed the full guid; failing that the filename is assumed
// to start right after the id segment. The name ends at the query string.
func filenameFromURL(url, ciID string) (string, error) {
	start := strings.Index(url, "cpb-aacip")
	if start == -1 {
		idIdx := strings.Index(url, ciID)
		if idIdx == -1 {
			return "", fmt.Errorf("no filename found in URL")
		}
		start = idIdx + len(ciID) + 1
		if start >= len(url) {
			return "", fmt.Errorf("no filename found in URL")
		}
	}
	end := strings.Index(url[start:], "?")
	if end == -1 {
		end = strings.Index(url[start:], "&")
	}
	if end == -1 {
		return "", fmt.Errorf("no filename terminator in URL")
	}
	return url[start : start+end], nil
}

func sameGUIDTail(filename, assetID string) bool {
	const tailLen = 8
	if len(filename) < guidPrefixLen+tailLen || len(assetID) < guidPrefixLen+tailLen {
		return true
	}
	return filename[guidPrefixLen:guidPrefixLen+tailLen] == assetID[guidPrefixLen:guidPrefixLen+tailLen]
}

// CiURLResolver resolves download URLs by running the configured command
// with the SonyCi id as its sole argument.
type CiURLResolver struct {
	commandPath string
	exec        command.Executor
}

// NewCiURLResolver builds a resolver around the configured command.
func NewCiURLResolver(commandPath string, exec command.Executor) *CiURLResolver {
	return &CiURLResolver{commandPath: commandPath, exec: exec}
}

// ResolveURL runs the URL command. Output of "null" or nothing means the
// service has no copy of the asset.
func (r *CiURLResolver) ResolveURL(ctx context.Context, ciID string) (string, error) {
	out, err := command.Output(ctx, r.exec, r.commandPath, []string{ciID})
	if err != nil {
		return "", services.Wrap(services.ErrMediaUnavailable, "media", "resolve_url", "run URL command", err)
	}
	url := strings.ReplaceAll(strings.TrimSpace(out), `"`, "")
	if url == "" || url == "null" {
		return "", services.Wrap(services.ErrMediaUnavailable, "media", "resolve_url",
			fmt.Sprintf("URL command returned no URL for %s", ciID), nil)
	}
	return url, nil
}
