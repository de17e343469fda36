package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// Log appends entries to the batch's JSONL ledger. Appends are serialized
// in-process by a mutex and across processes by a sibling lock file, so
// concurrent workers and overlapping cook invocations cannot interleave
// partial lines.
type Log struct {
	path string
	flk  *flock.Flock
	mu   sync.Mutex
}

// Filename returns the ledger file name for a batch.
func Filename(batchID string) string {
	return batchID + "_runlog.jsonl"
}

// Open prepares the ledger for a batch inside dir. The file itself is
// created lazily on first append.
func Open(dir, batchID string) *Log {
	path := filepath.Join(dir, Filename(batchID))
	return &Log{
		path: path,
		flk:  flock.New(path + ".lock"),
	}
}

// Path returns the ledger file location.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry as a single JSON line.
func (l *Log) Append(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal run log entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flk.Lock(); err != nil {
		return fmt.Errorf("lock run log: %w", err)
	}
	defer func() {
		_ = l.flk.Unlock()
	}()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append run log entry: %w", err)
	}
	return file.Close()
}

// Entries reads every entry in append order. A missing ledger yields no
// entries: a batch that never ran has an empty history.
func (l *Log) Entries() ([]Entry, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("parse run log line %d: %w", lineNum, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	return entries, nil
}

// Latest returns the most recent entry per asset, in first-seen order.
func (l *Log) Latest() ([]Entry, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var latest []Entry
	for _, entry := range entries {
		if i, ok := index[entry.AssetID]; ok {
			latest[i] = entry
			continue
		}
		index[entry.AssetID] = len(latest)
		latest = append(latest, entry)
	}
	return latest, nil
}
