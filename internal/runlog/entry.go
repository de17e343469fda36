// Package runlog is the durable ledger of batch runs. Each item attempt
// appends exactly one immutable entry to a JSONL file scoped by batch id;
// entries from earlier runs are never rewritten, so the file is the union of
// every run over the batch. A SQLite companion store flattens the same
// entries for ad-hoc querying, and the render helpers produce operator-facing
// tables and CSV exports.
package runlog

import (
	"time"
)

// Stage result values recorded per pipeline stage.
const (
	ResultSkipped = "skipped"
	ResultRan     = "ran"
	ResultFailed  = "failed"
)

// Item status values recorded per attempt.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

// StageOutcome records what happened at one stage index for one item.
// Stage 0 is the blank document.
type StageOutcome struct {
	Stage  int    `json:"stage"`
	Result string `json:"result"`
	Detail string `json:"detail,omitempty"`
}

// Entry is one item attempt. RunID groups the entries of a single cook
// invocation; the same asset accumulates one entry per attempt across runs.
type Entry struct {
	RunID          string         `json:"run_id"`
	BatchID        string         `json:"batch_id"`
	AssetID        string         `json:"asset_id"`
	Ordinal        int            `json:"ordinal"`
	MediaFilename  string         `json:"media_filename,omitempty"`
	Status         string         `json:"status"`
	Stages         []StageOutcome `json:"stages,omitempty"`
	PostProcErrors []string       `json:"post_proc_errors,omitempty"`
	Error          string         `json:"error,omitempty"`
	FailureKind    string         `json:"failure_kind,omitempty"`
	Cleanup        string         `json:"cleanup,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// Elapsed returns the attempt duration.
func (e Entry) Elapsed() time.Duration {
	if e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// StageCounts tallies the entry's stage outcomes.
func (e Entry) StageCounts() (ran, skipped, failed int) {
	for _, outcome := range e.Stages {
		switch outcome.Result {
		case ResultRan:
			ran++
		case ResultSkipped:
			skipped++
		case ResultFailed:
			failed++
		}
	}
	return ran, skipped, failed
}
