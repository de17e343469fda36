package runlog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Summary condenses a ledger into the numbers an operator checks after a
// run: how much got done, what failed, and how far the batch has been
// covered contiguously.
type Summary struct {
	BatchID         string
	Attempts        int
	Items           int
	Done            int
	Failed          int
	StagesRan       int
	StagesSkipped   int
	StagesFailed    int
	FirstOrdinal    int
	LastConsecutive int
	FailedOrdinals  []int
	Elapsed         time.Duration
}

// Summarize reduces ledger entries to a Summary. Status counts reflect each
// asset's latest attempt; stage counts accumulate over all attempts.
func Summarize(entries []Entry) Summary {
	var s Summary
	s.Attempts = len(entries)

	latest := make(map[string]Entry)
	var order []string
	for _, entry := range entries {
		if s.BatchID == "" {
			s.BatchID = entry.BatchID
		}
		if _, ok := latest[entry.AssetID]; !ok {
			order = append(order, entry.AssetID)
		}
		latest[entry.AssetID] = entry
		ran, skipped, failed := entry.StageCounts()
		s.StagesRan += ran
		s.StagesSkipped += skipped
		s.StagesFailed += failed
		s.Elapsed += entry.Elapsed()
	}

	s.Items = len(latest)
	var ordinals []int
	for _, asset := range order {
		entry := latest[asset]
		ordinals = append(ordinals, entry.Ordinal)
		switch entry.Status {
		case StatusDone:
			s.Done++
		case StatusFailed:
			s.Failed++
			s.FailedOrdinals = append(s.FailedOrdinals, entry.Ordinal)
		}
	}
	sort.Ints(ordinals)
	sort.Ints(s.FailedOrdinals)

	if len(ordinals) > 0 {
		s.FirstOrdinal = ordinals[0]
		s.LastConsecutive = ordinals[0]
		for _, ordinal := range ordinals[1:] {
			if ordinal != s.LastConsecutive+1 {
				break
			}
			s.LastConsecutive = ordinal
		}
	}
	return s
}

// String renders the summary as operator-facing text.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Logged %d attempts over %d items.\n", s.Attempts, s.Items)
	fmt.Fprintf(&b, "%d of %d items are done; %d failed.\n", s.Done, s.Items, s.Failed)
	fmt.Fprintf(&b, "Stages: %d ran, %d skipped, %d failed.\n",
		s.StagesRan, s.StagesSkipped, s.StagesFailed)
	if s.Items > 0 {
		fmt.Fprintf(&b, "Consecutive items attempted: #%d to #%d.\n",
			s.FirstOrdinal, s.LastConsecutive)
	}
	if len(s.FailedOrdinals) > 0 {
		fmt.Fprintf(&b, "Failed item numbers: %s\n", formatOrdinals(s.FailedOrdinals))
	}
	fmt.Fprintf(&b, "Total processing time: %s.", s.Elapsed.Round(time.Second))
	return b.String()
}

// formatOrdinals compresses sorted ordinals into range notation, e.g.
// "3-5, 7".
func formatOrdinals(ordinals []int) string {
	if len(ordinals) == 0 {
		return ""
	}
	var parts []string
	start, prev := ordinals[0], ordinals[0]
	flush := func() {
		if start == prev {
			parts = append(parts, fmt.Sprintf("%d", start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, ordinal := range ordinals[1:] {
		if ordinal == prev+1 {
			prev = ordinal
			continue
		}
		flush()
		start, prev = ordinal, ordinal
	}
	flush()
	return strings.Join(parts, ", ")
}
