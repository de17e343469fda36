package runlog

import (
	"fmt"
	"time"
)

// Header returns the column headings for tabular ledger views.
func Header() []string {
	return []string{"#", "Asset", "Status", "Stages", "Elapsed", "Finished", "Detail"}
}

// Rows flattens entries into display rows matching Header.
func Rows(entries []Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		ran, skipped, failed := entry.StageCounts()
		detail := entry.Error
		if detail == "" && len(entry.PostProcErrors) > 0 {
			detail = entry.PostProcErrors[0]
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", entry.Ordinal),
			entry.AssetID,
			entry.Status,
			fmt.Sprintf("%d ran / %d skipped / %d failed", ran, skipped, failed),
			entry.Elapsed().Round(time.Second).String(),
			entry.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			detail,
		})
	}
	return rows
}
