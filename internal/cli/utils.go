// Package cli provides output helpers for the soroe command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/soroe/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteRunStats writes one sync run summary to w in the given format.
func WriteRunStats(w io.Writer, stats *models.SyncRunStats, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	writeRunStatsText(w, stats)
	return nil
}

func writeRunStatsText(w io.Writer, stats *models.SyncRunStats) {
	if stats.Skipped {
		fmt.Fprintf(w, "Run %s (%s) skipped: change volume below threshold (%.2fs)\n",
			stats.RunID, stats.Trigger, stats.Elapsed)
		return
	}
	fmt.Fprintf(w, "Run %s (%s) finished in %.2fs\n", stats.RunID, stats.Trigger, stats.Elapsed)
	fmt.Fprintf(w, "  new: %d  updated: %d  unchanged: %d  deleted: %d  failed: %d\n",
		stats.New, stats.Updated, stats.Unchanged, stats.Deleted, stats.Failed)
	fmt.Fprintf(w, "  embedding calls: %d  index calls: %d\n", stats.EmbeddingCalls, stats.IndexCalls)
	for _, e := range stats.Errors {
		if e.JobNumber != "" {
			fmt.Fprintf(w, "  error [%s] %s: %s\n", e.Stage, e.JobNumber, Truncate(e.Message, 120))
			continue
		}
		fmt.Fprintf(w, "  error [%s]: %s\n", e.Stage, Truncate(e.Message, 120))
	}
}

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
