package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/soroe/internal/models"
)

func TestWriteRunStatsText(t *testing.T) {
	stats := &models.SyncRunStats{
		RunID:   "run-1",
		Trigger: models.TriggerIncremental,
		Elapsed: 1.5,
		New:     2, Updated: 1, Unchanged: 7, Deleted: 1, Failed: 1,
		Errors: []models.SyncError{
			{JobNumber: "J9", Stage: "embedding", Message: "provider rejected input"},
		},
	}
	var buf bytes.Buffer
	if err := WriteRunStats(&buf, stats, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"run-1", "new: 2", "deleted: 1", "error [embedding] J9"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteRunStatsSkipped(t *testing.T) {
	var buf bytes.Buffer
	err := WriteRunStats(&buf, &models.SyncRunStats{RunID: "run-2", Trigger: models.TriggerIncremental, Skipped: true}, OutputText)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "skipped") {
		t.Errorf("skipped run not reported: %s", buf.String())
	}
}

func TestWriteRunStatsJSON(t *testing.T) {
	var buf bytes.Buffer
	stats := &models.SyncRunStats{RunID: "run-3", Trigger: models.TriggerRebuild, New: 5}
	if err := WriteRunStats(&buf, stats, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.SyncRunStats
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.RunID != "run-3" || decoded.New != 5 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Errorf("Truncate with 0 = %q", got)
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords("one two three four", 2); got != "one two..." {
		t.Errorf("TruncateWords = %q", got)
	}
	if got := TruncateWords("one two", 5); got != "one two" {
		t.Errorf("TruncateWords = %q", got)
	}
}
