package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Report aggregates one harness run. Results keep the dataset's case order.
type Report struct {
	Results []GradeResult `json:"results"`

	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`

	PassRate  float64 `json:"pass_rate"`
	ErrorRate float64 `json:"error_rate"`

	// CountsByFailureKind tallies Errored cases by their error kind.
	CountsByFailureKind map[string]int `json:"counts_by_failure_kind,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// NewReport folds grade results into aggregate statistics.
func NewReport(results []GradeResult, duration time.Duration) *Report {
	r := &Report{
		Results:             results,
		Total:               len(results),
		CountsByFailureKind: make(map[string]int),
		Duration:            duration,
	}
	for _, res := range results {
		switch {
		case res.Errored:
			r.Errored++
			r.CountsByFailureKind[string(res.ErrorKind)]++
		case res.Passed:
			r.Passed++
		default:
			r.Failed++
		}
	}
	if r.Total > 0 {
		r.PassRate = float64(r.Passed) / float64(r.Total)
		r.ErrorRate = float64(r.Errored) / float64(r.Total)
	}
	return r
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteMarkdown renders a human-readable report: a summary block, a per-case
// table, and a failure-kind breakdown.
func (r *Report) WriteMarkdown(w io.Writer) error {
	var b strings.Builder

	b.WriteString("# Evaluation Report\n\n")
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total cases**: %d\n", r.Total)
	fmt.Fprintf(&b, "- **Passed**: %d (%.1f%%)\n", r.Passed, r.PassRate*100)
	fmt.Fprintf(&b, "- **Failed**: %d\n", r.Failed)
	fmt.Fprintf(&b, "- **Errored**: %d (%.1f%%)\n", r.Errored, r.ErrorRate*100)
	fmt.Fprintf(&b, "- **Duration**: %s\n\n", r.Duration.Round(time.Millisecond))

	b.WriteString("## Cases\n\n")
	b.WriteString("| Case | Outcome | Score | Expected | Actual | Notes |\n")
	b.WriteString("|------|---------|-------|----------|--------|-------|\n")
	for _, res := range r.Results {
		outcome := "FAIL"
		notes := res.Rationale
		switch {
		case res.Errored:
			outcome = "ERROR"
			notes = fmt.Sprintf("[%s] %s", res.ErrorKind, res.Error)
		case res.Passed:
			outcome = "PASS"
		}
		if res.Degraded {
			notes = strings.TrimSpace("degraded evidence; " + notes)
		}
		fmt.Fprintf(&b, "| %s | %s | %.2f | %s | %s | %s |\n",
			res.CaseID, outcome, res.Score,
			mdCell(res.Expected), mdCell(res.Actual), mdCell(notes))
	}

	if len(r.CountsByFailureKind) > 0 {
		b.WriteString("\n## Errors by kind\n\n")
		kinds := make([]string, 0, len(r.CountsByFailureKind))
		for k := range r.CountsByFailureKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- `%s`: %d\n", k, r.CountsByFailureKind[k])
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// mdCell truncates and escapes a value for a markdown table cell.
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	const max = 80
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
