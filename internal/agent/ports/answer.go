package ports

import "time"

// Question is an immutable user question, optionally tagged with the
// evaluation case it belongs to.
type Question struct {
	Text   string `json:"text"`
	CaseID string `json:"case_id,omitempty"`
}

// Evidence is a retrieved fact with provenance. Evidence is accumulated over
// one orchestration loop's lifetime and owned exclusively by the Answer it
// contributes to.
type Evidence struct {
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Snippet     string    `json:"snippet,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at,omitempty"`
}

// Confidence marks how trustworthy an answer's evidence base is.
type Confidence string

const (
	ConfidenceNormal   Confidence = "normal"
	ConfidenceDegraded Confidence = "degraded"
)

// Answer is the final synthesized answer with the evidence actually cited.
// Every source must exist in the loop's accumulated evidence; the loop
// filters out anything the oracle cites that was never retrieved.
type Answer struct {
	Text       string     `json:"text"`
	Sources    []Evidence `json:"sources"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// Degraded reports whether the answer was produced from partial evidence.
func (a Answer) Degraded() bool {
	return a.Confidence == ConfidenceDegraded
}
