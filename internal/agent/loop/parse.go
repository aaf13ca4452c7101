package loop

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"finbench/internal/agent/ports"
)

var finalAnswerRe = regexp.MustCompile(`(?is)FINAL ANSWER:\s*`)

type citedSource struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// parseFinalAnswer extracts the answer text and the cited sources from the
// oracle's reply. The expected shape is "FINAL ANSWER: <text>" followed by a
// trailing {"sources":[{"url","name"}]} block; a malformed block is repaired
// before giving up on it. Citations are filtered to URLs present in the
// accumulated evidence so fabricated sources never reach the caller.
func parseFinalAnswer(content string, evidence []ports.Evidence) ports.Answer {
	text := content
	if loc := finalAnswerRe.FindStringIndex(content); loc != nil {
		text = content[loc[1]:]
	}

	var cited []citedSource
	if idx := strings.LastIndex(strings.ToLower(text), `{"sources"`); idx >= 0 {
		block := text[idx:]
		if parsed, ok := decodeSources(block); ok {
			cited = parsed
			text = text[:idx]
		}
	}

	byURL := make(map[string]ports.Evidence, len(evidence))
	for _, e := range evidence {
		if _, dup := byURL[e.URL]; !dup {
			byURL[e.URL] = e
		}
	}

	sources := make([]ports.Evidence, 0, len(cited))
	for _, c := range cited {
		ev, ok := byURL[c.URL]
		if !ok {
			continue
		}
		if c.Name != "" {
			ev.Name = c.Name
		}
		sources = append(sources, ev)
	}

	return ports.Answer{
		Text:    strings.TrimSpace(text),
		Sources: sources,
	}
}

func decodeSources(block string) ([]citedSource, bool) {
	var payload struct {
		Sources []citedSource `json:"sources"`
	}
	if err := json.Unmarshal([]byte(block), &payload); err == nil {
		return payload.Sources, true
	}

	repaired, err := jsonrepair.JSONRepair(block)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return nil, false
	}
	return payload.Sources, true
}
