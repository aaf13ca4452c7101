// Package eval implements the evaluation harness: dataset loading, grading,
// bounded-parallel execution, and report aggregation.
package eval

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rubric tells the scorer how to grade a case.
type Rubric struct {
	// Type is "numeric", "text", or "" for automatic detection.
	Type string `yaml:"type" json:"type"`

	// RequireCitations flips a missing-citation warning into a failure.
	RequireCitations bool `yaml:"require_citations" json:"require_citations"`
}

// Case is one evaluation case. Cases are immutable once loaded.
type Case struct {
	ID        string  `yaml:"id" json:"id"`
	Question  string  `yaml:"question" json:"question"`
	Expected  string  `yaml:"expected_answer" json:"expected_answer"`
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	Rubric    Rubric  `yaml:"rubric" json:"rubric"`
}

// LoadDataset reads a dataset file, dispatching on extension. Order is
// preserved; the file is read exactly once per run.
func LoadDataset(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f)
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q (want .csv, .yaml, or .yml)", filepath.Ext(path))
	}
}

// LoadCSV reads header-addressed CSV rows. Required columns: question,
// expected_answer. Optional: id, tolerance, rubric, require_citations.
func LoadCSV(r io.Reader) ([]Case, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["question"]; !ok {
		return nil, fmt.Errorf("csv dataset is missing a question column")
	}
	if _, ok := col["expected_answer"]; !ok {
		return nil, fmt.Errorf("csv dataset is missing an expected_answer column")
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var cases []Case
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		c := Case{
			ID:       field(row, "id"),
			Question: field(row, "question"),
			Expected: field(row, "expected_answer"),
			Rubric: Rubric{
				Type: strings.ToLower(field(row, "rubric")),
			},
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("case-%d", len(cases)+1)
		}
		if c.Question == "" {
			return nil, fmt.Errorf("csv line %d: empty question", line)
		}
		if tol := field(row, "tolerance"); tol != "" {
			c.Tolerance, err = strconv.ParseFloat(tol, 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: invalid tolerance %q", line, tol)
			}
		}
		if rc := field(row, "require_citations"); rc != "" {
			c.Rubric.RequireCitations, err = strconv.ParseBool(rc)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: invalid require_citations %q", line, rc)
			}
		}
		cases = append(cases, c)
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("dataset contains no cases")
	}
	return cases, nil
}

// LoadYAML reads a list of cases.
func LoadYAML(r io.Reader) ([]Case, error) {
	var cases []Case
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cases); err != nil {
		return nil, fmt.Errorf("decode yaml dataset: %w", err)
	}

	for i := range cases {
		if cases[i].ID == "" {
			cases[i].ID = fmt.Sprintf("case-%d", i+1)
		}
		if cases[i].Question == "" {
			return nil, fmt.Errorf("yaml case %d: empty question", i+1)
		}
		cases[i].Rubric.Type = strings.ToLower(cases[i].Rubric.Type)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("dataset contains no cases")
	}
	return cases, nil
}
