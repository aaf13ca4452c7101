package eval

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
)

// GradeResult is the outcome of one case. Exactly one GradeResult exists per
// case per run: Passed, Failed (graded but wrong), or Errored (never graded).
type GradeResult struct {
	CaseID    string          `json:"case_id"`
	Question  string          `json:"question"`
	Expected  string          `json:"expected"`
	Actual    string          `json:"actual,omitempty"`
	Score     float64         `json:"score"`
	Passed    bool            `json:"passed"`
	Errored   bool            `json:"errored"`
	ErrorKind finerrors.Kind  `json:"error_kind,omitempty"`
	Error     string          `json:"error,omitempty"`
	Rationale string          `json:"rationale,omitempty"`
	Degraded  bool            `json:"degraded,omitempty"`
	Elapsed   time.Duration   `json:"elapsed_ns"`
}

// Scorer grades an answer against a case.
type Scorer interface {
	Score(c Case, answer ports.Answer) (GradeResult, error)
}

// DefaultScorer grades numeric expectations under relative tolerance and
// textual expectations by normalized substring. Citation structure is
// checked on every case: missing citations lower the score and record a
// rationale, and fail the case outright when the rubric requires them.
type DefaultScorer struct {
	// Threshold maps score to pass/fail.
	Threshold float64

	// DefaultTolerance is the relative tolerance used when the case does
	// not set one.
	DefaultTolerance float64
}

// NewDefaultScorer returns the default grading policy: 1% relative tolerance
// and a 0.5 pass threshold.
func NewDefaultScorer() *DefaultScorer {
	return &DefaultScorer{Threshold: 0.5, DefaultTolerance: 0.01}
}

const missingCitationPenalty = 0.1

func (s *DefaultScorer) Score(c Case, answer ports.Answer) (GradeResult, error) {
	result := GradeResult{
		CaseID:   c.ID,
		Question: c.Question,
		Expected: c.Expected,
		Actual:   answer.Text,
		Degraded: answer.Degraded(),
	}

	if strings.TrimSpace(c.Expected) == "" {
		return result, &finerrors.ScoringError{CaseID: c.ID, Reason: "case has no expected answer"}
	}

	var rationale []string

	expectedNum, expectedIsNum := parseNumber(c.Expected)
	rubricType := c.Rubric.Type
	if rubricType == "" {
		if expectedIsNum {
			rubricType = "numeric"
		} else {
			rubricType = "text"
		}
	}

	switch rubricType {
	case "numeric":
		if !expectedIsNum {
			return result, &finerrors.ScoringError{
				CaseID: c.ID,
				Reason: fmt.Sprintf("rubric is numeric but expected answer %q has no parseable number", c.Expected),
			}
		}
		tolerance := c.Tolerance
		if tolerance <= 0 {
			tolerance = s.DefaultTolerance
		}
		if matched, got := matchNumeric(expectedNum, answer.Text, tolerance); matched {
			result.Score = 1
			rationale = append(rationale, fmt.Sprintf("numeric match: %g within %.2f%% of %g", got, tolerance*100, expectedNum.value))
		} else {
			rationale = append(rationale, fmt.Sprintf("no number in answer within %.2f%% of %g", tolerance*100, expectedNum.value))
		}

	case "text":
		if containsNormalized(answer.Text, c.Expected) {
			result.Score = 1
			rationale = append(rationale, "expected text found in answer")
		} else {
			rationale = append(rationale, fmt.Sprintf("expected text %q not found in answer", c.Expected))
		}

	default:
		return result, &finerrors.ScoringError{
			CaseID: c.ID,
			Reason: fmt.Sprintf("unknown rubric type %q", c.Rubric.Type),
		}
	}

	citationsOK := hasStructuralCitations(answer.Sources)
	if !citationsOK {
		rationale = append(rationale, "no structurally valid citations (need non-empty url and name)")
		if c.Rubric.RequireCitations {
			result.Score = 0
		} else if result.Score > missingCitationPenalty {
			result.Score -= missingCitationPenalty
		}
	}

	result.Passed = result.Score >= s.Threshold
	if c.Rubric.RequireCitations && !citationsOK {
		result.Passed = false
	}
	result.Rationale = strings.Join(rationale, "; ")
	return result, nil
}

// hasStructuralCitations reports whether at least one source has both a URL
// and a name.
func hasStructuralCitations(sources []ports.Evidence) bool {
	for _, src := range sources {
		if strings.TrimSpace(src.URL) != "" && strings.TrimSpace(src.Name) != "" {
			return true
		}
	}
	return false
}

// number is a parsed numeric expectation or candidate.
type number struct {
	value   float64
	percent bool
}

var numberRe = regexp.MustCompile(`(?i)([-+]?\d+(?:,\d{3})*(?:\.\d+)?(?:e[-+]?\d+)?)\s*(thousand|million|billion|trillion|bn|tn|[kmbt])?\b\s*(%)?`)

var scaleFactors = map[string]float64{
	"k": 1e3, "thousand": 1e3,
	"m": 1e6, "million": 1e6,
	"b": 1e9, "bn": 1e9, "billion": 1e9,
	"t": 1e12, "tn": 1e12, "trillion": 1e12,
}

// parseNumber extracts the first number from s, honoring currency symbols,
// thousands separators, scale words, and percent signs.
func parseNumber(s string) (number, bool) {
	nums := extractNumbers(s)
	if len(nums) == 0 {
		return number{}, false
	}
	return nums[0], true
}

// extractNumbers finds every normalized number in s.
func extractNumbers(s string) []number {
	cleaned := strings.NewReplacer("$", "", "€", "", "£", "", "¥", "").Replace(strings.ToLower(s))

	var out []number
	for _, m := range numberRe.FindAllStringSubmatch(cleaned, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if scale, ok := scaleFactors[m[2]]; ok {
			v *= scale
		}
		out = append(out, number{value: v, percent: m[3] == "%"})
	}
	return out
}

// matchNumeric reports whether any number in the answer is within the
// relative tolerance of the expectation. Percent expectations only match
// percent candidates or bare numbers of equal magnitude.
func matchNumeric(expected number, answerText string, tolerance float64) (bool, float64) {
	for _, cand := range extractNumbers(answerText) {
		if expected.percent && cand.percent != expected.percent && cand.value != expected.value {
			continue
		}
		if withinRelative(cand.value, expected.value, tolerance) {
			return true, cand.value
		}
	}
	return false, 0
}

func withinRelative(got, want, tolerance float64) bool {
	if want == 0 {
		return math.Abs(got) <= tolerance
	}
	return math.Abs(got-want) <= tolerance*math.Abs(want)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func containsNormalized(haystack, needle string) bool {
	normalize := func(s string) string {
		return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
	}
	return strings.Contains(normalize(haystack), normalize(needle))
}
