package eval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
	"finbench/internal/logging"
)

// AgentClient answers questions; the transport client and the in-process
// engine both satisfy it.
type AgentClient interface {
	Ask(ctx context.Context, q ports.Question) (ports.Answer, error)
}

// Harness runs a dataset against an agent with bounded parallelism. A
// case-level failure never aborts the run; every case resolves to exactly
// one GradeResult.
type Harness struct {
	client      AgentClient
	scorer      Scorer
	concurrency int64
	caseTimeout time.Duration
	logger      logging.Logger
}

// HarnessOption customizes a Harness.
type HarnessOption func(*Harness)

// WithConcurrency bounds in-flight cases.
func WithConcurrency(n int) HarnessOption {
	return func(h *Harness) {
		if n > 0 {
			h.concurrency = int64(n)
		}
	}
}

// WithCaseTimeout sets the per-case deadline.
func WithCaseTimeout(d time.Duration) HarnessOption {
	return func(h *Harness) {
		if d > 0 {
			h.caseTimeout = d
		}
	}
}

// NewHarness builds a harness over the given agent and scorer.
func NewHarness(client AgentClient, scorer Scorer, logger logging.Logger, opts ...HarnessOption) *Harness {
	h := &Harness{
		client:      client,
		scorer:      scorer,
		concurrency: 4,
		caseTimeout: 5 * time.Minute,
		logger:      logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes every case and folds the results into a report. Run-level
// cancellation resolves unstarted and in-flight cases as Errored rather than
// dropping them.
func (h *Harness) Run(ctx context.Context, cases []Case) (*Report, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("no cases to run")
	}

	h.logger.Info("harness start: cases=%d concurrency=%d case_timeout=%s",
		len(cases), h.concurrency, h.caseTimeout)

	start := time.Now()
	results := make([]GradeResult, len(cases))
	sem := semaphore.NewWeighted(h.concurrency)
	var wg sync.WaitGroup

	for i := range cases {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Run cancelled before this case started.
			for j := i; j < len(cases); j++ {
				results[j] = h.erroredResult(cases[j], 0, err)
			}
			break
		}
		wg.Add(1)
		go func(idx int, c Case) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = h.runCase(ctx, c)
		}(i, cases[i])
	}
	wg.Wait()

	report := NewReport(results, time.Since(start))
	h.logger.Info("harness done: passed=%d failed=%d errored=%d pass_rate=%.1f%%",
		report.Passed, report.Failed, report.Errored, report.PassRate*100)
	return report, nil
}

func (h *Harness) runCase(ctx context.Context, c Case) GradeResult {
	caseCtx, cancel := context.WithTimeout(ctx, h.caseTimeout)
	defer cancel()

	start := time.Now()
	answer, err := h.client.Ask(caseCtx, ports.Question{Text: c.Question, CaseID: c.ID})
	elapsed := time.Since(start)
	if err != nil {
		h.logger.Warn("case %s errored after %s: %v", c.ID, elapsed.Round(time.Millisecond), err)
		return h.erroredResult(c, elapsed, err)
	}

	result, err := h.scorer.Score(c, answer)
	if err != nil {
		h.logger.Warn("case %s not gradable: %v", c.ID, err)
		res := h.erroredResult(c, elapsed, err)
		res.Actual = answer.Text
		return res
	}

	result.Elapsed = elapsed
	return result
}

func (h *Harness) erroredResult(c Case, elapsed time.Duration, err error) GradeResult {
	kind := finerrors.KindOf(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = finerrors.KindTimeout
	}
	return GradeResult{
		CaseID:    c.ID,
		Question:  c.Question,
		Expected:  c.Expected,
		Errored:   true,
		ErrorKind: kind,
		Error:     err.Error(),
		Elapsed:   elapsed,
	}
}
