// Package suite runs the frontpage checks through the lifecycle fixture.
package suite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/frontpage-e2e/internal/errs"
	"github.com/kuitang/frontpage-e2e/internal/fixture"
	"github.com/kuitang/frontpage-e2e/internal/obs"
	"github.com/kuitang/frontpage-e2e/internal/pages"
	"github.com/kuitang/frontpage-e2e/internal/uihelper"
)

// Env is what every check needs to build its helper.
type Env struct {
	BaseURL       string
	WaitTimeout   time.Duration
	ProbeTimeout  time.Duration
	ScreenshotDir string
}

// Result is the outcome of one check.
type Result struct {
	fixture.Outcome
}

func (r Result) Passed() bool {
	return r.Phase == fixture.PhasePassed
}

// Code is the error code of a failed check, or "" for a pass.
func (r Result) Code() errs.Code {
	if r.Passed() {
		return ""
	}
	return errs.CodeOf(r.Err)
}

// Results is a completed run, in check order.
type Results []Result

// Failed returns the failed results.
func (rs Results) Failed() Results {
	var out Results
	for _, r := range rs {
		if !r.Passed() {
			out = append(out, r)
		}
	}
	return out
}

// Summary renders one line per check.
func (rs Results) Summary() string {
	var b strings.Builder
	for _, r := range rs {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s  %s (%d attempt(s), %s)", status, r.Title, r.Attempts, r.Duration.Round(time.Millisecond))
		if r.Err != nil {
			fmt.Fprintf(&b, " [%s]: %v", r.Code(), r.Err)
		}
		if r.Screenshot != "" {
			fmt.Fprintf(&b, " [screenshot %s]", r.Screenshot)
		}
		if r.Trace != "" {
			fmt.Fprintf(&b, " [trace %s]", r.Trace)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d/%d passed\n", len(rs)-len(rs.Failed()), len(rs))
	return b.String()
}

// Runner executes checks concurrently, one session per check.
type Runner struct {
	fixture *fixture.Fixture
	env     Env
	retries int
	workers int
	project string
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRetries sets extra attempts per failing check.
func WithRetries(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.retries = n
		}
	}
}

// WithWorkers bounds concurrent checks. Zero means unbounded.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.workers = n
		}
	}
}

// WithProject prefixes every unit title with "[name] ", so results and
// screenshots of the same check under different browsers stay apart.
func WithProject(name string) RunnerOption {
	return func(r *Runner) {
		r.project = strings.TrimSpace(name)
	}
}

func NewRunner(fix *fixture.Fixture, env Env, opts ...RunnerOption) *Runner {
	r := &Runner{fixture: fix, env: env, logger: obs.Pkg("suite")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes checks and returns their results in input order. Check
// failures are reported in the results, not as an error.
func (r *Runner) Run(ctx context.Context, checks []Check) Results {
	results := make(Results, len(checks))

	var g errgroup.Group
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for i, check := range checks {
		g.Go(func() error {
			out := r.fixture.RunWithRetries(ctx, r.unitTitle(check), r.retries, func(ctx context.Context, s *fixture.Session) error {
				return r.verify(ctx, s, check)
			})
			results[i] = Result{Outcome: out}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results.Failed() {
		r.logger.Warn("check_failed", "unit", res.Title, "code", res.Code(), "attempts", res.Attempts, "error", res.Err)
	}
	r.logger.Info("suite_finished", "project", r.project, "checks", len(results), "failed", len(results.Failed()))
	return results
}

func (r *Runner) unitTitle(check Check) string {
	if r.project == "" {
		return check.Title
	}
	return "[" + r.project + "] " + check.Title
}

func (r *Runner) verify(ctx context.Context, s *fixture.Session, check Check) error {
	home := pages.NewHomePage(r.helper(s))
	if check.FromHome {
		if err := home.NavigateToHome(); err != nil {
			return err
		}
	}
	return check.Verify(ctx, home)
}

func (r *Runner) helper(s *fixture.Session) *uihelper.Helper {
	opts := []uihelper.Option{uihelper.WithBaseURL(r.env.BaseURL)}
	if r.env.WaitTimeout > 0 {
		opts = append(opts, uihelper.WithWaitTimeout(r.env.WaitTimeout))
	}
	if r.env.ProbeTimeout > 0 {
		opts = append(opts, uihelper.WithProbeTimeout(r.env.ProbeTimeout))
	}
	if r.env.ScreenshotDir != "" {
		opts = append(opts, uihelper.WithScreenshotDir(r.env.ScreenshotDir))
	}
	return uihelper.New(s.Page, opts...)
}
