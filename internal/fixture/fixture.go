// Package fixture gives each test unit its own browsing session. When a unit
// fails it captures a full-page screenshot, optionally archives it, then
// pauses before the next attempt.
//
// Failure handling never masks the unit's own error: problems taking,
// archiving or waiting are logged and swallowed.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/errs"
	"github.com/kuitang/frontpage-e2e/internal/obs"
)

// DefaultCooldown is the pause after a failed unit.
const DefaultCooldown = 61 * time.Second

// bodyGrace is how long a timed-out body may keep running after its session
// is closed before the attempt gives up waiting for it.
const bodyGrace = 5 * time.Second

// Phase is the lifecycle state of one unit.
type Phase string

const (
	PhaseProvisioning Phase = "provisioning"
	PhaseRunning      Phase = "running"
	PhasePassed       Phase = "passed"
	PhaseFailed       Phase = "failed"
)

// Uploader archives a local file and returns where it went.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// Unit is the part of testing.TB that Provision needs.
type Unit interface {
	Helper()
	Name() string
	Failed() bool
	Cleanup(func())
	Fatalf(format string, args ...any)
}

// Session is one unit's isolated context and its single page.
type Session struct {
	Title   string
	Context browser.BrowserContext
	Page    browser.Page

	tracing bool
	pending <-chan error // body still running after a unit timeout
}

// Fixture provisions sessions from one browser.
type Fixture struct {
	browser     browser.Browser
	dir         ScreenshotDir
	contextOpts browser.ContextOptions
	cooldown    time.Duration
	clock       Clock
	archive     Uploader
	limiter     *rate.Limiter
	navMaxWait  time.Duration
	unitTimeout time.Duration
	traceDir    string
	logger      *slog.Logger
}

// Option configures a Fixture.
type Option func(*Fixture)

// WithCooldown overrides DefaultCooldown. Zero disables the pause.
func WithCooldown(d time.Duration) Option {
	return func(f *Fixture) {
		if d >= 0 {
			f.cooldown = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(f *Fixture) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithArchive uploads every failure screenshot through u.
func WithArchive(u Uploader) Option {
	return func(f *Fixture) {
		f.archive = u
	}
}

// WithNavigationLimiter paces page navigations; a nil limiter is ignored.
func WithNavigationLimiter(l *rate.Limiter, maxWait time.Duration) Option {
	return func(f *Fixture) {
		f.limiter = l
		f.navMaxWait = maxWait
	}
}

// WithContextOptions sets the options new contexts are created with. A zero
// viewport is replaced by browser.DefaultViewport.
func WithContextOptions(opts browser.ContextOptions) Option {
	return func(f *Fixture) {
		f.contextOpts = opts
	}
}

// WithUnitTimeout bounds each Run attempt. Zero means no bound.
//
// A body that ignores its context keeps running after the timeout. The
// attempt captures the page, closes the session, then waits up to five
// seconds for the body to return before moving on.
func WithUnitTimeout(d time.Duration) Option {
	return func(f *Fixture) {
		f.unitTimeout = d
	}
}

// WithTraceOnRetry records a trace of each unit's first retry into dir when
// the browser context implements browser.Tracer.
func WithTraceOnRetry(dir string) Option {
	return func(f *Fixture) {
		f.traceDir = dir
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fixture) {
		if l != nil {
			f.logger = l
		}
	}
}

// New returns a fixture over b writing failure screenshots to dir.
func New(b browser.Browser, dir ScreenshotDir, opts ...Option) *Fixture {
	f := &Fixture{
		browser:  b,
		dir:      dir,
		cooldown: DefaultCooldown,
		clock:    realClock{},
		logger:   obs.Pkg("fixture"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.contextOpts.Viewport == (browser.Viewport{}) {
		f.contextOpts.Viewport = browser.DefaultViewport
	}
	return f
}

func (f *Fixture) Dir() ScreenshotDir {
	return f.dir
}

// open creates a fresh context and page.
func (f *Fixture) open(title string) (*Session, error) {
	bctx, err := f.browser.NewContext(f.contextOpts)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "create browser context", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.Unavailable, "create page", err)
	}
	return &Session{Title: title, Context: bctx, Page: browser.Throttle(page, f.limiter, f.navMaxWait)}, nil
}

// Provision opens a session for a go test unit. Cleanups registered on t
// close the context and, if t failed, capture the failure first.
func (f *Fixture) Provision(t Unit) *Session {
	t.Helper()

	title := t.Name()
	s, err := f.open(title)
	if err != nil {
		t.Fatalf("provision %s: %v", title, err)
		return nil
	}

	// Cleanups run last-registered-first: capture, then close.
	t.Cleanup(func() {
		if err := s.Context.Close(); err != nil {
			f.logger.Warn("context_close_failed", "unit", title, "error", err)
		}
	})
	t.Cleanup(func() {
		if t.Failed() {
			ctx := context.Background()
			f.capture(ctx, s)
			_ = f.sleep(ctx)
		}
	})
	return s
}

// Body is a unit of work run inside a session.
type Body func(ctx context.Context, s *Session) error

// Outcome is the result of Run or RunWithRetries.
type Outcome struct {
	Title      string
	Phase      Phase
	Attempts   int
	Screenshot string // last failure screenshot, if any
	Archived   string // archive key of that screenshot, if any
	Trace      string // trace of the first retry, if recorded
	Duration   time.Duration
	Err        error // the body's error from the last attempt
}

// Run executes body once in a fresh session.
func (f *Fixture) Run(ctx context.Context, title string, body Body) Outcome {
	return f.RunWithRetries(ctx, title, 0, body)
}

// RunWithRetries executes body until it passes or retries are exhausted.
// Every failed attempt is captured and followed by the cooldown, so the
// caller's next unit never starts right after a failure.
func (f *Fixture) RunWithRetries(ctx context.Context, title string, retries int, body Body) Outcome {
	start := f.clock.Now()
	out := Outcome{Title: title, Phase: PhaseProvisioning}

	for attempt := 1; attempt <= retries+1; attempt++ {
		out.Attempts = attempt
		actx := obs.WithUnit(ctx, title, attempt)
		willRetry := attempt <= retries

		s, err := f.open(title)
		if err != nil {
			out.Phase = PhaseFailed
			out.Err = err
			obs.From(actx).Error("unit_provision_failed", "error", err)
			if f.sleep(actx) != nil || !willRetry {
				break
			}
			continue
		}

		if f.traceDir != "" && attempt == 2 {
			f.startTrace(actx, s)
		}

		out.Phase = PhaseRunning
		err = f.runBody(actx, s, body)
		if err == nil {
			out.Phase = PhasePassed
			out.Err = nil
			if trace := f.finish(actx, s, attempt); trace != "" {
				out.Trace = trace
			}
			obs.From(actx).Info("unit_passed")
			break
		}

		out.Phase = PhaseFailed
		out.Err = err
		obs.From(actx).Warn("unit_failed", "error", err, "will_retry", willRetry)
		out.Screenshot, out.Archived = f.capture(actx, s)
		if trace := f.finish(actx, s, attempt); trace != "" {
			out.Trace = trace
		}
		_ = f.sleep(actx)
		if ctx.Err() != nil {
			break
		}
	}

	out.Duration = f.clock.Now().Sub(start)
	return out
}

func (f *Fixture) runBody(ctx context.Context, s *Session, body Body) error {
	if f.unitTimeout <= 0 {
		return body(ctx, s)
	}

	ctx, cancel := context.WithTimeout(ctx, f.unitTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- body(ctx, s) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.pending = done
		return fmt.Errorf("unit exceeded %s: %w", f.unitTimeout, ctx.Err())
	}
}

// capture screenshots the page and archives the file. Failures are logged,
// never returned.
func (f *Fixture) capture(ctx context.Context, s *Session) (path, key string) {
	log := obs.From(ctx).With("pkg", "fixture", "unit", s.Title)

	path = f.dir.FileFor(s.Title)
	if err := s.Page.Screenshot(path, true); err != nil {
		log.Error("failure_screenshot_failed", "path", path, "error", err)
		path = ""
	} else {
		log.Warn("failure_screenshot", "path", path)
	}

	if path != "" && f.archive != nil {
		k, err := f.archive.UploadFile(ctx, path)
		if err != nil {
			log.Error("failure_archive_failed", "path", path, "error", err)
		} else {
			key = k
			log.Info("failure_archived", "key", key)
		}
	}
	return path, key
}

func (f *Fixture) sleep(ctx context.Context) error {
	if f.cooldown <= 0 {
		return nil
	}
	log := obs.From(ctx).With("pkg", "fixture")
	log.Warn("failure_cooldown", "seconds", f.cooldown.Seconds())
	if err := f.clock.Sleep(ctx, f.cooldown); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Error("failure_cooldown_failed", "error", err)
		} else {
			log.Warn("failure_cooldown_interrupted", "error", err)
		}
		return err
	}
	return nil
}

func (f *Fixture) startTrace(ctx context.Context, s *Session) {
	tracer, ok := s.Context.(browser.Tracer)
	if !ok {
		return
	}
	if err := tracer.StartTracing(s.Title); err != nil {
		obs.From(ctx).With("pkg", "fixture").Warn("trace_start_failed", "error", err)
		return
	}
	s.tracing = true
}

// finish stops a running trace, closes the session and waits briefly for a
// body left running by a unit timeout. It returns the trace path, if any.
func (f *Fixture) finish(ctx context.Context, s *Session, attempt int) (trace string) {
	log := obs.From(ctx).With("pkg", "fixture", "unit", s.Title)

	if s.tracing {
		s.tracing = false
		path := filepath.Join(f.traceDir, fmt.Sprintf("%s-attempt%d.zip", SanitizeTitle(s.Title), attempt))
		if err := os.MkdirAll(f.traceDir, 0o755); err != nil {
			log.Warn("trace_dir_failed", "error", err)
		} else if err := s.Context.(browser.Tracer).StopTracing(path); err != nil {
			log.Warn("trace_stop_failed", "error", err)
		} else {
			trace = path
			log.Info("trace_saved", "path", path)
		}
	}

	f.closeSession(ctx, s)

	if s.pending != nil {
		timer := time.NewTimer(bodyGrace)
		defer timer.Stop()
		select {
		case <-s.pending:
		case <-timer.C:
			log.Error("unit_body_abandoned", "grace", bodyGrace)
		}
		s.pending = nil
	}
	return trace
}

func (f *Fixture) closeSession(ctx context.Context, s *Session) {
	if err := s.Context.Close(); err != nil {
		obs.From(ctx).With("pkg", "fixture").Warn("context_close_failed", "unit", s.Title, "error", err)
	}
}
