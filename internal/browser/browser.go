// Package browser defines the capability boundary between the harness and a
// browser automation engine. The harness core only talks to these interfaces;
// Launch adapts playwright-go to them and fakebrowser provides an in-memory
// implementation for tests.
package browser

import (
	"fmt"
	"strings"
	"time"
)

// Engine is a browser engine Launch can start.
type Engine string

const (
	Chromium Engine = "chromium"
	Firefox  Engine = "firefox"
	WebKit   Engine = "webkit"
)

// ParseEngine accepts an engine name in any case.
func ParseEngine(name string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(name))); e {
	case Chromium, Firefox, WebKit:
		return e, nil
	default:
		return "", fmt.Errorf("unknown browser %q (want chromium, firefox or webkit)", name)
	}
}

// ElementState is the state a Locator can be waited for.
type ElementState string

const (
	StateAttached ElementState = "attached"
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
	StateDetached ElementState = "detached"
)

// LoadState is a page readiness signal.
type LoadState string

const (
	LoadStateLoad             LoadState = "load"
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewport is the desktop size every test session uses.
var DefaultViewport = Viewport{Width: 1920, Height: 1080}

// GotoOptions controls a navigation. A zero Timeout uses the engine default.
type GotoOptions struct {
	WaitUntil LoadState
	Timeout   time.Duration
}

// ContextOptions controls a new isolated browsing context.
type ContextOptions struct {
	Viewport          Viewport
	IgnoreHTTPSErrors bool
	RecordVideoDir    string
}

// Locator is a lazy handle bound to a selector. Every call re-resolves the
// selector against the live page; nothing is cached between calls.
type Locator interface {
	// WaitFor blocks until the first match reaches state or timeout elapses.
	WaitFor(state ElementState, timeout time.Duration) error
	Count() (int, error)
	Nth(i int) Locator
	First() Locator
	// Locator narrows to matches of selector inside this locator's matches.
	Locator(selector string) Locator
	// TextContent returns the element's text content; a null value is "".
	TextContent() (string, error)
	// GetAttribute reports ok=false when the attribute is absent.
	GetAttribute(name string) (value string, ok bool, err error)
	Click() error
	Fill(value string) error
	IsVisible() (bool, error)
	ScrollIntoViewIfNeeded() error
}

// Page is one tab inside a BrowserContext.
type Page interface {
	Goto(url string, opts GotoOptions) error
	Locator(selector string) Locator
	Title() (string, error)
	URL() string
	Screenshot(path string, fullPage bool) error
	WaitForLoadState(state LoadState) error
}

// BrowserContext is an isolated session with its own cookies and storage.
type BrowserContext interface {
	NewPage() (Page, error)
	Close() error
}

// Tracer is implemented by contexts that can record a replayable trace.
type Tracer interface {
	StartTracing(title string) error
	// StopTracing ends the trace and writes it as a zip archive to path.
	StopTracing(path string) error
}

// Browser creates isolated contexts.
type Browser interface {
	NewContext(opts ContextOptions) (BrowserContext, error)
}
