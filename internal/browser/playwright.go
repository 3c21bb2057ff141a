package browser

import (
	"fmt"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
)

// LaunchOptions configures the Playwright-backed browser.
type LaunchOptions struct {
	// Engine defaults to Chromium.
	Engine   Engine
	Headless bool
	// SkipInstall assumes drivers and browsers are already present.
	SkipInstall       bool
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
}

// Playwright is a Browser backed by a running playwright-go driver.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    LaunchOptions
}

// Launch starts the Playwright driver and launches opts.Engine.
func Launch(opts LaunchOptions) (*Playwright, error) {
	if opts.Engine == "" {
		opts.Engine = Chromium
	}
	if !opts.SkipInstall && os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{string(opts.Engine)}}); err != nil {
			return nil, fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	var bt playwright.BrowserType
	switch opts.Engine {
	case Firefox:
		bt = pw.Firefox
	case WebKit:
		bt = pw.WebKit
	default:
		bt = pw.Chromium
	}
	b, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch %s: %w", opts.Engine, err)
	}
	return &Playwright{pw: pw, browser: b, opts: opts}, nil
}

// Engine returns the engine this browser runs.
func (p *Playwright) Engine() Engine {
	return p.opts.Engine
}

// NewContext creates an isolated context with the configured default timeouts.
func (p *Playwright) NewContext(opts ContextOptions) (BrowserContext, error) {
	options := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
		IgnoreHttpsErrors: playwright.Bool(opts.IgnoreHTTPSErrors),
	}
	if opts.RecordVideoDir != "" {
		options.RecordVideo = &playwright.RecordVideo{Dir: opts.RecordVideoDir}
	}

	ctx, err := p.browser.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	if p.opts.ActionTimeout > 0 {
		ctx.SetDefaultTimeout(millis(p.opts.ActionTimeout))
	}
	if p.opts.NavigationTimeout > 0 {
		ctx.SetDefaultNavigationTimeout(millis(p.opts.NavigationTimeout))
	}
	return &pwContext{ctx: ctx}, nil
}

// Close shuts down the browser and the driver.
func (p *Playwright) Close() error {
	var firstErr error
	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			firstErr = err
		}
	}
	if p.pw != nil {
		if err := p.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

func (c *pwContext) StartTracing(title string) error {
	return c.ctx.Tracing().Start(playwright.TracingStartOptions{
		Title:       playwright.String(title),
		Screenshots: playwright.Bool(true),
		Snapshots:   playwright.Bool(true),
	})
}

func (c *pwContext) StopTracing(path string) error {
	return c.ctx.Tracing().Stop(path)
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, opts GotoOptions) error {
	options := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		options.WaitUntil = waitUntilState(opts.WaitUntil)
	}
	if opts.Timeout > 0 {
		options.Timeout = playwright.Float(millis(opts.Timeout))
	}
	_, err := p.page.Goto(url, options)
	return err
}

func (p *pwPage) Locator(selector string) Locator {
	return &pwLocator{loc: p.page.Locator(selector)}
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Screenshot(path string, fullPage bool) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	return err
}

func (p *pwPage) WaitForLoadState(state LoadState) error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: loadState(state),
	})
}

type pwLocator struct {
	loc playwright.Locator
}

func (l *pwLocator) WaitFor(state ElementState, timeout time.Duration) error {
	options := playwright.LocatorWaitForOptions{
		State: elementState(state),
	}
	if timeout > 0 {
		options.Timeout = playwright.Float(millis(timeout))
	}
	return l.loc.WaitFor(options)
}

func (l *pwLocator) Count() (int, error) {
	return l.loc.Count()
}

func (l *pwLocator) Nth(i int) Locator {
	return &pwLocator{loc: l.loc.Nth(i)}
}

func (l *pwLocator) First() Locator {
	return &pwLocator{loc: l.loc.First()}
}

func (l *pwLocator) Locator(selector string) Locator {
	return &pwLocator{loc: l.loc.Locator(selector)}
}

func (l *pwLocator) TextContent() (string, error) {
	return l.loc.TextContent()
}

// GetAttribute evaluates in the page because playwright-go maps a null
// attribute to "" and the harness needs to tell absent from empty.
func (l *pwLocator) GetAttribute(name string) (string, bool, error) {
	value, err := l.loc.Evaluate(`(el, name) => el.getAttribute(name)`, name)
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Sprint(value), true, nil
	}
	return s, true, nil
}

func (l *pwLocator) Click() error {
	return l.loc.Click()
}

func (l *pwLocator) Fill(value string) error {
	return l.loc.Fill(value)
}

func (l *pwLocator) IsVisible() (bool, error) {
	return l.loc.IsVisible()
}

func (l *pwLocator) ScrollIntoViewIfNeeded() error {
	return l.loc.ScrollIntoViewIfNeeded()
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

func waitUntilState(s LoadState) *playwright.WaitUntilState {
	switch s {
	case LoadStateLoad:
		return playwright.WaitUntilStateLoad
	case LoadStateDOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	default:
		return playwright.WaitUntilStateNetworkidle
	}
}

func loadState(s LoadState) *playwright.LoadState {
	switch s {
	case LoadStateLoad:
		return playwright.LoadStateLoad
	case LoadStateDOMContentLoaded:
		return playwright.LoadStateDomcontentloaded
	default:
		return playwright.LoadStateNetworkidle
	}
}

func elementState(s ElementState) *playwright.WaitForSelectorState {
	switch s {
	case StateAttached:
		return playwright.WaitForSelectorStateAttached
	case StateHidden:
		return playwright.WaitForSelectorStateHidden
	case StateDetached:
		return playwright.WaitForSelectorStateDetached
	default:
		return playwright.WaitForSelectorStateVisible
	}
}
