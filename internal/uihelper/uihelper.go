// Package uihelper turns "is this on the page?" and "act on this" intents into
// bounded waits against a browser.Page.
//
// Probes (ElementExists, IsElementVisible, IsTextPresent) are fail-soft: a
// timeout or lookup error reports false. Actions that need the element to
// proceed (WaitForElement, ClickElement, FillInput, GetElementText) are
// fail-hard and return an errs.ElementNotVisible error when the element does
// not become visible in time.
package uihelper

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/errs"
	"github.com/kuitang/frontpage-e2e/internal/logutil"
	"github.com/kuitang/frontpage-e2e/internal/obs"
)

const (
	DefaultBaseURL        = "https://127.0.0.1/"
	DefaultWaitTimeout    = 5 * time.Second
	DefaultProbeTimeout   = 3 * time.Second
	HomeNavigationTimeout = 30 * time.Second
	DefaultScreenshotDir  = "screenshots"

	maxLoggedSelector = 120
)

// Helper wraps one page. It is not safe for concurrent use; each test unit
// owns its own page and helper.
type Helper struct {
	page          browser.Page
	baseURL       string
	waitTimeout   time.Duration
	probeTimeout  time.Duration
	screenshotDir string
	logger        *slog.Logger
}

// Option configures a Helper.
type Option func(*Helper)

// WithBaseURL sets the homepage URL used by NavigateToHome.
func WithBaseURL(u string) Option {
	return func(h *Helper) {
		if strings.TrimSpace(u) != "" {
			h.baseURL = u
		}
	}
}

// WithWaitTimeout sets the default timeout of hard waits.
func WithWaitTimeout(d time.Duration) Option {
	return func(h *Helper) {
		if d > 0 {
			h.waitTimeout = d
		}
	}
}

// WithProbeTimeout sets the timeout of soft probes.
func WithProbeTimeout(d time.Duration) Option {
	return func(h *Helper) {
		if d > 0 {
			h.probeTimeout = d
		}
	}
}

// WithScreenshotDir sets where TakeScreenshot writes.
func WithScreenshotDir(dir string) Option {
	return func(h *Helper) {
		if dir != "" {
			h.screenshotDir = dir
		}
	}
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(h *Helper) {
		if l != nil {
			h.logger = l
		}
	}
}

// New returns a Helper over page.
func New(page browser.Page, opts ...Option) *Helper {
	h := &Helper{
		page:          page,
		baseURL:       DefaultBaseURL,
		waitTimeout:   DefaultWaitTimeout,
		probeTimeout:  DefaultProbeTimeout,
		screenshotDir: DefaultScreenshotDir,
		logger:        obs.Pkg("uihelper"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Page returns the wrapped page.
func (h *Helper) Page() browser.Page {
	return h.page
}

// BaseURL returns the homepage URL.
func (h *Helper) BaseURL() string {
	return h.baseURL
}

// TextSelector returns a selector matching elements whose text is exactly text.
func TextSelector(text string) string {
	return "text=" + strconv.Quote(text)
}

// HasTextSelector narrows base to elements containing text, case-insensitively.
func HasTextSelector(base, text string) string {
	return base + ":has-text(" + strconv.Quote(text) + ")"
}

// NavigateToHome loads the homepage and waits for the network to go idle.
func (h *Helper) NavigateToHome() error {
	h.logger.Info("navigate_home", "url", logutil.RedactURL(h.baseURL))
	err := h.page.Goto(h.baseURL, browser.GotoOptions{
		WaitUntil: browser.LoadStateNetworkIdle,
		Timeout:   HomeNavigationTimeout,
	})
	if err != nil {
		return errs.Wrap(errs.NavigationFailed, fmt.Sprintf("navigate to %s", logutil.RedactURL(h.baseURL)), err)
	}
	return nil
}

// WaitForElement waits until selector is visible and returns its locator.
// A zero timeout uses the helper's wait timeout.
func (h *Helper) WaitForElement(selector string, timeout time.Duration) (browser.Locator, error) {
	if timeout <= 0 {
		timeout = h.waitTimeout
	}
	loc := h.page.Locator(selector)
	if err := loc.WaitFor(browser.StateVisible, timeout); err != nil {
		h.logWaitFailure(selector, timeout, err)
		return nil, errs.Wrap(errs.ElementNotVisible, fmt.Sprintf("element %q not visible within %s", selector, timeout), err)
	}
	return loc, nil
}

// ElementExists reports whether selector attaches within the probe timeout.
func (h *Helper) ElementExists(selector string) bool {
	err := h.page.Locator(selector).WaitFor(browser.StateAttached, h.probeTimeout)
	if err != nil {
		h.logger.Debug("probe_absent", "probe", "exists", "selector", logutil.TruncateForLog(selector, maxLoggedSelector))
		return false
	}
	return true
}

// IsElementVisible reports whether selector becomes visible within the probe timeout.
func (h *Helper) IsElementVisible(selector string) bool {
	loc := h.page.Locator(selector)
	if err := loc.WaitFor(browser.StateVisible, h.probeTimeout); err != nil {
		h.logger.Debug("probe_absent", "probe", "visible", "selector", logutil.TruncateForLog(selector, maxLoggedSelector))
		return false
	}
	visible, err := loc.IsVisible()
	return err == nil && visible
}

// IsTextPresent reports whether an element with exactly text becomes visible
// within the probe timeout.
func (h *Helper) IsTextPresent(text string) bool {
	err := h.page.Locator(TextSelector(text)).WaitFor(browser.StateVisible, h.probeTimeout)
	if err != nil {
		h.logger.Debug("probe_absent", "probe", "text", "text", logutil.TruncateForLog(text, maxLoggedSelector))
		return false
	}
	return true
}

// GetElementText waits for selector and returns its trimmed text; missing
// text content is "".
func (h *Helper) GetElementText(selector string) (string, error) {
	loc, err := h.WaitForElement(selector, 0)
	if err != nil {
		return "", err
	}
	text, err := loc.TextContent()
	if err != nil {
		return "", fmt.Errorf("read text of %q: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// GetAllElementTexts returns the trimmed, non-empty texts of every current
// match in document order. The DOM is not snapshotted, so a page mutating
// between calls can yield a mix of states.
func (h *Helper) GetAllElementTexts(selector string) ([]string, error) {
	loc := h.page.Locator(selector)
	count, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("count %q: %w", selector, err)
	}

	texts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		text, err := loc.Nth(i).TextContent()
		if err != nil {
			return texts, fmt.Errorf("read text of %q[%d]: %w", selector, i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

// GetAttributeValue returns the attribute of the first match; ok is false
// when the attribute is absent.
func (h *Helper) GetAttributeValue(selector, name string) (value string, ok bool, err error) {
	return h.page.Locator(selector).GetAttribute(name)
}

// ElementHasClass reports whether the class attribute contains className as a
// substring. It is not a token match: "foo" matches class="foobar".
func (h *Helper) ElementHasClass(selector, className string) (bool, error) {
	class, ok, err := h.GetAttributeValue(selector, "class")
	if err != nil {
		return false, err
	}
	return ok && strings.Contains(class, className), nil
}

// ClickElement waits for selector to be visible, then clicks it.
func (h *Helper) ClickElement(selector string) error {
	loc, err := h.WaitForElement(selector, 0)
	if err != nil {
		return err
	}
	if err := loc.Click(); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// FillInput waits for selector to be visible, then fills it with value.
func (h *Helper) FillInput(selector, value string) error {
	loc, err := h.WaitForElement(selector, 0)
	if err != nil {
		return err
	}
	if err := loc.Fill(value); err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

// ScrollToElement scrolls selector into view; it is a no-op when already visible.
func (h *Helper) ScrollToElement(selector string) error {
	return h.page.Locator(selector).ScrollIntoViewIfNeeded()
}

// TakeScreenshot writes a full-page capture to <dir>/<name>.png, replacing any
// existing file, and returns the path.
func (h *Helper) TakeScreenshot(name string) (string, error) {
	path := filepath.Join(h.screenshotDir, name+".png")
	if err := h.page.Screenshot(path, true); err != nil {
		return "", fmt.Errorf("screenshot %s: %w", path, err)
	}
	return path, nil
}

// WaitForPageLoad waits for the network-idle signal.
func (h *Helper) WaitForPageLoad() error {
	return h.page.WaitForLoadState(browser.LoadStateNetworkIdle)
}

// GetPageTitle returns the document title.
func (h *Helper) GetPageTitle() (string, error) {
	return h.page.Title()
}

// GetElements returns a locator over every match of selector.
func (h *Helper) GetElements(selector string) browser.Locator {
	return h.page.Locator(selector)
}

func (h *Helper) logWaitFailure(selector string, timeout time.Duration, err error) {
	title, titleErr := h.page.Title()
	if titleErr != nil {
		title = ""
	}
	h.logger.Warn("element_wait_failed",
		"selector", logutil.TruncateForLog(selector, maxLoggedSelector),
		"timeout_ms", timeout.Milliseconds(),
		"url", logutil.RedactURL(h.page.URL()),
		"title", logutil.TruncateForLog(title, maxLoggedSelector),
		"error", err,
	)
}
