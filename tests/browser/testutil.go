// Package browser provides Playwright scenarios for the frontpage checks.
// Every scenario serves the frontpage replica over httptest, or targets
// BASE_URL when it is set, and drives it with a real browser. TEST_BROWSER
// picks the engine (chromium by default).
package browser

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/fixture"
	"github.com/kuitang/frontpage-e2e/internal/pages"
	"github.com/kuitang/frontpage-e2e/internal/uihelper"
	"github.com/kuitang/frontpage-e2e/internal/web"
)

const (
	// CODING AGENT RULE: Always use these timeout constants for browser tests.
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeout = 5 * time.Second
	browserProbe      = 1 * time.Second
)

var (
	sharedMu      sync.Mutex
	sharedBrowser *browser.Playwright
	sharedErr     error
)

// BrowserTestEnv is one target site plus the shared browser.
type BrowserTestEnv struct {
	Server  *httptest.Server // nil when targeting BASE_URL
	BaseURL string
	Browser *browser.Playwright
	Fixture *fixture.Fixture
}

// SetupBrowserTestEnv serves a replica built from opts and returns an env
// bound to the shared browser. It skips under -short or without Playwright.
func SetupBrowserTestEnv(t *testing.T, opts web.Options) *BrowserTestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	pw := initBrowser(t)

	site, err := web.NewSite(opts)
	require.NoError(t, err)
	server := httptest.NewServer(site.Handler())
	t.Cleanup(server.Close)

	return newEnv(t, pw, server, server.URL+"/")
}

// SetupLiveTestEnv targets BASE_URL and skips when it is unset.
func SetupLiveTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	base := strings.TrimSpace(os.Getenv("BASE_URL"))
	if base == "" {
		t.Skip("BASE_URL not set")
	}
	return newEnv(t, initBrowser(t), nil, base)
}

func newEnv(t *testing.T, pw *browser.Playwright, server *httptest.Server, base string) *BrowserTestEnv {
	t.Helper()
	dir, err := fixture.NewScreenshotDir(filepath.Join(t.TempDir(), "screenshots"))
	require.NoError(t, err)

	fix := fixture.New(pw, dir,
		fixture.WithCooldown(0),
		fixture.WithContextOptions(browser.ContextOptions{
			Viewport:          browser.DefaultViewport,
			IgnoreHTTPSErrors: true,
		}),
	)
	return &BrowserTestEnv{Server: server, BaseURL: base, Browser: pw, Fixture: fix}
}

// initBrowser launches the test engine once per package run.
func initBrowser(t *testing.T) *browser.Playwright {
	t.Helper()

	engine := browser.Chromium
	if name := os.Getenv("TEST_BROWSER"); name != "" {
		var err error
		engine, err = browser.ParseEngine(name)
		require.NoError(t, err)
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedBrowser == nil && sharedErr == nil {
		sharedBrowser, sharedErr = browser.Launch(browser.LaunchOptions{
			Engine:            engine,
			Headless:          true,
			SkipInstall:       true,
			ActionTimeout:     browserMaxTimeout,
			NavigationTimeout: browserMaxTimeout,
		})
	}
	if sharedErr != nil {
		t.Skip("Playwright not available:", sharedErr)
	}
	return sharedBrowser
}

func TestMain(m *testing.M) {
	code := m.Run()
	sharedMu.Lock()
	if sharedBrowser != nil {
		_ = sharedBrowser.Close()
	}
	sharedMu.Unlock()
	os.Exit(code)
}

// HomePage provisions a session for t and returns the frontpage object
// already loaded.
func (env *BrowserTestEnv) HomePage(t *testing.T) (*pages.HomePage, *fixture.Session) {
	t.Helper()

	s := env.Fixture.Provision(t)
	ui := uihelper.New(s.Page,
		uihelper.WithBaseURL(env.BaseURL),
		uihelper.WithWaitTimeout(browserMaxTimeout),
		uihelper.WithProbeTimeout(browserProbe),
		uihelper.WithScreenshotDir(env.Fixture.Dir().Path()),
	)
	home := pages.NewHomePage(ui)
	require.NoError(t, home.NavigateToHome())
	return home, s
}
