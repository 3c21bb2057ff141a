package browser_test

import (
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/browser/fakebrowser"
)

func newPage(t *testing.T) *fakebrowser.Page {
	t.Helper()
	site := fakebrowser.NewSite("https://example.test")
	site.Handle("/", `<html><body><h2>Home</h2></body></html>`)
	bc, err := fakebrowser.New(site).NewContext(browser.ContextOptions{Viewport: browser.DefaultViewport})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	pg, err := bc.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	return pg.(*fakebrowser.Page)
}

func TestThrottle_NilLimiterReturnsPage(t *testing.T) {
	page := newPage(t)
	if got := browser.Throttle(page, nil, time.Second); got != browser.Page(page) {
		t.Fatal("nil limiter should return the page unchanged")
	}
}

func TestThrottle_PacesNavigations(t *testing.T) {
	page := newPage(t)
	throttled := browser.Throttle(page, rate.NewLimiter(rate.Every(30*time.Millisecond), 1), time.Second)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := throttled.Goto("https://example.test/", browser.GotoOptions{}); err != nil {
			t.Fatalf("Goto %d: %v", i, err)
		}
	}
	// The first navigation uses the burst; the next two wait one interval each.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("3 navigations took %s, want at least two intervals", elapsed)
	}
	if n := len(page.Navigations()); n != 3 {
		t.Errorf("navigations = %d, want 3", n)
	}
}

func TestThrottle_MaxWaitExceeded(t *testing.T) {
	page := newPage(t)
	throttled := browser.Throttle(page, rate.NewLimiter(rate.Every(time.Hour), 1), 10*time.Millisecond)

	if err := throttled.Goto("https://example.test/", browser.GotoOptions{}); err != nil {
		t.Fatalf("first Goto: %v", err)
	}
	if err := throttled.Goto("https://example.test/", browser.GotoOptions{}); err == nil {
		t.Fatal("expected throttle error past max wait")
	}
	if n := len(page.Navigations()); n != 1 {
		t.Errorf("navigations = %d, want 1", n)
	}
}

func TestNewNavigationLimiter(t *testing.T) {
	if browser.NewNavigationLimiter(0) != nil {
		t.Error("rps 0 should disable the limiter")
	}
	l := browser.NewNavigationLimiter(2)
	if l == nil || l.Limit() != 2 || l.Burst() != 1 {
		t.Errorf("limiter = %+v", l)
	}
}
