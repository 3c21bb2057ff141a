package uihelper

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/browser/fakebrowser"
	"github.com/kuitang/frontpage-e2e/internal/errs"
	"github.com/kuitang/frontpage-e2e/internal/obs"
)

const baseURL = "https://repo.example.test/"

const homeDoc = `<html><head><title>Research Repository</title></head><body>
<h1 class="headline main">  Welcome home  </h1>
<h2 class="foobar">Research Results</h2>
<h2 hidden>Hidden Heading</h2>
<ul><li> alpha </li><li>   </li><li>beta</li></ul>
<input id="q" type="text" placeholder="Search records...">
<a id="next" href="/next">Next</a>
<p id="bare">x</p>
</body></html>`

func newHelper(t *testing.T, doc string, opts ...Option) (*Helper, *fakebrowser.Page) {
	t.Helper()
	site := fakebrowser.NewSite(baseURL)
	site.Handle("/", doc)
	site.Handle("/next", `<html><head><title>Next</title></head><body><h1>Next page</h1></body></html>`)
	bc, err := fakebrowser.New(site).NewContext(browser.ContextOptions{})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	pg, err := bc.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	page := pg.(*fakebrowser.Page)
	page.SetActionTimeout(50 * time.Millisecond)

	defaults := []Option{
		WithBaseURL(baseURL),
		WithWaitTimeout(60 * time.Millisecond),
		WithProbeTimeout(40 * time.Millisecond),
		WithScreenshotDir(t.TempDir()),
	}
	h := New(page, append(defaults, opts...)...)
	if err := h.NavigateToHome(); err != nil {
		t.Fatalf("NavigateToHome: %v", err)
	}
	return h, page
}

// =============================================================================
// Navigation
// =============================================================================

func TestNavigateToHome(t *testing.T) {
	h, page := newHelper(t, homeDoc)

	if got := page.Navigations(); len(got) != 1 || got[0] != baseURL {
		t.Fatalf("navigations = %v", got)
	}
	title, err := h.GetPageTitle()
	if err != nil || title != "Research Repository" {
		t.Errorf("title = %q, err = %v", title, err)
	}
}

func TestNavigateToHome_FailureIsCoded(t *testing.T) {
	h, _ := newHelper(t, homeDoc)
	h.baseURL = "https://unreachable.example.test/"

	err := h.NavigateToHome()
	if !errs.Is(err, errs.NavigationFailed) {
		t.Fatalf("err = %v, want navigation_failed", err)
	}
}

// =============================================================================
// Soft probes never fail
// =============================================================================

func testProbes_AbsentSelectorsReportFalse(t *rapid.T) {
	id := rapid.StringMatching(`[a-z]{4,12}`).Draw(t, "id")
	selector := "#missing-" + id

	h, _ := newHelperRapid(t, homeDoc)
	start := time.Now()
	if h.ElementExists(selector) {
		t.Fatalf("ElementExists(%q) = true", selector)
	}
	if h.IsElementVisible(selector) {
		t.Fatalf("IsElementVisible(%q) = true", selector)
	}
	if h.IsTextPresent("never-" + id) {
		t.Fatalf("IsTextPresent = true for absent text")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("probes took %s, exceeding their bound", elapsed)
	}
}

func TestProbes_AbsentSelectorsReportFalse(t *testing.T) {
	rapid.Check(t, testProbes_AbsentSelectorsReportFalse)
}

func TestProbes_PresentElements(t *testing.T) {
	h, _ := newHelper(t, homeDoc)

	if !h.ElementExists("h2[hidden]") {
		t.Error("hidden element should exist")
	}
	if h.IsElementVisible("h2[hidden]") {
		t.Error("hidden element should not be visible")
	}
	if !h.IsElementVisible("#q") {
		t.Error("input should be visible")
	}
	if !h.IsTextPresent("Research Results") {
		t.Error("section text should be present")
	}
	if h.IsTextPresent("Hidden Heading") {
		t.Error("hidden text should not count as present")
	}
	if h.IsTextPresent("Research") {
		t.Error("text probe should be exact")
	}
}

func TestProbes_InvalidSelectorIsSoft(t *testing.T) {
	h, _ := newHelper(t, homeDoc)

	if h.ElementExists("h2[") || h.IsElementVisible("h2[") {
		t.Fatal("malformed selector should probe false")
	}
}

// =============================================================================
// Hard waits
// =============================================================================

func TestWaitForElement_NotVisibleIsCoded(t *testing.T) {
	var logs bytes.Buffer
	restore := obs.SetOutputForTests(&logs)
	defer restore()

	h, _ := newHelper(t, homeDoc)

	_, err := h.WaitForElement("h2[hidden]", 0)
	if !errs.Is(err, errs.ElementNotVisible) {
		t.Fatalf("err = %v, want element_not_visible", err)
	}
	out := logs.String()
	for _, want := range []string{`"msg":"element_wait_failed"`, `"title":"Research Repository"`, `"url":"` + baseURL + `"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}
}

func TestWaitForElement_LateElement(t *testing.T) {
	h, page := newHelper(t, homeDoc)

	go func() {
		time.Sleep(10 * time.Millisecond)
		page.SetContent(`<html><body><div id="late">Loaded</div></body></html>`)
	}()
	loc, err := h.WaitForElement("#late", time.Second)
	if err != nil {
		t.Fatalf("WaitForElement: %v", err)
	}
	if n, _ := loc.Count(); n != 1 {
		t.Errorf("count = %d", n)
	}
}

func TestGetElementText_Trims(t *testing.T) {
	h, _ := newHelper(t, homeDoc)

	text, err := h.GetElementText("h1")
	if err != nil {
		t.Fatalf("GetElementText: %v", err)
	}
	if text != "Welcome home" {
		t.Errorf("text = %q", text)
	}
	if _, err := h.GetElementText("#missing"); !errs.Is(err, errs.ElementNotVisible) {
		t.Errorf("missing element err = %v", err)
	}
}

func TestGetAllElementTexts_DropsEmpties(t *testing.T) {
	h, _ := newHelper(t, homeDoc)

	texts, err := h.GetAllElementTexts("li")
	if err != nil {
		t.Fatalf("GetAllElementTexts: %v", err)
	}
	if strings.Join(texts, ",") != "alpha,beta" {
		t.Errorf("texts = %q", texts)
	}
	none, err := h.GetAllElementTexts("table td")
	if err != nil || len(none) != 0 {
		t.Errorf("no matches: %v, %v", none, err)
	}
}

// =============================================================================
// Attributes and classes
// =============================================================================

func TestGetAttributeValue(t *testing.T) {
	h, _ := newHelper(t, homeDoc)

	v, ok, err := h.GetAttributeValue("#q", "placeholder")
	if err != nil || !ok || v != "Search records..." {
		t.Errorf("placeholder = %q ok=%v err=%v", v, ok, err)
	}
	_, ok, err = h.GetAttributeValue("#q", "data-missing")
	if err != nil || ok {
		t.Errorf("absent attribute: ok=%v err=%v", ok, err)
	}
}

func TestElementHasClass_SubstringSemantics(t *testing.T) {
	h, _ := newHelper(t, homeDoc)

	for _, tc := range []struct {
		selector, class string
		want            bool
	}{
		{"h2.foobar", "foo", true},
		{"h2.foobar", "foobar", true},
		{"h1", "main", true},
		{"h1", "line ma", true},
		{"h1", "sidebar", false},
		{"#bare", "x", false},
	} {
		got, err := h.ElementHasClass(tc.selector, tc.class)
		if err != nil {
			t.Fatalf("ElementHasClass(%q, %q): %v", tc.selector, tc.class, err)
		}
		if got != tc.want {
			t.Errorf("ElementHasClass(%q, %q) = %v, want %v", tc.selector, tc.class, got, tc.want)
		}
	}
}

func testElementHasClass_AnySubstringMatches(t *rapid.T) {
	class := rapid.StringMatching(`[a-z]{2,10}( [a-z]{2,10}){0,2}`).Draw(t, "class")
	start := rapid.IntRange(0, len(class)-1).Draw(t, "start")
	end := rapid.IntRange(start+1, len(class)).Draw(t, "end")
	needle := class[start:end]

	h, _ := newHelperRapid(t, `<html><body><div id="target" class="`+class+`">x</div></body></html>`)
	got, err := h.ElementHasClass("#target", needle)
	if err != nil {
		t.Fatalf("ElementHasClass: %v", err)
	}
	if !got {
		t.Fatalf("ElementHasClass(class=%q, %q) = false", class, needle)
	}
}

func TestElementHasClass_AnySubstringMatches(t *testing.T) {
	rapid.Check(t, testElementHasClass_AnySubstringMatches)
}

// =============================================================================
// Actions
// =============================================================================

func TestClickElement_Navigates(t *testing.T) {
	h, page := newHelper(t, homeDoc)

	if err := h.ClickElement("#next"); err != nil {
		t.Fatalf("ClickElement: %v", err)
	}
	if err := h.WaitForPageLoad(); err != nil {
		t.Fatalf("WaitForPageLoad: %v", err)
	}
	if page.URL() != baseURL+"next" {
		t.Errorf("URL = %q", page.URL())
	}
	if page.LoadStateWaits() != 1 {
		t.Errorf("load waits = %d", page.LoadStateWaits())
	}
}

func TestClickAndFill_HiddenIsHardFailure(t *testing.T) {
	h, _ := newHelper(t, homeDoc)

	if err := h.ClickElement("h2[hidden]"); !errs.Is(err, errs.ElementNotVisible) {
		t.Errorf("click err = %v", err)
	}
	if err := h.FillInput("#nope", "x"); !errs.Is(err, errs.ElementNotVisible) {
		t.Errorf("fill err = %v", err)
	}
}

func TestFillInput(t *testing.T) {
	h, _ := newHelper(t, homeDoc)

	if err := h.FillInput("#q", "glacier"); err != nil {
		t.Fatalf("FillInput: %v", err)
	}
	v, _, _ := h.GetAttributeValue("#q", "value")
	if v != "glacier" {
		t.Errorf("value = %q", v)
	}
}

func TestScrollToElement(t *testing.T) {
	h, page := newHelper(t, homeDoc)

	if err := h.ScrollToElement("h1"); err != nil {
		t.Fatalf("ScrollToElement: %v", err)
	}
	if page.Scrolls() != 1 {
		t.Errorf("scrolls = %d", page.Scrolls())
	}
}

func TestTakeScreenshot_OverwritesByName(t *testing.T) {
	dir := t.TempDir()
	h, page := newHelper(t, homeDoc, WithScreenshotDir(dir))

	for i := 0; i < 2; i++ {
		path, err := h.TakeScreenshot("homepage")
		if err != nil {
			t.Fatalf("TakeScreenshot: %v", err)
		}
		if path != filepath.Join(dir, "homepage.png") {
			t.Errorf("path = %q", path)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("files = %d, want 1", len(entries))
	}
	if len(page.Screenshots()) != 2 {
		t.Errorf("screenshots taken = %d", len(page.Screenshots()))
	}
}

func TestGetElements_IsLazy(t *testing.T) {
	h, page := newHelper(t, homeDoc)

	loc := h.GetElements("li")
	if n, _ := loc.Count(); n != 3 {
		t.Fatalf("count = %d", n)
	}
	page.SetContent(`<html><body><ul><li>only</li></ul></body></html>`)
	if n, _ := loc.Count(); n != 1 {
		t.Errorf("count after mutation = %d, want 1", n)
	}
}

func TestSelectorBuilders(t *testing.T) {
	if got := TextSelector(`Say "hi"`); got != `text="Say \"hi\""` {
		t.Errorf("TextSelector = %s", got)
	}
	if got := HasTextSelector("h2", "Publications"); got != `h2:has-text("Publications")` {
		t.Errorf("HasTextSelector = %s", got)
	}
}

// newHelperRapid mirrors newHelper for property tests.
func newHelperRapid(t *rapid.T, doc string) (*Helper, *fakebrowser.Page) {
	site := fakebrowser.NewSite(baseURL)
	site.Handle("/", doc)
	bc, _ := fakebrowser.New(site).NewContext(browser.ContextOptions{})
	pg, _ := bc.NewPage()
	page := pg.(*fakebrowser.Page)
	page.SetActionTimeout(20 * time.Millisecond)
	h := New(page, WithBaseURL(baseURL), WithWaitTimeout(20*time.Millisecond), WithProbeTimeout(10*time.Millisecond))
	if err := h.NavigateToHome(); err != nil {
		t.Fatalf("NavigateToHome: %v", err)
	}
	return h, page
}
