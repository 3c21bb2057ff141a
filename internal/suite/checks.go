package suite

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/obs"
	"github.com/kuitang/frontpage-e2e/internal/pages"
	"github.com/kuitang/frontpage-e2e/internal/urlutil"
)

// FirstSectionHeading is the heading the frontpage leads with.
const FirstSectionHeading = "Research Results"

const firstHeadingSelector = ".random-records-frontpage h2"

// Check is one named verification of the frontpage.
type Check struct {
	Title string
	// FromHome loads the homepage before Verify runs.
	FromHome bool
	Verify   func(ctx context.Context, home *pages.HomePage) error
}

// Checks returns the frontpage suite in its canonical order.
func Checks() []Check {
	return []Check{
		{Title: "should load the homepage", Verify: loadsHomepage},
		{Title: "(1) should verify all section titles are present", FromHome: true, Verify: sectionTitlesPresent},
		{Title: "(2) should verify search functionality exists", FromHome: true, Verify: searchExists},
		{Title: "(3) should check German translated titles", FromHome: true, Verify: germanTitles},
		{Title: "(4) should verify contact us button exists", FromHome: true, Verify: contactButton},
		{Title: "(5) should verify recent upload items don't contain HTML tags", FromHome: true, Verify: recentUploadsMarkupFree},
		{Title: "(6) should verify publication dates exist for recent upload items", FromHome: true, Verify: recentUploadsDated},
	}
}

// Filter keeps the checks whose title contains substr. An empty substr keeps all.
func Filter(checks []Check, substr string) []Check {
	if substr == "" {
		return checks
	}
	var out []Check
	for _, c := range checks {
		if strings.Contains(c.Title, substr) {
			out = append(out, c)
		}
	}
	return out
}

func loadsHomepage(ctx context.Context, home *pages.HomePage) error {
	ui := home.Helper()
	page := ui.Page()
	if err := page.Goto(ui.BaseURL(), browser.GotoOptions{}); err != nil {
		return fmt.Errorf("goto %s: %w", ui.BaseURL(), err)
	}
	if err := page.WaitForLoadState(browser.LoadStateNetworkIdle); err != nil {
		return fmt.Errorf("wait for network idle: %w", err)
	}
	if !urlutil.SameOrigin(page.URL(), ui.BaseURL()) {
		return fmt.Errorf("page url %q is not on %q", page.URL(), ui.BaseURL())
	}

	heading := page.Locator(firstHeadingSelector).First()
	if _, err := ui.WaitForElement(firstHeadingSelector, 0); err != nil {
		return err
	}
	text, err := heading.TextContent()
	if err != nil {
		return fmt.Errorf("read first section heading: %w", err)
	}
	if got := strings.TrimSpace(text); got != FirstSectionHeading {
		return fmt.Errorf("first section heading = %q, want %q", got, FirstSectionHeading)
	}
	return nil
}

func sectionTitlesPresent(_ context.Context, home *pages.HomePage) error {
	var missing []string
	for _, title := range home.SectionTitles() {
		if !home.IsSectionTitleVisible(title) {
			missing = append(missing, title)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("section titles not visible: %s", strings.Join(missing, ", "))
	}
	return nil
}

func searchExists(_ context.Context, home *pages.HomePage) error {
	if !home.IsSearchInputVisible() {
		return fmt.Errorf("search input not visible")
	}
	if !home.IsSearchButtonVisible() {
		return fmt.Errorf("search button not visible")
	}
	return nil
}

func germanTitles(ctx context.Context, home *pages.HomePage) error {
	report, err := home.CheckTranslations()
	if err != nil {
		return err
	}
	log := obs.From(ctx).With("pkg", "suite")
	for _, res := range report.Results {
		log.Info("translation_result", "result", res.String(), "outcome", res.Outcome.String())
	}
	if len(report.Untranslated) > 0 {
		log.Info("untranslated_strings", "strings", report.Untranslated)
	}
	if report.TranslatedCount() < 1 {
		return fmt.Errorf("no section title translated: %s", report.Summary())
	}
	return nil
}

// contactButton only reports; the contact link is a configurable feature.
func contactButton(ctx context.Context, home *pages.HomePage) error {
	present, err := home.IsContactButtonPresent()
	if err != nil {
		return err
	}
	obs.From(ctx).Info("contact_button", "pkg", "suite", "present", present)
	return nil
}

func recentUploadsMarkupFree(_ context.Context, home *pages.HomePage) error {
	audit, err := home.AuditRecentUploads()
	if err != nil {
		return err
	}
	if !audit.MarkupFree() {
		f := audit.Markup[0]
		return fmt.Errorf("recent upload item %d contains markup %v: %q (%d items affected)", f.Index, f.Tags, f.Preview, len(audit.Markup))
	}
	return nil
}

func recentUploadsDated(_ context.Context, home *pages.HomePage) error {
	audit, err := home.AuditRecentUploads()
	if err != nil {
		return err
	}
	if !audit.DatesPresent() {
		return fmt.Errorf("recent uploads show no publication date element or date text")
	}
	return nil
}
