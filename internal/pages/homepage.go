// Package pages holds page objects: the structural and localization contract
// of a page, expressed without leaking selectors to the checks that use it.
package pages

import (
	"fmt"
	"log/slog"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/errs"
	"github.com/kuitang/frontpage-e2e/internal/obs"
	"github.com/kuitang/frontpage-e2e/internal/uihelper"
	"github.com/kuitang/frontpage-e2e/internal/urlutil"
)

const (
	SearchInputSelector  = `input[placeholder="Search records..."]`
	SearchButtonSelector = "button.ui.icon.button.search"
)

// TranslationEntry pairs a selector for a section in the default language
// with the literal expected once the alternate language is active.
type TranslationEntry struct {
	Selector string
	Expected string
}

// sectionTranslations is ordered as SectionTitles.
var sectionTranslations = []struct{ title, german string }{
	{"Research Results", "Forschungsergebnisse"},
	{"Publications", "Publikationen"},
	{"Educational Resources", "Bildungsinhalte"},
	{"Recent Uploads", "Kürzlich hochgeladene Dateien"},
}

// untranslatedVocabulary are default-language words expected to disappear
// once the alternate language is active.
var untranslatedVocabulary = []string{
	"Search", "Login", "Home", "About", "Contact", "Upload",
	"Download", "View", "Edit", "Delete", "Save", "Cancel",
}

var contactSelectors = []string{
	`a[href*="contact"]`,
	`a[href*="kontakt"]`,
	uihelper.HasTextSelector("button", "Contact"),
	uihelper.HasTextSelector("a", "Contact"),
}

// HomePage is the repository frontpage.
type HomePage struct {
	ui     *uihelper.Helper
	page   browser.Page
	logger *slog.Logger
}

// NewHomePage returns the page object over ui's page.
func NewHomePage(ui *uihelper.Helper) *HomePage {
	return &HomePage{ui: ui, page: ui.Page(), logger: obs.Pkg("pages")}
}

// Helper returns the query helper the page object uses.
func (p *HomePage) Helper() *uihelper.Helper {
	return p.ui
}

func (p *HomePage) NavigateToHome() error {
	return p.ui.NavigateToHome()
}

// SectionTitles are the headings every frontpage must show.
func (p *HomePage) SectionTitles() []string {
	titles := make([]string, len(sectionTranslations))
	for i, s := range sectionTranslations {
		titles[i] = s.title
	}
	return titles
}

// TranslationEntries returns the localization contract of the section headings.
func (p *HomePage) TranslationEntries() []TranslationEntry {
	entries := make([]TranslationEntry, len(sectionTranslations))
	for i, s := range sectionTranslations {
		entries[i] = TranslationEntry{
			Selector: uihelper.HasTextSelector("h2", s.title),
			Expected: s.german,
		}
	}
	return entries
}

// ChangeLanguageToAlternate switches the UI to German through the language
// route link or, failing that, a link labelled with the language. It fails
// with errs.LanguageControlNotFound when neither exists.
func (p *HomePage) ChangeLanguageToAlternate() error {
	strategies := []Strategy{
		p.languageLink("route", fmt.Sprintf(`a[href=%q]`, urlutil.LanguageRoute("de"))),
		p.languageLink("label", uihelper.HasTextSelector("a", "DE")+", "+uihelper.HasTextSelector("a", "Deutsch")),
	}
	name, err := RunStrategies(p.page, strategies)
	if errs.Is(err, errs.NoStrategyMatched) {
		p.logger.Warn("language_switch_failed", "target", "de", "error", err)
		return errs.Wrap(errs.LanguageControlNotFound, "no German language link found", err)
	}
	if err != nil {
		return fmt.Errorf("switch language to de: %w", err)
	}
	p.logger.Info("language_switched", "target", "de", "strategy", name)
	return nil
}

// ChangeLanguageToDefault switches back to English. Without any English
// control it navigates to the site root, which also lands on the default
// language, so calling it in the default state succeeds.
func (p *HomePage) ChangeLanguageToDefault() error {
	root := urlutil.BuildAbsolute(p.ui.BaseURL(), "/")
	strategies := []Strategy{
		p.languageLink("route", fmt.Sprintf(`a[href=%q]`, urlutil.LanguageRoute("en"))),
		p.languageLink("label", uihelper.HasTextSelector("a", "EN")+", "+uihelper.HasTextSelector("a", "English")),
		{Name: "root", Apply: func(browser.Locator) error {
			if err := p.page.Goto(root, browser.GotoOptions{}); err != nil {
				return errs.Wrap(errs.NavigationFailed, "navigate to "+root, err)
			}
			return p.page.WaitForLoadState(browser.LoadStateNetworkIdle)
		}},
	}
	name, err := RunStrategies(p.page, strategies)
	if err != nil {
		p.logger.Warn("language_reset_failed", "target", "en", "error", err)
		return fmt.Errorf("reset language to en: %w", err)
	}
	p.logger.Info("language_switched", "target", "en", "strategy", name)
	return nil
}

func (p *HomePage) languageLink(name, selector string) Strategy {
	return Strategy{Name: name, Selector: selector, Apply: func(link browser.Locator) error {
		if err := link.Click(); err != nil {
			return err
		}
		return p.page.WaitForLoadState(browser.LoadStateNetworkIdle)
	}}
}

// CheckForUntranslatedStrings returns the default-language keywords still
// present as exact element text. It is a diagnostic, not a verdict.
func (p *HomePage) CheckForUntranslatedStrings() ([]string, error) {
	var found []string
	for _, word := range untranslatedVocabulary {
		count, err := p.page.Locator(uihelper.TextSelector(word)).Count()
		if err != nil {
			return found, fmt.Errorf("count %q: %w", word, err)
		}
		if count > 0 {
			found = append(found, word)
		}
	}
	return found, nil
}

// CheckForTranslation reports whether any element has exactly text.
func (p *HomePage) CheckForTranslation(text string) (bool, error) {
	count, err := p.page.Locator(uihelper.TextSelector(text)).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *HomePage) IsSectionTitleVisible(title string) bool {
	return p.ui.IsElementVisible(uihelper.HasTextSelector("h2", title))
}

func (p *HomePage) IsSearchInputVisible() bool {
	return p.ui.IsElementVisible(SearchInputSelector)
}

func (p *HomePage) IsSearchButtonVisible() bool {
	return p.ui.IsElementVisible(SearchButtonSelector)
}

// IsContactButtonPresent reports whether any contact link or button exists.
// The contact page is optional, so absence is not an error.
func (p *HomePage) IsContactButtonPresent() (bool, error) {
	return AnyMatches(p.page, contactSelectors...)
}
