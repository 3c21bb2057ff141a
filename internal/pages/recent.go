package pages

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/logutil"
	"github.com/kuitang/frontpage-e2e/internal/uihelper"
)

const (
	RecentUploadsSelector   = ".random-records-frontpage"
	RecentContentSelector   = "h3, .title, .description, p"
	NoPublicRecordsText     = "There are no public records to show"
	maxFindingPreviewLength = 160
)

var dateSelectors = []string{".date", "time", "[datetime]", ".publication-date"}

var markupPattern = regexp.MustCompile(`<[^>]*>`)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{4}`),
	regexp.MustCompile(`(?i)(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)`),
}

var stripPolicy = bluemonday.StrictPolicy()

// MarkupFinding is a content node whose visible text contains markup.
type MarkupFinding struct {
	Index   int      // position among RecentUploadsContentElements
	Text    string   // trimmed text, truncated for logs
	Tags    []string // the markup-looking substrings
	Preview string   // the text with markup stripped
}

// RecentUploadsAudit is the combined verdict on the recent uploads region.
type RecentUploadsAudit struct {
	Present         bool // region exists
	Empty           bool // placeholder shown
	Markup          []MarkupFinding
	HasDateElements bool
	HasDatePatterns bool // only evaluated when HasDateElements is false
}

// MarkupFree reports whether no content node shows raw markup. A missing or
// empty region passes trivially.
func (a RecentUploadsAudit) MarkupFree() bool {
	return !a.Present || a.Empty || len(a.Markup) == 0
}

// DatesPresent reports whether a publication date is recognizable. A missing
// or empty region passes trivially.
func (a RecentUploadsAudit) DatesPresent() bool {
	return !a.Present || a.Empty || a.HasDateElements || a.HasDatePatterns
}

func (p *HomePage) RecentUploadsSection() browser.Locator {
	return p.page.Locator(RecentUploadsSelector)
}

// HasRecentUploadsSection reports whether the region is rendered at all.
func (p *HomePage) HasRecentUploadsSection() (bool, error) {
	count, err := p.RecentUploadsSection().Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasNoPublicRecordsMessage reports whether the region shows the empty-state
// placeholder.
func (p *HomePage) HasNoPublicRecordsMessage() (bool, error) {
	count, err := p.RecentUploadsSection().Locator(uihelper.HasTextSelector("", NoPublicRecordsText)).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *HomePage) RecentUploadsContentElements() browser.Locator {
	return p.RecentUploadsSection().Locator(RecentContentSelector)
}

// HasDateElements reports whether the region contains a date-semantic element.
func (p *HomePage) HasDateElements() (bool, error) {
	return AnyMatches(p.RecentUploadsSection(), dateSelectors...)
}

// CheckDatePatternsInText reports whether the region's text contains an ISO,
// slash, dot or month-abbreviation date.
func (p *HomePage) CheckDatePatternsInText() (bool, error) {
	text, err := p.RecentUploadsSection().First().TextContent()
	if err != nil {
		return false, fmt.Errorf("read recent uploads text: %w", err)
	}
	return ContainsDatePattern(text), nil
}

// ContainsDatePattern reports whether text matches any of the date shapes.
func ContainsDatePattern(text string) bool {
	for _, re := range datePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// FindMarkupInContent returns every content node whose text contains
// something shaped like a tag.
func (p *HomePage) FindMarkupInContent() ([]MarkupFinding, error) {
	elements := p.RecentUploadsContentElements()
	count, err := elements.Count()
	if err != nil {
		return nil, fmt.Errorf("count recent upload content: %w", err)
	}

	var findings []MarkupFinding
	for i := 0; i < count; i++ {
		text, err := elements.Nth(i).TextContent()
		if err != nil {
			return findings, fmt.Errorf("read recent upload content %d: %w", i, err)
		}
		if finding, ok := FindMarkup(text); ok {
			finding.Index = i
			findings = append(findings, finding)
		}
	}
	return findings, nil
}

// FindMarkup inspects one text for markup-looking substrings.
func FindMarkup(text string) (MarkupFinding, bool) {
	text = strings.TrimSpace(text)
	tags := markupPattern.FindAllString(text, -1)
	if len(tags) == 0 {
		return MarkupFinding{}, false
	}
	return MarkupFinding{
		Text:    logutil.TruncateForLog(text, maxFindingPreviewLength),
		Tags:    tags,
		Preview: logutil.TruncateForLog(stripPolicy.Sanitize(text), maxFindingPreviewLength),
	}, true
}

// AuditRecentUploads runs the region checks. A missing region or the
// empty-state placeholder short-circuits the markup and date checks.
func (p *HomePage) AuditRecentUploads() (RecentUploadsAudit, error) {
	var audit RecentUploadsAudit

	present, err := p.HasRecentUploadsSection()
	if err != nil || !present {
		return audit, err
	}
	audit.Present = true

	if audit.Empty, err = p.HasNoPublicRecordsMessage(); err != nil || audit.Empty {
		if audit.Empty {
			p.logger.Info("recent_uploads_empty")
		}
		return audit, err
	}

	if audit.Markup, err = p.FindMarkupInContent(); err != nil {
		return audit, err
	}
	for _, f := range audit.Markup {
		p.logger.Warn("recent_uploads_markup", "index", f.Index, "text", f.Text, "tags", f.Tags)
	}

	if audit.HasDateElements, err = p.HasDateElements(); err != nil {
		return audit, err
	}
	if !audit.HasDateElements {
		if audit.HasDatePatterns, err = p.CheckDatePatternsInText(); err != nil {
			return audit, err
		}
	}
	return audit, nil
}
