package pages

import (
	"fmt"
	"strings"
)

// TranslationOutcome classifies one TranslationEntry after switching language.
type TranslationOutcome int

const (
	// Unchecked entries were never looked for on the alternate page.
	Unchecked TranslationOutcome = iota
	Translated
	StillOriginal
	Missing
)

func (o TranslationOutcome) String() string {
	switch o {
	case Translated:
		return "translated"
	case StillOriginal:
		return "still_original"
	case Missing:
		return "missing"
	default:
		return "unchecked"
	}
}

// TranslationResult is the outcome for one entry.
type TranslationResult struct {
	Entry    TranslationEntry
	Original string // default-language text seen before switching, "" if absent
	Outcome  TranslationOutcome
}

func (r TranslationResult) String() string {
	switch r.Outcome {
	case Translated:
		return r.Entry.Expected
	case StillOriginal:
		return "Still English: " + r.Original
	case Missing:
		return "Element not found: " + r.Entry.Expected
	default:
		return "Not checked: " + r.Entry.Expected
	}
}

// TranslationReport is the result of CheckTranslations.
type TranslationReport struct {
	Results      []TranslationResult
	Untranslated []string
}

// TranslatedCount returns how many entries were found translated.
func (r TranslationReport) TranslatedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == Translated {
			n++
		}
	}
	return n
}

// CheckedCount returns how many entries were classified on the alternate page.
func (r TranslationReport) CheckedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome != Unchecked {
			n++
		}
	}
	return n
}

// Summary renders the checked entries as "translated/checked: result; result".
// Unchecked entries are left out.
func (r TranslationReport) Summary() string {
	var parts []string
	for _, res := range r.Results {
		if res.Outcome != Unchecked {
			parts = append(parts, res.String())
		}
	}
	return fmt.Sprintf("%d/%d: %s", r.TranslatedCount(), r.CheckedCount(), strings.Join(parts, "; "))
}

// CheckTranslations records the default-language section texts, switches to
// the alternate language, classifies each entry, audits leftover
// default-language words, and switches back. A language switch failure is
// returned together with whatever was collected.
func (p *HomePage) CheckTranslations() (TranslationReport, error) {
	entries := p.TranslationEntries()
	report := TranslationReport{Results: make([]TranslationResult, len(entries))}

	for i, entry := range entries {
		report.Results[i].Entry = entry
		first := p.page.Locator(entry.Selector).First()
		count, err := first.Count()
		if err != nil {
			return report, fmt.Errorf("count %q: %w", entry.Selector, err)
		}
		if count == 0 {
			continue
		}
		text, err := first.TextContent()
		if err != nil {
			return report, fmt.Errorf("read %q: %w", entry.Selector, err)
		}
		report.Results[i].Original = strings.TrimSpace(text)
	}

	if err := p.ChangeLanguageToAlternate(); err != nil {
		return report, err
	}

	for i, entry := range entries {
		translated, err := p.CheckForTranslation(entry.Expected)
		if err != nil {
			return report, err
		}
		switch {
		case translated:
			report.Results[i].Outcome = Translated
		default:
			count, err := p.page.Locator(entry.Selector).Count()
			if err != nil {
				return report, fmt.Errorf("count %q: %w", entry.Selector, err)
			}
			if count > 0 {
				report.Results[i].Outcome = StillOriginal
			} else {
				report.Results[i].Outcome = Missing
			}
		}
	}

	untranslated, err := p.CheckForUntranslatedStrings()
	if err != nil {
		return report, err
	}
	report.Untranslated = untranslated

	p.logger.Info("translation_report",
		"translated", report.TranslatedCount(),
		"total", len(report.Results),
		"summary", report.Summary(),
		"untranslated", untranslated,
	)

	if err := p.ChangeLanguageToDefault(); err != nil {
		return report, err
	}
	return report, nil
}
