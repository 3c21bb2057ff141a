package main

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/kuitang/frontpage-e2e/internal/web"
)

func TestParseOptions_Defaults(t *testing.T) {
	opts, err := parseOptions(replicaFlags{})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.Recent != web.RecentPopulated || opts.Dates != web.DateElement || opts.LanguageLinks != web.LinkHref {
		t.Fatalf("zero flags should give the default site, got %+v", opts)
	}
}

func TestParseOptions_AllValues(t *testing.T) {
	opts, err := parseOptions(replicaFlags{
		recent:       "Empty",
		dates:        " text ",
		links:        "LABEL",
		noContact:    true,
		noSearch:     true,
		untranslated: true,
	})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	want := web.Options{
		Recent:             web.RecentEmpty,
		Dates:              web.DateText,
		LanguageLinks:      web.LinkLabel,
		NoContact:          true,
		NoSearch:           true,
		UntranslatedLabels: true,
	}
	if opts.Recent != want.Recent || opts.Dates != want.Dates || opts.LanguageLinks != want.LanguageLinks ||
		opts.NoContact != want.NoContact || opts.NoSearch != want.NoSearch || opts.UntranslatedLabels != want.UntranslatedLabels {
		t.Fatalf("got %+v, want %+v", opts, want)
	}
}

func TestParseOptions_RejectsUnknown_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		value := rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "value")
		known := map[string]bool{
			"populated": true, "empty": true, "missing": true,
			"element": true, "text": true, "none": true,
			"href": true, "label": true,
		}
		if known[value] {
			t.Skip("known value")
		}

		field := rapid.IntRange(0, 2).Draw(t, "field")
		f := replicaFlags{}
		switch field {
		case 0:
			f.recent = value
		case 1:
			f.dates = value
		default:
			f.links = value
		}

		_, err := parseOptions(f)
		if err == nil {
			t.Fatalf("expected error for %q in field %d", value, field)
		}
		if !strings.Contains(err.Error(), value) {
			t.Fatalf("error %q should name the value", err)
		}
	})
}
