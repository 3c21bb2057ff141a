package web

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"pgregory.net/rapid"

	"github.com/kuitang/frontpage-e2e/internal/urlutil"
)

func mustSite(t *testing.T, opts Options) *Site {
	t.Helper()
	s, err := NewSite(opts)
	if err != nil {
		t.Fatalf("NewSite: %v", err)
	}
	return s
}

func mustDoc(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func headings(doc *goquery.Document) []string {
	var out []string
	doc.Find(".random-records-frontpage h2").Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

func TestRenderHome_SectionTitlesPerLanguage(t *testing.T) {
	s := mustSite(t, Options{})

	cases := map[string][]string{
		LangEnglish: {"Research Results", "Publications", "Educational Resources", "Recent Uploads"},
		LangGerman:  {"Forschungsergebnisse", "Publikationen", "Bildungsinhalte", "Kürzlich hochgeladene Dateien"},
	}
	for lang, want := range cases {
		page, err := s.RenderHome(lang)
		if err != nil {
			t.Fatalf("RenderHome(%s): %v", lang, err)
		}
		doc := mustDoc(t, page)
		got := headings(doc)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("%s headings = %v, want %v", lang, got, want)
		}
		if l, _ := doc.Find("html").Attr("lang"); l != lang {
			t.Errorf("html lang = %q, want %q", l, lang)
		}
	}
}

func TestRenderHome_SearchControls(t *testing.T) {
	doc := mustDoc(t, mustRender(t, Options{}, LangEnglish))
	if doc.Find(`input[placeholder="Search records..."]`).Length() != 1 {
		t.Error("search input missing")
	}
	if doc.Find("button.ui.icon.button.search").Length() != 1 {
		t.Error("search button missing")
	}

	doc = mustDoc(t, mustRender(t, Options{NoSearch: true}, LangEnglish))
	if doc.Find("input, button").Length() != 0 {
		t.Error("search controls rendered with NoSearch")
	}
}

func TestRenderHome_TitlesAreEscaped(t *testing.T) {
	opts := Options{Records: []Record{{Title: "Paper Title <b>2024</b>", Published: time.Now()}}}
	doc := mustDoc(t, mustRender(t, opts, LangEnglish))

	title := doc.Find(".random-records-frontpage h3.title").First().Text()
	if title != "Paper Title <b>2024</b>" {
		t.Errorf("title text = %q", title)
	}
	if doc.Find(".random-records-frontpage b").Length() != 0 {
		t.Error("title markup was rendered as an element")
	}
}

func TestRenderHome_MarkdownDescriptionIsRendered(t *testing.T) {
	opts := Options{Records: []Record{{Title: "x", Description: "Some **bold** text <script>alert(1)</script>"}}}
	doc := mustDoc(t, mustRender(t, opts, LangEnglish))

	desc := doc.Find(".description")
	if desc.Find("strong").Length() != 1 {
		t.Error("markdown emphasis not rendered")
	}
	if desc.Find("script").Length() != 0 {
		t.Error("script survived sanitizing")
	}
	if strings.Contains(desc.Text(), "<") {
		t.Errorf("description text contains markup: %q", desc.Text())
	}
}

func TestRenderHome_RecentStates(t *testing.T) {
	empty := mustDoc(t, mustRender(t, Options{Recent: RecentEmpty}, LangEnglish))
	if !strings.Contains(empty.Find(".random-records-frontpage").Text(), NoPublicRecordsMessage) {
		t.Error("empty state placeholder missing")
	}
	if n := empty.Find(".random-records-frontpage .ui.items .item").Length(); n != 0 {
		t.Errorf("empty state rendered %d record items", n)
	}
	populated := mustDoc(t, mustRender(t, Options{}, LangEnglish))
	if populated.Find(".random-records-frontpage .ui.items .item").Length() == 0 {
		t.Error("populated state rendered no record items")
	}

	missing := mustDoc(t, mustRender(t, Options{Recent: RecentMissing}, LangEnglish))
	if missing.Find(".random-records-frontpage").Length() != 0 {
		t.Error("missing state rendered the region")
	}
	if missing.Find("h2").Length() != 4 {
		t.Error("missing state dropped sections")
	}
}

var monthPattern = regexp.MustCompile(`(?i)(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)`)
var numericDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|\d{1,2}\.\d{1,2}\.\d{4}`)

func TestRenderHome_DateStyles(t *testing.T) {
	elements := mustDoc(t, mustRender(t, Options{Dates: DateElement}, LangEnglish))
	if elements.Find(".random-records-frontpage time[datetime]").Length() != 2 {
		t.Error("expected one <time> per record")
	}

	text := mustDoc(t, mustRender(t, Options{Dates: DateText}, LangEnglish))
	if text.Find("time, .date, [datetime]").Length() != 0 {
		t.Error("text dates rendered date elements")
	}
	if !numericDate.MatchString(text.Find(".random-records-frontpage").Text()) {
		t.Error("text dates not detectable by pattern")
	}

	none := mustDoc(t, mustRender(t, Options{Dates: DateNone}, LangEnglish))
	region := none.Find(".random-records-frontpage").Text()
	if monthPattern.MatchString(region) || numericDate.MatchString(region) {
		t.Errorf("DateNone region still looks dated: %q", region)
	}
}

func TestRenderHome_LanguageLinks(t *testing.T) {
	cases := []struct {
		style LinkStyle
		hrefs []string
	}{
		{LinkHref, []string{"/lang/en", "/lang/de"}},
		{LinkLabel, []string{"/language/en", "/language/de"}},
		{LinkNone, nil},
	}
	for _, tc := range cases {
		doc := mustDoc(t, mustRender(t, Options{LanguageLinks: tc.style}, LangEnglish))
		var got []string
		doc.Find(".language-selector a").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			got = append(got, href)
		})
		if strings.Join(got, ",") != strings.Join(tc.hrefs, ",") {
			t.Errorf("style %s hrefs = %v, want %v", tc.style, got, tc.hrefs)
		}
	}
}

func TestRenderHome_UntranslatedLabels(t *testing.T) {
	doc := mustDoc(t, mustRender(t, Options{UntranslatedLabels: true}, LangGerman))
	nav := doc.Find("nav").Text()
	for _, word := range []string{"Home", "Login", "Upload"} {
		if !strings.Contains(nav, word) {
			t.Errorf("nav %q missing untranslated %q", nav, word)
		}
	}
	if got := doc.Find("h2").First().Text(); got != "Forschungsergebnisse" {
		t.Errorf("sections should still be translated, got %q", got)
	}
}

func TestDocuments_RoutesByPath(t *testing.T) {
	docs, err := mustSite(t, Options{}).Documents()
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	for path, lang := range map[string]string{"/": "en", "/lang/en": "en", "/lang/de": "de", "/language/de": "de"} {
		page, ok := docs[path]
		if !ok {
			t.Fatalf("no document for %s", path)
		}
		if l, _ := mustDoc(t, page).Find("html").Attr("lang"); l != lang {
			t.Errorf("%s lang = %q, want %q", path, l, lang)
		}
	}
}

func TestHandler_LanguageCookieRoundTrip(t *testing.T) {
	server := httptest.NewServer(mustSite(t, Options{}).Handler())
	defer server.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	get := func(path string) (int, *goquery.Document) {
		t.Helper()
		resp, err := client.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.Header.Get("X-Request-Id") == "" {
			t.Errorf("GET %s: missing X-Request-Id", path)
		}
		return resp.StatusCode, mustDoc(t, string(body))
	}

	if _, doc := get("/"); doc.Find("h2").First().Text() != "Research Results" {
		t.Fatal("default language is not English")
	}
	if _, doc := get("/lang/de"); doc.Find("h2").First().Text() != "Forschungsergebnisse" {
		t.Fatal("German route did not switch language")
	}
	if _, doc := get("/"); doc.Find("h2").First().Text() != "Forschungsergebnisse" {
		t.Fatal("language did not persist")
	}
	if _, doc := get("/language/en"); doc.Find("h2").First().Text() != "Research Results" {
		t.Fatal("English route did not switch back")
	}
	if code, _ := get("/lang/xx"); code != http.StatusNotFound {
		t.Errorf("unknown language status = %d", code)
	}
	if code, _ := get("/nope"); code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", code)
	}
}

func TestRenderHome_NavFollowsRoutes(t *testing.T) {
	doc := mustDoc(t, mustRender(t, Options{}, LangEnglish))
	routes := urlutil.NewRoutes("")

	var hrefs []string
	doc.Find("nav.menu a.item").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hrefs = append(hrefs, href)
	})
	for _, want := range []string{routes.Base, routes.About, routes.NewUpload, routes.Login} {
		found := false
		for _, href := range hrefs {
			found = found || href == want
		}
		if !found {
			t.Errorf("nav %v lacks %q", hrefs, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "s")
		n := rapid.IntRange(0, 40).Draw(rt, "n")
		got := truncate(s, n)
		if len([]rune(got)) > n {
			rt.Fatalf("truncate(%q, %d) = %q is too long", s, n, got)
		}
		if len([]rune(s)) <= n && got != s {
			rt.Fatalf("short string changed: %q -> %q", s, got)
		}
	})
}

func mustRender(t *testing.T, opts Options, lang string) string {
	t.Helper()
	page, err := mustSite(t, opts).RenderHome(lang)
	if err != nil {
		t.Fatalf("RenderHome: %v", err)
	}
	return page
}
