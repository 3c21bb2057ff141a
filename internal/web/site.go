package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/frontpage-e2e/internal/obs"
	"github.com/kuitang/frontpage-e2e/internal/urlutil"
)

// NoPublicRecordsMessage is the placeholder shown when nothing was uploaded.
const NoPublicRecordsMessage = "There are no public records to show"

// Languages served by the replica.
const (
	LangEnglish = "en"
	LangGerman  = "de"
)

const langCookie = "lang"

// RecentState selects what the recent uploads region shows.
type RecentState int

const (
	RecentPopulated RecentState = iota
	RecentEmpty
	// RecentMissing renders the sections without the recent uploads region class.
	RecentMissing
)

// DateStyle selects how record publication dates are rendered.
type DateStyle int

const (
	DateElement DateStyle = iota // <time datetime="...">
	DateText                     // plain text, only detectable by pattern
	DateNone
)

// LinkStyle selects how the language switcher is rendered.
type LinkStyle int

const (
	LinkHref  LinkStyle = iota // a[href="/lang/<code>"] with full language names
	LinkLabel                  // short EN/DE labels on /language/<code>
	LinkNone
)

func (s LinkStyle) String() string {
	switch s {
	case LinkHref:
		return "href"
	case LinkLabel:
		return "label"
	default:
		return "none"
	}
}

// Record is one recent upload.
type Record struct {
	Title       string
	Description string // markdown
	Published   time.Time
}

// Options shape the replica. The zero value is a fully translated site with
// populated, dated recent uploads.
type Options struct {
	Recent             RecentState
	Records            []Record
	Dates              DateStyle
	LanguageLinks      LinkStyle
	NoContact          bool
	NoSearch           bool
	UntranslatedLabels bool // German page keeps the English navigation labels
}

// DefaultRecords are the uploads shown when Options.Records is empty.
func DefaultRecords() []Record {
	return []Record{
		{
			Title:       "Alpine Glacier Mass Balance 2010-2023",
			Description: "Yearly **mass balance** figures for three alpine glaciers.",
			Published:   time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			Title:       "Teaching Notes on Finite Element Methods",
			Description: "Lecture notes with worked examples and exercises.",
			Published:   time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC),
		},
	}
}

type uiStrings struct {
	Title             string
	Home              string
	About             string
	Contact           string
	ContactPath       string
	Login             string
	Upload            string
	Search            string
	SearchPlaceholder string
	Sections          [4]string
	Blurbs            [4]string
	Published         string
}

var catalog = map[string]uiStrings{
	LangEnglish: {
		Title:             "Research Repository",
		Home:              "Home",
		About:             "About",
		Contact:           "Contact",
		ContactPath:       "/contact",
		Login:             "Login",
		Upload:            "Upload",
		Search:            "Search",
		SearchPlaceholder: "Search records...",
		Sections:          [4]string{"Research Results", "Publications", "Educational Resources", "Recent Uploads"},
		Blurbs: [4]string{
			"Datasets and software from our institutes.",
			"Articles, theses and reports.",
			"Slides, scripts and exercises for students.",
			"",
		},
		Published: "Published",
	},
	LangGerman: {
		Title:             "Forschungsrepositorium",
		Home:              "Startseite",
		About:             "Über uns",
		Contact:           "Kontakt",
		ContactPath:       "/kontakt",
		Login:             "Anmelden",
		Upload:            "Hochladen",
		Search:            "Suche",
		SearchPlaceholder: "Datensätze durchsuchen...",
		Sections:          [4]string{"Forschungsergebnisse", "Publikationen", "Bildungsinhalte", "Kürzlich hochgeladene Dateien"},
		Blurbs: [4]string{
			"Datensätze und Software aus unseren Instituten.",
			"Artikel, Abschlussarbeiten und Berichte.",
			"Folien, Skripten und Übungen für Studierende.",
			"",
		},
		Published: "Veröffentlicht",
	},
}

type link struct {
	Href  string
	Label string
}

type sectionData struct {
	ID    string
	Title string
	Blurb string
}

type homeData struct {
	Title        string
	Lang         string
	LangLinks    []link
	Nav          []link
	Search       string
	Placeholder  string
	ShowSearch   bool
	RecentRegion bool
	Sections     []sectionData
	Recent       sectionData
	Records      []Record
	Empty        bool
	EmptyMessage string
	Dates        DateStyle
	Published    string
}

var sectionIDs = [4]string{"research-results", "publications", "educational-resources", "recent-uploads"}

// Site renders the replica frontpage.
type Site struct {
	renderer *Renderer
	opts     Options
}

// NewSite builds a replica with the given options.
func NewSite(opts Options) (*Site, error) {
	r, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	if len(opts.Records) == 0 {
		opts.Records = DefaultRecords()
	}
	return &Site{renderer: r, opts: opts}, nil
}

// RenderHome renders the frontpage in lang.
func (s *Site) RenderHome(lang string) (string, error) {
	return s.renderer.RenderString("home.html", s.homeData(lang))
}

// Documents returns the frontpage documents keyed by path, for loading into
// a browser that routes by path alone. Language routes serve the page in
// their language instead of redirecting.
func (s *Site) Documents() (map[string]string, error) {
	docs := make(map[string]string)
	for _, lang := range []string{LangEnglish, LangGerman} {
		page, err := s.RenderHome(lang)
		if err != nil {
			return nil, err
		}
		docs[urlutil.LanguageRoute(lang)] = page
		docs["/language/"+lang] = page
		if lang == LangEnglish {
			docs["/"] = page
		}
	}
	return docs, nil
}

// Handler serves the replica over HTTP. The language is kept in a cookie set
// by the language routes, which redirect back to the frontpage.
func (s *Site) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return obs.AccessLogMiddleware("web", mux)
}

// RegisterRoutes registers the replica routes on mux.
func (s *Site) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.HandleHome)
	mux.HandleFunc("GET /lang/{code}", s.HandleLanguage)
	mux.HandleFunc("GET /language/{code}", s.HandleLanguage)
	mux.HandleFunc("/", s.HandleNotFound)
}

// HandleHome renders the frontpage in the cookie's language.
func (s *Site) HandleHome(w http.ResponseWriter, r *http.Request) {
	lang := LangEnglish
	if c, err := r.Cookie(langCookie); err == nil {
		if _, ok := catalog[c.Value]; ok {
			lang = c.Value
		}
	}
	if err := s.renderer.Render(w, "home.html", s.homeData(lang)); err != nil {
		obs.From(r.Context()).With("pkg", "web").Error("render_failed", "template", "home.html", "error", err)
		s.renderer.RenderError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// HandleLanguage stores the requested language and redirects to the frontpage.
func (s *Site) HandleLanguage(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(r.PathValue("code"))
	if _, ok := catalog[code]; !ok {
		s.renderer.RenderError(w, http.StatusNotFound, fmt.Sprintf("Unknown language %q", code))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: langCookie, Value: code, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleNotFound renders the 404 page.
func (s *Site) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderer.RenderError(w, http.StatusNotFound, "Page not found")
}

func (s *Site) homeData(lang string) homeData {
	ui, ok := catalog[lang]
	if !ok {
		lang = LangEnglish
		ui = catalog[lang]
	}
	nav := ui
	if lang != LangEnglish && s.opts.UntranslatedLabels {
		en := catalog[LangEnglish]
		nav.Home, nav.Login, nav.Upload, nav.Search = en.Home, en.Login, en.Upload, en.Search
	}

	data := homeData{
		Title:        ui.Title,
		Lang:         lang,
		LangLinks:    langLinks(s.opts.LanguageLinks),
		Search:       nav.Search,
		Placeholder:  ui.SearchPlaceholder,
		ShowSearch:   !s.opts.NoSearch,
		RecentRegion: s.opts.Recent != RecentMissing,
		Records:      s.opts.Records,
		Empty:        s.opts.Recent == RecentEmpty,
		EmptyMessage: NoPublicRecordsMessage,
		Dates:        s.opts.Dates,
		Published:    ui.Published,
	}

	routes := urlutil.NewRoutes("")
	data.Nav = []link{{Href: routes.Base, Label: nav.Home}, {Href: routes.About, Label: ui.About}}
	if !s.opts.NoContact {
		data.Nav = append(data.Nav, link{Href: ui.ContactPath, Label: ui.Contact})
	}
	data.Nav = append(data.Nav, link{Href: routes.NewUpload, Label: nav.Upload}, link{Href: routes.Login, Label: nav.Login})

	for i := 0; i < 3; i++ {
		data.Sections = append(data.Sections, sectionData{ID: sectionIDs[i], Title: ui.Sections[i], Blurb: ui.Blurbs[i]})
	}
	data.Recent = sectionData{ID: sectionIDs[3], Title: ui.Sections[3]}
	return data
}

func langLinks(style LinkStyle) []link {
	switch style {
	case LinkHref:
		return []link{
			{Href: urlutil.LanguageRoute(LangEnglish), Label: "English"},
			{Href: urlutil.LanguageRoute(LangGerman), Label: "Deutsch"},
		}
	case LinkLabel:
		return []link{
			{Href: "/language/" + LangEnglish, Label: "EN"},
			{Href: "/language/" + LangGerman, Label: "DE"},
		}
	default:
		return nil
	}
}
