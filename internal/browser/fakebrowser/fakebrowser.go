// Package fakebrowser is an in-memory implementation of the browser
// capability interfaces. Pages are parsed HTML documents served from a Site;
// locators re-query the live document on every call, links navigate on click,
// and screenshots are tiny PNG files, so the harness core can be exercised
// without a real browser.
package fakebrowser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/logutil"
)

const (
	pollInterval         = 5 * time.Millisecond
	defaultActionTimeout = 200 * time.Millisecond
	maxDescribedText     = 40
)

// ErrClosed is returned by pages whose context has been closed.
var ErrClosed = errors.New("target page, context or browser has been closed")

const notFoundHTML = `<html><head><title>404 Not Found</title></head><body><h1>Not Found</h1></body></html>`

// Site is a set of routes shared by every page of a Browser.
type Site struct {
	mu      sync.RWMutex
	baseURL *url.URL
	routes  map[string]string
}

// NewSite returns an empty site rooted at baseURL.
func NewSite(baseURL string) *Site {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		u = &url.URL{Scheme: "https", Host: "127.0.0.1", Path: "/"}
	}
	return &Site{baseURL: u, routes: make(map[string]string)}
}

// Handle registers the document served at path.
func (s *Site) Handle(path, document string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = document
}

// BaseURL returns the site root with a trailing slash.
func (s *Site) BaseURL() string {
	u := *s.baseURL
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

func (s *Site) lookup(raw string, from *url.URL) (*url.URL, string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	base := s.baseURL
	if from != nil {
		base = from
	}
	target := base.ResolveReference(ref)
	path := target.Path
	if path == "" {
		path = "/"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if target.Host != s.baseURL.Host {
		return nil, "", fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", target)
	}
	document, ok := s.routes[path]
	if !ok {
		document = notFoundHTML
	}
	return target, document, nil
}

// Browser creates contexts whose pages browse a Site.
type Browser struct {
	mu       sync.Mutex
	site     *Site
	contexts []*Context
	newErr   error
}

// New returns a browser over site.
func New(site *Site) *Browser {
	return &Browser{site: site}
}

// FailNewContext makes subsequent NewContext calls return err.
func (b *Browser) FailNewContext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newErr = err
}

// NewContext implements browser.Browser.
func (b *Browser) NewContext(opts browser.ContextOptions) (browser.BrowserContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.newErr != nil {
		return nil, b.newErr
	}
	c := &Context{site: b.site, options: opts}
	b.contexts = append(b.contexts, c)
	return c, nil
}

// Contexts returns every context created so far.
func (b *Browser) Contexts() []*Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Context(nil), b.contexts...)
}

// Context is an isolated fake browsing context.
type Context struct {
	mu      sync.Mutex
	site    *Site
	options browser.ContextOptions
	pages   []*Page
	closed  bool
	tracing bool
	traces  []string
}

// NewPage implements browser.BrowserContext. The page starts at about:blank.
func (c *Context) NewPage() (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	p := &Page{ctx: c, site: c.site, actionTimeout: defaultActionTimeout}
	p.setDocumentLocked(`<html><head></head><body></body></html>`)
	p.url = "about:blank"
	c.pages = append(c.pages, p)
	return p, nil
}

// Close implements browser.BrowserContext.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// StartTracing implements browser.Tracer.
func (c *Context) StartTracing(title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.tracing {
		return errors.New("tracing has been already started")
	}
	c.tracing = true
	return nil
}

// StopTracing implements browser.Tracer. The archive is an empty zip.
func (c *Context) StopTracing(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tracing {
		return errors.New("must start tracing before stopping")
	}
	c.tracing = false
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := zip.NewWriter(f).Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.traces = append(c.traces, path)
	return nil
}

// Traces returns the paths written by StopTracing.
func (c *Context) Traces() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.traces...)
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Options returns the options the context was created with.
func (c *Context) Options() browser.ContextOptions {
	return c.options
}

// Pages returns the pages opened in this context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// Page is a fake tab holding one live parsed document.
type Page struct {
	ctx  *Context
	site *Site

	mu            sync.Mutex
	url           string
	doc           *goquery.Document
	order         map[*html.Node]int
	actionTimeout time.Duration
	screenshotErr error

	navigations []string
	loadWaits   int
	screenshots []string
	clicks      []string
	scrolls     int
}

// SetContent replaces the live document, like a script rewriting the DOM.
func (p *Page) SetContent(document string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setDocumentLocked(document)
}

// SetActionTimeout sets how long actions wait for actionability.
func (p *Page) SetActionTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actionTimeout = d
}

// FailScreenshots makes subsequent Screenshot calls return err.
func (p *Page) FailScreenshots(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshotErr = err
}

// Navigations returns every URL loaded, in order.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// LoadStateWaits returns how many times WaitForLoadState was called.
func (p *Page) LoadStateWaits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadWaits
}

// Screenshots returns the paths written so far.
func (p *Page) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.screenshots...)
}

// Clicks returns a short description of each clicked element.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Scrolls returns how many scroll-into-view requests were made.
func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

func (p *Page) setDocumentLocked(document string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		// html.Parse only fails on reader errors, which strings.Reader never returns.
		panic(fmt.Sprintf("fakebrowser: parse document: %v", err))
	}
	p.doc = doc
	p.order = make(map[*html.Node]int)
	i := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		p.order[n] = i
		i++
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
}

func (p *Page) checkOpen() error {
	if p.ctx != nil && p.ctx.Closed() {
		return ErrClosed
	}
	return nil
}

// Goto implements browser.Page. Unknown paths load a 404 document.
func (p *Page) Goto(rawURL string, _ browser.GotoOptions) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navigateLocked(rawURL, nil)
}

func (p *Page) navigateLocked(rawURL string, from *url.URL) error {
	target, document, err := p.site.lookup(rawURL, from)
	if err != nil {
		return err
	}
	p.setDocumentLocked(document)
	p.url = target.String()
	p.navigations = append(p.navigations, p.url)
	return nil
}

// Locator implements browser.Page.
func (p *Page) Locator(selector string) browser.Locator {
	return &Locator{page: p, selector: selector, index: -1}
}

// Title implements browser.Page.
func (p *Page) Title() (string, error) {
	if err := p.checkOpen(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

// URL implements browser.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Screenshot implements browser.Page by writing a 1x1 PNG.
func (p *Page) Screenshot(path string, fullPage bool) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.screenshotErr != nil {
		return p.screenshotErr
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	p.screenshots = append(p.screenshots, path)
	return nil
}

// WaitForLoadState implements browser.Page. Fake documents are always idle.
func (p *Page) WaitForLoadState(browser.LoadState) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadWaits++
	return nil
}

// Locator is a lazy selector handle over a Page.
type Locator struct {
	page     *Page
	parent   *Locator
	selector string
	index    int // -1 selects every match
}

// resolveLocked evaluates the locator chain against the live document.
func (l *Locator) resolveLocked() ([]*html.Node, error) {
	var roots []*html.Node
	if l.parent == nil {
		roots = l.page.doc.Nodes
	} else {
		var err error
		roots, err = l.parent.resolveLocked()
		if err != nil {
			return nil, err
		}
	}

	var matches []*html.Node
	seen := make(map[*html.Node]bool)
	for _, root := range roots {
		found, err := query(root, l.selector, l.page.order)
		if err != nil {
			return nil, err
		}
		for _, n := range found {
			if !seen[n] {
				seen[n] = true
				matches = append(matches, n)
			}
		}
	}
	if len(roots) > 1 {
		sortByOrder(matches, l.page.order)
	}

	if l.index < 0 {
		return matches, nil
	}
	if l.index < len(matches) {
		return matches[l.index : l.index+1], nil
	}
	return nil, nil
}

func (l *Locator) resolve() ([]*html.Node, error) {
	if err := l.page.checkOpen(); err != nil {
		return nil, err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	return l.resolveLocked()
}

func (l *Locator) String() string {
	var b strings.Builder
	if l.parent != nil {
		b.WriteString(l.parent.String())
		b.WriteString(" >> ")
	}
	fmt.Fprintf(&b, "locator(%q)", l.selector)
	if l.index >= 0 {
		fmt.Fprintf(&b, ".nth(%d)", l.index)
	}
	return b.String()
}

// WaitFor implements browser.Locator.
func (l *Locator) WaitFor(state browser.ElementState, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = l.page.timeout()
	}
	deadline := time.Now().Add(timeout)
	for {
		nodes, err := l.resolve()
		if err != nil {
			return err
		}
		if stateReached(state, nodes) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("Timeout %dms exceeded while waiting for %s to be %s", timeout.Milliseconds(), l, state)
		}
		time.Sleep(pollInterval)
	}
}

func stateReached(state browser.ElementState, nodes []*html.Node) bool {
	switch state {
	case browser.StateAttached:
		return len(nodes) > 0
	case browser.StateDetached:
		return len(nodes) == 0
	case browser.StateHidden:
		return len(nodes) == 0 || !isVisible(nodes[0])
	default:
		return len(nodes) > 0 && isVisible(nodes[0])
	}
}

// Count implements browser.Locator.
func (l *Locator) Count() (int, error) {
	nodes, err := l.resolve()
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// Nth implements browser.Locator.
func (l *Locator) Nth(i int) browser.Locator {
	return &Locator{page: l.page, parent: l.parent, selector: l.selector, index: i}
}

// First implements browser.Locator.
func (l *Locator) First() browser.Locator {
	return l.Nth(0)
}

// Locator implements browser.Locator.
func (l *Locator) Locator(selector string) browser.Locator {
	return &Locator{page: l.page, parent: l, selector: selector, index: -1}
}

// TextContent implements browser.Locator. It waits for the element to attach.
func (l *Locator) TextContent() (string, error) {
	n, err := l.actionTarget(browser.StateAttached, false)
	if err != nil {
		return "", err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	return goquery.NewDocumentFromNode(n).Text(), nil
}

// GetAttribute implements browser.Locator.
func (l *Locator) GetAttribute(name string) (string, bool, error) {
	n, err := l.actionTarget(browser.StateAttached, false)
	if err != nil {
		return "", false, err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	v, ok := attr(n, name)
	return v, ok, nil
}

// Click implements browser.Locator. Links with an href navigate the page.
func (l *Locator) Click() error {
	n, err := l.actionTarget(browser.StateVisible, true)
	if err != nil {
		return err
	}
	p := l.page
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, describe(n))
	if n.DataAtom == atom.A {
		if href, ok := attr(n, "href"); ok && href != "" && !strings.HasPrefix(href, "#") {
			from, _ := url.Parse(p.url)
			if from != nil && from.Scheme == "about" {
				from = nil
			}
			return p.navigateLocked(href, from)
		}
	}
	return nil
}

// Fill implements browser.Locator.
func (l *Locator) Fill(value string) error {
	n, err := l.actionTarget(browser.StateVisible, true)
	if err != nil {
		return err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	if n.DataAtom != atom.Input && n.DataAtom != atom.Textarea {
		return fmt.Errorf("element is not an <input> or <textarea>: %s", describe(n))
	}
	goquery.NewDocumentFromNode(n).SetAttr("value", value)
	return nil
}

// IsVisible implements browser.Locator without waiting.
func (l *Locator) IsVisible() (bool, error) {
	nodes, err := l.resolve()
	if err != nil {
		return false, err
	}
	if len(nodes) == 0 {
		return false, nil
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	return isVisible(nodes[0]), nil
}

// ScrollIntoViewIfNeeded implements browser.Locator.
func (l *Locator) ScrollIntoViewIfNeeded() error {
	if _, err := l.actionTarget(browser.StateVisible, false); err != nil {
		return err
	}
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	l.page.scrolls++
	return nil
}

// actionTarget waits for a single element in state. With strict set, more
// than one match is an error, as it is for Playwright actions.
func (l *Locator) actionTarget(state browser.ElementState, strict bool) (*html.Node, error) {
	timeout := l.page.timeout()
	if err := l.WaitFor(state, timeout); err != nil {
		return nil, err
	}
	nodes, err := l.resolve()
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s resolved to no elements", l)
	}
	if strict && len(nodes) > 1 {
		return nil, fmt.Errorf("strict mode violation: %s resolved to %d elements", l, len(nodes))
	}
	return nodes[0], nil
}

func (p *Page) timeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actionTimeout
}

func describe(n *html.Node) string {
	return fmt.Sprintf("<%s>%s", n.Data, logutil.TruncateForLog(normalizeSpace(nodeText(n)), maxDescribedText))
}
