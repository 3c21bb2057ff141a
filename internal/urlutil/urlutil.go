package urlutil

import (
	"net/url"
	"strings"
)

// Routes are the navigation targets of the repository frontend, resolved
// against one base URL.
type Routes struct {
	Base      string
	About     string
	NewUpload string
	Login     string
}

// NewRoutes resolves the well-known routes against base. Base keeps its
// trailing slash so it can be used as the homepage URL directly. An empty
// base yields root-relative paths.
func NewRoutes(base string) Routes {
	root := normalizeBaseURL(base)
	return Routes{
		Base:      root + "/",
		About:     BuildAbsolute(root, "/about"),
		NewUpload: BuildAbsolute(root, "/uploads/new"),
		Login:     BuildAbsolute(root, "/login"),
	}
}

// LanguageRoute returns the path that switches the UI language.
func LanguageRoute(code string) string {
	return "/lang/" + strings.ToLower(strings.TrimSpace(code))
}

// BuildAbsolute builds an absolute URL from a base origin and a path.
func BuildAbsolute(base, path string) string {
	base = normalizeBaseURL(base)
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// SameOrigin reports whether rawURL has the scheme and host of base.
func SameOrigin(rawURL, base string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	b, err := url.Parse(normalizeBaseURL(base))
	if err != nil || b.Host == "" {
		return false
	}
	return strings.EqualFold(u.Scheme, b.Scheme) && strings.EqualFold(u.Host, b.Host)
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}
