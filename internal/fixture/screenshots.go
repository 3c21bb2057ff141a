package fixture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScreenshotDir is the process-wide directory failure screenshots go to.
// Create it once at startup with NewScreenshotDir and hand it to New.
type ScreenshotDir struct {
	path string
}

// NewScreenshotDir creates path if needed. Calling it again for the same
// path is harmless.
func NewScreenshotDir(path string) (ScreenshotDir, error) {
	if strings.TrimSpace(path) == "" {
		return ScreenshotDir{}, fmt.Errorf("screenshot directory is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return ScreenshotDir{}, fmt.Errorf("create screenshot directory %s: %w", path, err)
	}
	return ScreenshotDir{path: path}, nil
}

func (d ScreenshotDir) Path() string {
	return d.path
}

// FileFor returns the screenshot path for a unit title. Titles that sanitize
// to the same name share a file; the later write wins.
func (d ScreenshotDir) FileFor(title string) string {
	return filepath.Join(d.path, SanitizeTitle(title)+".png")
}

// SanitizeTitle replaces every character outside [A-Za-z0-9] with '_'.
func SanitizeTitle(title string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, title)
}
