// Package lifecycle runs the replica and the checker as subprocesses and
// talks to them over real HTTP.
package lifecycle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
	"pgregory.net/rapid"
)

// =============================================================================
// Test Fixture: one replica process for all tests
// =============================================================================

var (
	testServer   *serverFixture
	testOnce     sync.Once
	testCleanup  func()
	testStartErr error
)

type serverFixture struct {
	cmd     *exec.Cmd
	baseURL string
	port    int
	logs    *logCapture
	binDir  string
}

type logCapture struct {
	mu     sync.Mutex
	lines  []string
	notify chan struct{}
}

func newLogCapture() *logCapture {
	return &logCapture{
		lines:  make([]string, 0, 256),
		notify: make(chan struct{}),
	}
}

func (l *logCapture) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := false
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			l.lines = append(l.lines, line)
			added = true
		}
	}
	if added {
		close(l.notify)
		l.notify = make(chan struct{})
	}
	return len(p), nil
}

func (l *logCapture) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]string, len(l.lines))
	copy(cp, l.lines)
	return cp
}

func (l *logCapture) waitForSubstring(ctx context.Context, substr string) error {
	cursor := 0
	for {
		l.mu.Lock()
		for i := cursor; i < len(l.lines); i++ {
			if strings.Contains(l.lines[i], substr) {
				l.mu.Unlock()
				return nil
			}
		}
		cursor = len(l.lines)
		waitCh := l.notify
		l.mu.Unlock()

		select {
		case <-waitCh:
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for log line containing %q: %w", substr, ctx.Err())
		}
	}
}

// getServer returns the shared replica, starting it if needed.
func getServer(t *testing.T) *serverFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}

	testOnce.Do(func() {
		testServer, testCleanup, testStartErr = startServer(t)
	})
	if testStartErr != nil {
		t.Fatalf("Failed to start replica: %v", testStartErr)
	}
	return testServer
}

func TestMain(m *testing.M) {
	code := m.Run()
	if testCleanup != nil {
		testCleanup()
	}
	os.Exit(code)
}

func buildCommand(projectRoot, binDir, name string) (string, error) {
	binary := filepath.Join(binDir, name)
	buildCmd := exec.Command("go", "build", "-o", binary, "./cmd/"+name)
	buildCmd.Dir = projectRoot
	if out, err := buildCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("build %s failed: %w\n%s", name, err, out)
	}
	return binary, nil
}

func startServer(t *testing.T) (*serverFixture, func(), error) {
	projectRoot := findProjectRoot()

	binDir, err := os.MkdirTemp("", "lifecycle-test-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	binary, err := buildCommand(projectRoot, binDir, "frontpage-replica")
	if err != nil {
		return nil, nil, err
	}

	port := findFreePort()
	logs := newLogCapture()
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binary, "--addr", fmt.Sprintf("127.0.0.1:%d", port))
	cmd.Dir = binDir

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start replica: %w", err)
	}

	for _, pipe := range []io.Reader{stdout, stderr} {
		go func() {
			scanner := bufio.NewScanner(pipe)
			for scanner.Scan() {
				line := scanner.Text()
				logs.Write([]byte(line + "\n"))
				fmt.Println("[REPLICA]", line)
			}
		}()
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d/", port)

	waitCtx, cancelWait := waitContext(t)
	defer cancelWait()
	if err := logs.waitForSubstring(waitCtx, "replica_listening"); err != nil {
		cancel()
		_ = stopProcess(cmd)
		return nil, nil, fmt.Errorf("%w. logs:\n%s", err, strings.Join(logs.Lines(), "\n"))
	}
	if err := waitForHTTP(waitCtx, baseURL); err != nil {
		cancel()
		_ = stopProcess(cmd)
		return nil, nil, err
	}
	t.Logf("Replica started on port %d", port)

	fixture := &serverFixture{cmd: cmd, baseURL: baseURL, port: port, logs: logs, binDir: binDir}
	cleanup := func() {
		cancel()
		_ = stopProcess(cmd)
		_ = os.RemoveAll(binDir)
	}
	return fixture, cleanup, nil
}

func waitForHTTP(ctx context.Context, url string) error {
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("replica never answered on %s: %w", url, err)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("could not find project root")
		}
		dir = parent
	}
}

func findFreePort() int {
	l, _ := net.Listen("tcp", "127.0.0.1:0")
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitContext(t testing.TB) (context.Context, context.CancelFunc) {
	if tbWithDeadline, ok := any(t).(interface{ Deadline() (time.Time, bool) }); ok {
		if deadline, ok := tbWithDeadline.Deadline(); ok {
			return context.WithDeadline(context.Background(), deadline)
		}
	}
	return context.WithTimeout(context.Background(), 2*time.Minute)
}

func stopProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	_ = cmd.Process.Signal(syscall.SIGTERM)
	return <-done
}

// =============================================================================
// HTTP helpers
// =============================================================================

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func fetch(t *testing.T, client *http.Client, url string) (*http.Response, *goquery.Document) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatalf("parse %s: %v", url, err)
	}
	return resp, doc
}

func headings(doc *goquery.Document) []string {
	var out []string
	doc.Find(".random-records-frontpage h2").Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

// =============================================================================
// Tests
// =============================================================================

func TestLifecycle_HomepageServesSections(t *testing.T) {
	srv := getServer(t)

	resp, doc := fetch(t, newClient(t), srv.baseURL)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := headings(doc)
	want := []string{"Research Results", "Publications", "Educational Resources", "Recent Uploads"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("headings = %v, want %v", got, want)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
}

func TestLifecycle_LanguageCookieRoundTrip(t *testing.T) {
	srv := getServer(t)
	client := newClient(t)

	_, doc := fetch(t, client, srv.baseURL+"lang/de")
	if got := headings(doc); len(got) == 0 || got[0] != "Forschungsergebnisse" {
		t.Fatalf("German headings = %v", got)
	}

	// The cookie persists across plain homepage loads.
	_, doc = fetch(t, client, srv.baseURL)
	if got := headings(doc); len(got) == 0 || got[0] != "Forschungsergebnisse" {
		t.Fatalf("headings after reload = %v", got)
	}

	_, doc = fetch(t, client, srv.baseURL+"lang/en")
	if got := headings(doc); len(got) == 0 || got[0] != "Research Results" {
		t.Fatalf("headings after switching back = %v", got)
	}
}

func TestLifecycle_UnknownPaths_Properties(t *testing.T) {
	srv := getServer(t)
	client := newClient(t)

	rapid.Check(t, func(rt *rapid.T) {
		path := rapid.StringMatching(`[a-z]{3,12}(/[a-z0-9]{1,8}){0,2}`).Draw(rt, "path")
		if strings.HasPrefix(path, "lang/") || strings.HasPrefix(path, "language/") {
			rt.Skip("language route")
		}
		resp, err := client.Get(srv.baseURL + path)
		if err != nil {
			rt.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			rt.Fatalf("GET /%s status = %d, want 404", path, resp.StatusCode)
		}
	})
}

func TestLifecycle_UnknownLanguage(t *testing.T) {
	srv := getServer(t)

	resp, _ := fetch(t, newClient(t), srv.baseURL+"lang/xx")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// TestLifecycle_CheckerPassesAgainstReplica runs the real checker binary.
// It needs a working Playwright install and skips otherwise.
func TestLifecycle_CheckerPassesAgainstReplica(t *testing.T) {
	srv := getServer(t)

	binary, err := buildCommand(findProjectRoot(), srv.binDir, "frontpage-check")
	if err != nil {
		t.Fatal(err)
	}

	screenshots := t.TempDir()
	ctx, cancel := waitContext(t)
	defer cancel()
	cmd := exec.CommandContext(ctx, binary, "--base-url", srv.baseURL)
	cmd.Env = append(os.Environ(),
		"PLAYWRIGHT_PREINSTALLED=1",
		"SCREENSHOT_DIR="+screenshots,
		"FAILURE_COOLDOWN=0s",
		"ARTIFACT_BUCKET=",
		"BROWSERS=chromium",
		"TRACE=off",
	)
	out, err := cmd.CombinedOutput()
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 2 {
		t.Skipf("checker could not start (no browser?):\n%s", out)
	}
	if err != nil {
		t.Fatalf("checker failed: %v\n%s", err, out)
	}
	for _, want := range []string{"== chromium", "PASS  [chromium] should load the homepage", "7/7 passed"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}
	entries, _ := os.ReadDir(screenshots)
	if len(entries) != 0 {
		t.Errorf("passing run left %d screenshots", len(entries))
	}
}
