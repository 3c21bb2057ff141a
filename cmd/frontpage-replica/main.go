// Command frontpage-replica serves a local stand-in of the repository
// frontpage so the suite can be exercised without a live instance.
//
// Usage:
//
//	go run ./cmd/frontpage-replica --addr 127.0.0.1:8080 --links label --dates text
//
// With --rps, clients over budget get 429 Too Many Requests.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kuitang/frontpage-e2e/internal/obs"
	"github.com/kuitang/frontpage-e2e/internal/ratelimit"
	"github.com/kuitang/frontpage-e2e/internal/web"
)

type replicaFlags struct {
	addr         string
	recent       string
	dates        string
	links        string
	noContact    bool
	noSearch     bool
	untranslated bool
	rps          float64
	burst        int
}

func main() {
	var f replicaFlags
	flag.StringVar(&f.addr, "addr", "127.0.0.1:8080", "Listen address")
	flag.StringVar(&f.recent, "recent", "populated", "Recent uploads: populated, empty or missing")
	flag.StringVar(&f.dates, "dates", "element", "Publication dates: element, text or none")
	flag.StringVar(&f.links, "links", "href", "Language links: href, label or none")
	flag.BoolVar(&f.noContact, "no-contact", false, "Omit the contact link")
	flag.BoolVar(&f.noSearch, "no-search", false, "Omit the search controls")
	flag.BoolVar(&f.untranslated, "untranslated", false, "Keep English navigation labels on the German page")
	flag.Float64Var(&f.rps, "rps", 0, "Per-client request budget; 0 disables throttling")
	flag.IntVar(&f.burst, "burst", ratelimit.DefaultConfig.Burst, "Per-client burst when --rps is set")
	flag.Parse()

	opts, err := parseOptions(f)
	if err != nil {
		log.Fatal(err)
	}
	obs.Init()

	site, err := web.NewSite(opts)
	if err != nil {
		log.Fatal(err)
	}

	handler := site.Handler()
	if f.rps > 0 {
		limiter := ratelimit.NewRateLimiter(ratelimit.Config{RPS: f.rps, Burst: f.burst, IdleTimeout: ratelimit.DefaultConfig.IdleTimeout})
		defer limiter.Stop()
		handler = ratelimit.Middleware(limiter, ratelimit.ClientIP)(handler)
	}

	srv := &http.Server{
		Addr:              f.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.Pkg("main")
	go func() {
		logger.Info("replica_listening", "addr", f.addr, "links", opts.LanguageLinks.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
	}
}

func parseOptions(f replicaFlags) (web.Options, error) {
	opts := web.Options{
		NoContact:          f.noContact,
		NoSearch:           f.noSearch,
		UntranslatedLabels: f.untranslated,
	}

	switch strings.ToLower(strings.TrimSpace(f.recent)) {
	case "", "populated":
		opts.Recent = web.RecentPopulated
	case "empty":
		opts.Recent = web.RecentEmpty
	case "missing":
		opts.Recent = web.RecentMissing
	default:
		return opts, fmt.Errorf("unknown --recent value %q", f.recent)
	}

	switch strings.ToLower(strings.TrimSpace(f.dates)) {
	case "", "element":
		opts.Dates = web.DateElement
	case "text":
		opts.Dates = web.DateText
	case "none":
		opts.Dates = web.DateNone
	default:
		return opts, fmt.Errorf("unknown --dates value %q", f.dates)
	}

	switch strings.ToLower(strings.TrimSpace(f.links)) {
	case "", "href":
		opts.LanguageLinks = web.LinkHref
	case "label":
		opts.LanguageLinks = web.LinkLabel
	case "none":
		opts.LanguageLinks = web.LinkNone
	default:
		return opts, fmt.Errorf("unknown --links value %q", f.links)
	}

	return opts, nil
}
