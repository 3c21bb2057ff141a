// Command frontpage-check runs the frontpage verification suite against a
// live repository instance.
//
// Usage:
//
//	BASE_URL=https://repo.example.org/ go run ./cmd/frontpage-check --only German
//
// Configuration comes from the environment; see internal/config. The suite
// runs once per engine in BROWSERS. The exit status is 1 when any check
// fails and 2 when the run cannot start.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/frontpage-e2e/internal/artifacts"
	"github.com/kuitang/frontpage-e2e/internal/browser"
	"github.com/kuitang/frontpage-e2e/internal/config"
	"github.com/kuitang/frontpage-e2e/internal/fixture"
	"github.com/kuitang/frontpage-e2e/internal/obs"
	"github.com/kuitang/frontpage-e2e/internal/suite"
)

func main() {
	flags := config.ParseFlags()
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(2)
	}
	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	failed, err := run(ctx, cfg)
	stop()
	if err != nil {
		obs.Pkg("main").Error("run_failed", "error", err)
		os.Exit(2)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) (int, error) {
	runID := obs.NewRunID()
	ctx = obs.WithRun(ctx, runID)
	logger := obs.From(ctx).With("pkg", "main")
	logger.Info("config_loaded", "settings", cfg.SummaryFields())

	checks := suite.Filter(suite.Checks(), cfg.Only)
	if len(checks) == 0 {
		return 0, fmt.Errorf("no check title contains %q", cfg.Only)
	}

	dir, err := fixture.NewScreenshotDir(cfg.ScreenshotDir)
	if err != nil {
		return 0, err
	}

	contextOpts := browser.ContextOptions{
		Viewport:          browser.DefaultViewport,
		IgnoreHTTPSErrors: cfg.IgnoreHTTPSErrors,
	}
	if cfg.RecordVideo {
		contextOpts.RecordVideoDir = cfg.VideoDir
	}

	opts := []fixture.Option{
		fixture.WithCooldown(cfg.FailureCooldown),
		fixture.WithContextOptions(contextOpts),
		fixture.WithUnitTimeout(cfg.TestTimeout),
		fixture.WithNavigationLimiter(browser.NewNavigationLimiter(cfg.NavigationRPS), cfg.NavigationTimeout),
	}
	if cfg.TraceOnRetry {
		opts = append(opts, fixture.WithTraceOnRetry(cfg.TraceDir))
	}
	if cfg.ArchiveEnabled() {
		archive, err := artifacts.New(ctx, artifacts.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.ArtifactBucket,
			UsePathStyle:    cfg.AWSEndpointS3 != "",
			RunID:           runID,
		})
		if err != nil {
			return 0, err
		}
		opts = append(opts, fixture.WithArchive(archive))
		logger.Info("archive_enabled", "bucket", archive.BucketName(), "prefix", archive.RunID())
	}

	failed := 0
	for _, engine := range cfg.Browsers {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		results, err := runProject(ctx, cfg, engine, checks, dir, opts)
		if err != nil {
			return failed, err
		}
		fmt.Printf("== %s\n%s", engine, results.Summary())
		failed += len(results.Failed())
	}
	return failed, nil
}

// runProject launches one engine and runs every selected check in it.
func runProject(ctx context.Context, cfg *config.Config, engine browser.Engine, checks []suite.Check, dir fixture.ScreenshotDir, opts []fixture.Option) (suite.Results, error) {
	logger := obs.From(ctx).With("pkg", "main", "browser", engine)

	pw, err := browser.Launch(browser.LaunchOptions{
		Engine:            engine,
		Headless:          cfg.Headless,
		ActionTimeout:     cfg.ActionTimeout,
		NavigationTimeout: cfg.NavigationTimeout,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pw.Close(); err != nil {
			logger.Warn("browser_close_failed", "error", err)
		}
	}()
	logger.Info("browser_launched")

	runner := suite.NewRunner(fixture.New(pw, dir, opts...), suite.Env{
		BaseURL:       cfg.BaseURL,
		WaitTimeout:   cfg.ActionTimeout,
		ProbeTimeout:  cfg.ProbeTimeout,
		ScreenshotDir: dir.Path(),
	}, suite.WithRetries(cfg.Retries), suite.WithWorkers(cfg.Workers), suite.WithProject(string(engine)))

	return runner.Run(ctx, checks), nil
}
