// Command sitecheck crawls one site in a headless browser, runs the page
// check battery on every visited page and writes a report.
//
// Exit status is 0 when every check passed, 1 when the session could not be
// set up and 2 when at least one check failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/crawler"
	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/prober"
	"github.com/use-agent/sitecheck/report"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sitecheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath  = fs.String("config", "", "YAML config file overlaying SITECHECK_* env settings")
		depth       = fs.Int("depth", -1, "crawl depth (default from config)")
		maxPages    = fs.Int("max-pages", 0, "page cap (default from config)")
		timeout     = fs.Duration("timeout", 0, "page load timeout, e.g. 20s (default from config)")
		outDir      = fs.String("out", "", "report directory (default from config)")
		screenshots = fs.String("screenshots", "", "directory for per-page screenshots")
		fillForms   = fs.Bool("fill-forms", false, "type preset values into form inputs (never submits)")
		format      = fs.String("format", "text", "stdout format: text, json or none")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: sitecheck [flags] <url>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *outDir != "" {
		cfg.Report.OutputDir = *outDir
	}
	if *screenshots != "" {
		cfg.Crawl.ScreenshotDir = *screenshots
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	initLogger(cfg.Log, stderr)

	req := models.SessionRequest{URL: fs.Arg(0), MaxPages: *maxPages, FillForms: *fillForms}
	if *depth >= 0 {
		req.CrawlDepth = depth
	}
	if *timeout > 0 {
		req.PageLoadTimeout = int(timeout.Round(time.Second) / time.Second)
	}

	plan, err := crawler.NewPlan(cfg, req)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	httpProber := prober.NewHTTP(cfg.Prober)
	defer httpProber.Close()

	sched, err := plan.Start(crawler.RodLauncher(cfg.Browser), httpProber)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	rep := sched.Run(context.Background()).Report()

	files, err := report.WriteFiles(cfg.Report.OutputDir, rep)
	if err != nil {
		slog.Error("failed to write report", "error", err)
	} else {
		slog.Info("report written", "json", files.JSON, "html", files.HTML)
	}

	switch *format {
	case "json":
		err = report.WriteJSON(stdout, rep)
	case "none":
	default:
		err = report.WriteSummary(stdout, rep)
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
	}

	if rep.TotalFailed > 0 {
		return 2
	}
	return 0
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
