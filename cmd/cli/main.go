package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"sitecrawl/internal/config"
	"sitecrawl/internal/crawler"
	"sitecrawl/internal/ioformats"
	"sitecrawl/internal/models"
	"sitecrawl/internal/parser"
	"sitecrawl/pkg/logger"
)

var Version = "dev"

type options struct {
	configFile string
	output     string
	format     string
	logLevel   string
	progress   bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "sitecrawl <url> <max_concurrency> <max_pages>",
		Short:         "Crawl one web site and write a page report",
		Long:          "sitecrawl follows same-site links from a start URL, fetching at most max_concurrency pages at once and recording at most max_pages pages, then writes a report of every page's h1, first paragraph, links and images.",
		Version:       Version,
		Args:          checkArgCount,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bounds, err := parseBounds(args[1], args[2])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return crawlSite(cmd, opts, args[0], bounds, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./configs/config.yaml, ./config.yaml or the XDG config dir)")
	f.StringVarP(&opts.output, "output", "o", "", "report path (default from config: report.csv)")
	f.StringVarP(&opts.format, "format", "f", "", "report format: csv, ndjson or markdown")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.BoolVar(&opts.progress, "progress", false, "show a progress bar on stderr")
	return cmd
}

func checkArgCount(cmd *cobra.Command, args []string) error {
	switch {
	case len(args) == 0:
		return errors.New("no website provided")
	case len(args) > 3:
		return errors.New("too many arguments provided")
	case len(args) < 3:
		return fmt.Errorf("expected 3 arguments (url, max_concurrency, max_pages), got %d", len(args))
	}
	return nil
}

func parseBounds(concurrency, pages string) (crawler.Config, error) {
	c, err := strconv.Atoi(concurrency)
	if err != nil {
		return crawler.Config{}, fmt.Errorf("max_concurrency %q is not an integer", concurrency)
	}
	p, err := strconv.Atoi(pages)
	if err != nil {
		return crawler.Config{}, fmt.Errorf("max_pages %q is not an integer", pages)
	}
	bounds := crawler.Config{MaxConcurrency: c, MaxPages: p}
	return bounds, bounds.Validate()
}

func crawlSite(cmd *cobra.Command, opts options, target string, bounds crawler.Config, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, opts, cfg)

	format, err := ioformats.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Console = stderr
	log, err := logger.NewWithConfig(logCfg)
	if err != nil {
		return err
	}

	crawlOpts := []crawler.Option{crawler.WithLogger(log)}
	var bar *progressbar.ProgressBar
	if cfg.Output.Progress {
		bar = newProgressBar(stderr, bounds.MaxPages)
		crawlOpts = append(crawlOpts, crawler.WithObserver(func(string, models.PageRecord) {
			_ = bar.Add(1)
		}))
	}

	c, err := crawler.New(crawler.NewHTTPClient(cfg.ClientOptions()), parser.New(), bounds, crawlOpts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "starting crawl of: %s\n", target)
	pages, crawlErr := c.Crawl(cmd.Context(), target)
	if bar != nil {
		_ = bar.Finish()
	}
	if errors.Is(crawlErr, crawler.ErrInvalidStartURL) {
		return crawlErr
	}
	if crawlErr != nil {
		log.Warnf("crawl interrupted: %v; writing the %d pages recorded so far", crawlErr, len(pages))
	}

	switch err := ioformats.WriteFile(cfg.Output.Path, format, pages); {
	case errors.Is(err, ioformats.ErrNoData):
		fmt.Fprintln(stdout, "No data to write to report.")
	case err != nil:
		return err
	default:
		fmt.Fprintf(stdout, "%s report with %d pages written to %s\n", format, len(pages), cfg.Output.Path)
	}
	return crawlErr
}

// applyFlags lets explicitly set flags win over the config file.
func applyFlags(cmd *cobra.Command, opts options, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("output") {
		cfg.Output.Path = opts.output
	}
	if f.Changed("format") {
		cfg.Output.Format = opts.format
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if f.Changed("progress") {
		cfg.Output.Progress = opts.progress
	}
}

func newProgressBar(w io.Writer, max int) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
