// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

// Command msiextract lists or extracts files of a Windows Installer package.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/woozymasta/msiextract"
	"github.com/woozymasta/pathrules"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitIncomplete = 3
)

// ruleFlag collects ordered include/exclude rules from repeated flags.
type ruleFlag struct {
	rules   *[]pathrules.Rule
	exclude bool
}

func (f ruleFlag) rule(pattern string) pathrules.Rule {
	if f.exclude {
		return pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern}
	}

	return pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern}
}

func (f ruleFlag) String() string {
	if f.rules == nil {
		return ""
	}

	patterns := make([]string, 0, len(*f.rules))
	for _, rule := range *f.rules {
		if rule.Action == f.rule("").Action {
			patterns = append(patterns, rule.Pattern)
		}
	}

	return strings.Join(patterns, ",")
}

func (f ruleFlag) Set(value string) error {
	*f.rules = append(*f.rules, f.rule(value))
	return nil
}

type config struct {
	output      string
	list        bool
	failFast    bool
	rawNames    bool
	createOnly  bool
	rules       []pathrules.Rule
	logLevel    string
	logFormat   string
	metricsFile string
	pkg         string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	logger, err := newLogger(cfg.logLevel, cfg.logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logger: %v\n", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	x, err := msiextract.OpenWithOptions(cfg.pkg, msiextract.OpenOptions{Logger: logger})
	if err != nil {
		logger.Error("open package", zap.String("package", cfg.pkg), zap.Error(err))
		return exitFailure
	}
	defer func() { _ = x.Close() }()

	if cfg.list {
		return listEntries(x, logger)
	}

	return extract(ctx, x, cfg, logger)
}

func parseFlags(args []string) (config, error) {
	var cfg config

	fs := flag.NewFlagSet("msiextract", flag.ContinueOnError)
	fs.StringVar(&cfg.output, "o", ".", "Output directory")
	fs.BoolVar(&cfg.list, "list", false, "List entries with install paths instead of extracting")
	fs.BoolVar(&cfg.failFast, "fail-fast", false, "Stop at the first entry that cannot be extracted")
	fs.BoolVar(&cfg.rawNames, "raw-names", false, "Disable file name sanitization")
	fs.BoolVar(&cfg.createOnly, "no-overwrite", false, "Skip entries whose output file already exists")
	fs.Var(ruleFlag{rules: &cfg.rules}, "include", "Include pattern (repeatable, gitignore syntax)")
	fs.Var(ruleFlag{rules: &cfg.rules, exclude: true}, "exclude", "Exclude pattern (repeatable, gitignore syntax)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.logFormat, "log-format", "console", "Log format: console, json")
	fs.StringVar(&cfg.metricsFile, "metrics-file", "", "Write extraction metrics in Prometheus text format to file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: msiextract [flags] package.msi\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return cfg, errors.New("exactly one package path is required")
	}
	cfg.pkg = fs.Arg(0)

	return cfg, nil
}

// newLogger builds a zap logger writing to stderr.
func newLogger(level string, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.DisableStacktrace = true
	}

	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	return zcfg.Build()
}

func listEntries(x *msiextract.Extractor, logger *zap.Logger) int {
	entries, err := x.Entries()
	if err != nil {
		logger.Error("list entries", zap.Error(err))
		return exitFailure
	}

	code := exitOK
	for _, entry := range entries {
		if entry.Err != nil {
			logger.Warn("unresolved entry", zap.String("file_id", entry.FileID), zap.Error(entry.Err))
			code = exitIncomplete
			continue
		}

		fmt.Printf("%s\t%s\n", entry.FileID, entry.Path)
	}

	return code
}

func extract(ctx context.Context, x *msiextract.Extractor, cfg config, logger *zap.Logger) int {
	opts := msiextract.ExtractOptions{
		Logger:   logger,
		Filter:   cfg.rules,
		FailFast: cfg.failFast,
		RawNames: cfg.rawNames,
	}
	if cfg.createOnly {
		opts.FileMode = msiextract.ExtractFileModeCreateOnly
	}
	if hasIncludeRule(cfg.rules) {
		opts.FilterMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	var reg *prometheus.Registry
	if cfg.metricsFile != "" {
		reg = prometheus.NewRegistry()
		opts.Metrics = msiextract.NewMetrics(reg)
	}

	res, err := x.Extract(ctx, cfg.output, opts)

	if reg != nil {
		if werr := prometheus.WriteToTextfile(cfg.metricsFile, reg); werr != nil {
			logger.Error("write metrics", zap.String("file", cfg.metricsFile), zap.Error(werr))
		}
	}

	switch {
	case errors.Is(err, msiextract.ErrIncomplete):
		logger.Error("extraction stopped", zap.Error(err))
		return exitIncomplete
	case err != nil:
		logger.Error("extract", zap.Error(err))
		return exitFailure
	case !res.Complete():
		return exitIncomplete
	default:
		return exitOK
	}
}

// hasIncludeRule reports whether rules select files explicitly, which switches default to exclude.
func hasIncludeRule(rules []pathrules.Rule) bool {
	for _, rule := range rules {
		if rule.Action == pathrules.ActionInclude {
			return true
		}
	}

	return false
}
