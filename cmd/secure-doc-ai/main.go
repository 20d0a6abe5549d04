// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Command secure-doc-ai runs the document redaction pipeline: serve
// watches a directory and exposes an HTTP API, run processes one file
// synchronously from the command line, verify checks a signed output's
// signature, and stats prints aggregate audit numbers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/secure-doc-ai/pipeline/internal/audit"
	"github.com/secure-doc-ai/pipeline/internal/config"
	"github.com/secure-doc-ai/pipeline/internal/detector"
	"github.com/secure-doc-ai/pipeline/internal/document"
	"github.com/secure-doc-ai/pipeline/internal/extractor"
	"github.com/secure-doc-ai/pipeline/internal/observability"
	"github.com/secure-doc-ai/pipeline/internal/pipeline"
	"github.com/secure-doc-ai/pipeline/internal/redactor"
	"github.com/secure-doc-ai/pipeline/internal/server"
	"github.com/secure-doc-ai/pipeline/internal/signer"
	"github.com/secure-doc-ai/pipeline/internal/storage"
	"github.com/secure-doc-ai/pipeline/internal/validator"
	"github.com/secure-doc-ai/pipeline/internal/version"
	"github.com/secure-doc-ai/pipeline/internal/watcher"
	"github.com/secure-doc-ai/pipeline/internal/worker"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "serve":
		err = runServe(args)
	case "run":
		err = runOnce(args)
	case "verify":
		err = runVerify(args)
	case "stats":
		err = runStats(args)
	case "version":
		fmt.Println(version.Info())
		return
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: secure-doc-ai <subcommand> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Subcommands:")
	fmt.Fprintln(os.Stderr, "  serve    watch the processing directory and serve the HTTP API")
	fmt.Fprintln(os.Stderr, "  run      process a single file synchronously and print the result")
	fmt.Fprintln(os.Stderr, "  verify   check a signed document's embedded or sidecar signature")
	fmt.Fprintln(os.Stderr, "  stats    print aggregate audit statistics")
	fmt.Fprintln(os.Stderr, "  version  print version information")
}

// buildPipeline assembles every stage component from a loaded Config and
// returns a ready-to-run Pipeline plus its supporting Store and Layout, so
// callers that need them directly (serve, run) get them back too.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, *audit.Store, *storage.Layout, error) {
	layout, err := storage.NewLayout(&cfg.Directories)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setting up directory layout: %w", err)
	}

	v := validator.New(cfg.Processing.MaxSizeMB, cfg.Processing.MaxPages, layout.Error)
	e := extractor.New(cfg.Processing.OCRDPI, cfg.Processing.OCRMinNativeCharsPerPage)

	// Detection.UseNER reserves a slot for an injected NamedEntityTagger;
	// no tagger implementation ships with this pipeline, so NER detection
	// is a no-op until one is wired in here.
	d := detector.New(nil)

	r := redactor.New()

	s, err := signer.Load(layout.KeyFile())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading signing key: %w", err)
	}

	store, err := audit.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening audit store: %w", err)
	}

	var observer *observability.StandardObserver
	if cfg.Debug {
		debugObs := observability.NewDebugObserver(os.Stderr)
		observer = debugObs.StandardObserver
	} else {
		observer = observability.NewStandardObserver(observability.ObservabilityMetrics, os.Stderr)
	}

	p := pipeline.New(layout, v, e, d, r, s, store, observer)
	return p, store, layout, nil
}

func loadConfigFlag(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", "", "path to configuration file (YAML)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	return config.LoadConfig(path)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfg, err := loadConfigFlag(fs, args)
	if err != nil {
		return err
	}

	p, store, layout, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	jobTimeout := time.Duration(cfg.Processing.ProcessingTimeoutSecs) * time.Second
	pool := worker.New(cfg.Worker.PoolSize, jobTimeout, nil, server.Instrument(p.Run))
	pool.Start()
	defer pool.Stop()

	go func() {
		for result := range pool.Results() {
			if result.Error != nil {
				fmt.Fprintf(os.Stderr, "job %s failed: %v\n", result.JobID, result.Error)
			}
		}
	}()

	debounce := time.Duration(cfg.Processing.WatchDebounceMillis) * time.Millisecond
	w, err := watcher.New(layout.Processing, debounce, pool, func(err error) {
		fmt.Fprintf(os.Stderr, "watcher: %v\n", err)
	})
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	w.Start()
	defer w.Stop()

	if !cfg.Server.Enabled {
		fmt.Fprintf(os.Stderr, "HTTP server disabled in config; watching %s until interrupted\n", layout.Processing)
		waitForInterrupt()
		return nil
	}

	srv := server.New(layout, pool, store, cfg.Server.Address)
	fmt.Fprintf(os.Stderr, "secure-doc-ai listening on %s (watching %s)\n", cfg.Server.Address, layout.Processing)
	return srv.Run()
}

func waitForInterrupt() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func runOnce(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	filePath := fs.String("file", "", "path to the file to process")
	cfg, err := loadConfigFlag(fs, args)
	if err != nil {
		return err
	}
	if *filePath == "" {
		return fmt.Errorf("-file is required")
	}

	p, store, layout, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ingestPath, err := storage.MoveTo(*filePath, layout.Processing)
	if err != nil {
		return fmt.Errorf("moving file into processing directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Processing.ProcessingTimeoutSecs)*time.Second)
	defer cancel()

	result, runErr := p.Run(ctx, worker.Job{JobID: pipeline.NewJobID(), FilePath: ingestPath})

	statusColor := color.New(color.FgGreen)
	if result.Status == document.StatusFailed {
		statusColor = color.New(color.FgRed)
	}

	fmt.Printf("job_id:       %s\n", result.JobID)
	fmt.Printf("status:       %s\n", statusColor.Sprint(result.Status))
	fmt.Printf("entities:     %d\n", result.EntityCount)
	fmt.Printf("duration_sec: %.3f\n", result.DurationSecs)
	if result.OutputPath != "" {
		fmt.Printf("output_path:  %s\n", result.OutputPath)
	}
	if result.Error != "" {
		fmt.Printf("error:        %s\n", result.Error)
	}

	return runErr
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	filePath := fs.String("file", "", "path to the signed file to verify")
	cfg, err := loadConfigFlag(fs, args)
	if err != nil {
		return err
	}
	if *filePath == "" {
		return fmt.Errorf("-file is required")
	}

	layout, err := storage.NewLayout(&cfg.Directories)
	if err != nil {
		return err
	}

	s, err := signer.Load(layout.KeyFile())
	if err != nil {
		return err
	}

	ok, err := s.VerifyFile(*filePath)
	if err != nil {
		return fmt.Errorf("verifying %q: %w", *filePath, err)
	}

	if ok {
		fmt.Printf("%s: signature valid\n", *filePath)
		return nil
	}
	fmt.Printf("%s: signature INVALID\n", *filePath)
	os.Exit(1)
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	cfg, err := loadConfigFlag(fs, args)
	if err != nil {
		return err
	}

	store, err := audit.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.GetStats()
	if err != nil {
		return err
	}

	fmt.Println(color.New(color.Bold).Sprint("secure-doc-ai audit stats"))
	fmt.Printf("total_jobs:        %d\n", stats.TotalJobs)
	fmt.Printf("completed:         %s\n", color.GreenString("%d", stats.Completed))
	fmt.Printf("failed:            %s\n", color.RedString("%d", stats.Failed))
	fmt.Printf("entities_detected: %d\n", stats.TotalEntitiesDetected)
	fmt.Printf("avg_duration_sec:  %.3f\n", stats.AvgDurationSeconds)
	return nil
}
