package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/matt-primrose/blob-download-task/internal/config"
	"github.com/matt-primrose/blob-download-task/internal/download"
	"github.com/matt-primrose/blob-download-task/internal/metrics"
	"github.com/matt-primrose/blob-download-task/internal/storage"
	"github.com/matt-primrose/blob-download-task/internal/worker"
	"github.com/matt-primrose/blob-download-task/pkg/models"
)

const (
	serviceName    = "blob-download-task"
	serviceVersion = "0.1.0"
)

// options holds the command line flags. Empty values leave the config untouched.
type options struct {
	configPath string
	mode       string
	connection string
	container  string
	blob       string
	kind       string
	dir        string
	policy     string
	encoding   string
}

func main() {
	// Initialize logger
	setLogLevel("info")

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Invalid arguments", "error", err)
		os.Exit(2)
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		slog.Error("Blob download task failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", config.DefaultPath, "path to the YAML configuration file")
	fs.StringVar(&opts.mode, "mode", "", "operation: download, read or exists")
	fs.StringVar(&opts.connection, "connection", "", "storage connection string")
	fs.StringVar(&opts.container, "container", "", "container or bucket name")
	fs.StringVar(&opts.blob, "blob", "", "blob name")
	fs.StringVar(&opts.kind, "kind", "", "blob kind: block, page or append")
	fs.StringVar(&opts.dir, "dir", "", "destination directory")
	fs.StringVar(&opts.policy, "policy", "", "collision policy: overwrite, error or rename")
	fs.StringVar(&opts.encoding, "encoding", "", "text encoding for read mode")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// singleBlob reports whether the flags describe a single operation rather
// than the configured job list
func (o *options) singleBlob() bool {
	return o.mode != "" || o.blob != ""
}

// apply overrides configuration values with any flags that were set
func (o *options) apply(cfg *config.Config) error {
	switch models.JobMode(o.mode) {
	case "", models.JobModeDownload, models.JobModeRead, models.JobModeExists:
	default:
		return fmt.Errorf("-mode: unknown mode %q", o.mode)
	}
	if o.connection != "" {
		cfg.Source.ConnectionString = o.connection
	}
	if o.container != "" {
		cfg.Source.ContainerName = o.container
	}
	if o.blob != "" {
		cfg.Source.BlobName = o.blob
	}
	if o.kind != "" {
		kind, err := models.ParseBlobKind(o.kind)
		if err != nil {
			return fmt.Errorf("-kind: %w", err)
		}
		cfg.Source.BlobKind = kind
	}
	if o.dir != "" {
		cfg.Destination.Directory = o.dir
	}
	if o.policy != "" {
		policy, err := models.ParseCollisionPolicy(o.policy)
		if err != nil {
			return fmt.Errorf("-policy: %w", err)
		}
		cfg.Destination.CollisionPolicy = policy
	}
	if o.encoding != "" {
		cfg.Content.Encoding = o.encoding
	}
	return nil
}

// jobs returns what this invocation should run
func (o *options) jobs(cfg *config.Config) []*models.DownloadJob {
	if len(cfg.Jobs) > 0 && !o.singleBlob() {
		jobs := make([]*models.DownloadJob, len(cfg.Jobs))
		for i := range cfg.Jobs {
			jobs[i] = &cfg.Jobs[i]
		}
		return jobs
	}

	mode := models.JobMode(o.mode)
	if mode == "" {
		mode = models.JobModeDownload
	}
	return []*models.DownloadJob{{
		Mode:        mode,
		Source:      cfg.Source,
		Destination: cfg.Destination.AsJob(),
		Encoding:    cfg.Content.Encoding,
	}}
}

// run loads configuration, processes the jobs and writes their results as JSON to out
func run(ctx context.Context, opts *options, out io.Writer) error {
	// Load configuration
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	jobs := opts.jobs(cfg)

	// Set log level from config
	setLogLevel(cfg.Observability.LogLevel)

	slog.Info("Starting blob download task",
		"service", serviceName,
		"version", serviceVersion,
		"backend", storage.TypeOf(cfg.Source.ConnectionString),
		"connection", storage.Redact(cfg.Source.ConnectionString),
		"jobs", len(jobs),
	)

	recorder := metrics.NewPrometheus()
	downloader := download.New(download.Options{
		ChunkSize: cfg.ChunkSize(),
		Logger:    slog.Default(),
		Metrics:   recorder,
	})

	w := worker.New(cfg, downloader, slog.Default())
	w.Run(ctx, jobs)

	if path := cfg.Observability.MetricsTextfile; path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			slog.Error("Failed to write metrics", "path", path, "error", err)
		}
	}

	if err := writeResults(out, jobs); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	failed := 0
	for _, job := range jobs {
		if job.Status.State != models.JobStateCompleted {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs did not complete", failed, len(jobs))
	}
	return nil
}

type jobResult struct {
	ID       string                 `json:"id"`
	Mode     models.JobMode         `json:"mode"`
	State    models.JobState        `json:"state"`
	Error    string                 `json:"error,omitempty"`
	Download *models.DownloadResult `json:"download,omitempty"`
	Content  *models.ContentResult  `json:"content,omitempty"`
	Exists   *bool                  `json:"exists,omitempty"`
}

func writeResults(out io.Writer, jobs []*models.DownloadJob) error {
	results := make([]jobResult, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, jobResult{
			ID:       job.ID,
			Mode:     job.Mode,
			State:    job.Status.State,
			Error:    job.Status.Error,
			Download: job.Status.Download,
			Content:  job.Status.Content,
			Exists:   job.Status.Exists,
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// setLogLevel configures the global log level based on config
func setLogLevel(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// stdout carries the results
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}
