package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/firefart/dmarcingest/internal/analytics"
	"github.com/firefart/dmarcingest/internal/config"
	"github.com/firefart/dmarcingest/internal/helper"
	"github.com/firefart/dmarcingest/internal/imap"
	"github.com/firefart/dmarcingest/internal/message"
	"github.com/firefart/dmarcingest/internal/metrics"
	"github.com/firefart/dmarcingest/internal/pipeline"
	"github.com/firefart/dmarcingest/internal/storage"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type app struct {
	logger   *slog.Logger
	config   *config.Configuration
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	closers  []io.Closer
}

type cliFlags struct {
	configFile string
	debug      bool
	raw        bool
}

func main() {
	flags := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:           "dmarcingest",
		Short:         "Ingest DMARC aggregate reports into an analytics sink",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "Config File to use")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Print debug output")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the IMAP folder and process all reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				return a.run(ctx)
			})
		},
	}

	processCmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Process a single email read from file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				return a.processFile(ctx, args, flags.raw)
			})
		},
	}
	processCmd.Flags().BoolVar(&flags.raw, "raw", false, "treat the input as the report attachment instead of an email")

	rootCmd.AddCommand(runCmd, processCmd)

	// trap Ctrl+C and call cancel on the context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		newLogger(flags.debug).Error("error", slog.Any("error", err))
		cancel()
		os.Exit(1)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	formatter := log.TextFormatter
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		formatter = log.JSONFormatter
	}
	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Formatter:       formatter,
	})
	return slog.New(handler)
}

// withApp loads the configuration, builds all collaborators and calls fn
func withApp(ctx context.Context, flags *cliFlags, fn func(context.Context, *app) error) error {
	logger := newLogger(flags.debug)

	if flags.configFile == "" {
		return errors.New("please supply a config file")
	}

	settings, err := config.GetConfig(config.Defaults(), flags.configFile)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", flags.configFile, err)
	}

	a, err := newApp(ctx, logger, settings)
	if err != nil {
		return err
	}
	defer a.close()

	if settings.Metrics.Listen != "" {
		go a.serveMetrics(ctx, settings.Metrics.Listen)
	}

	return fn(ctx, a)
}

func newApp(ctx context.Context, logger *slog.Logger, settings *config.Configuration) (*app, error) {
	a := &app{
		logger:  logger,
		config:  settings,
		metrics: metrics.New(),
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
	}
	if settings.MaxPayloadSize > 0 {
		opts = append(opts, pipeline.WithMaxPayloadSize(settings.MaxPayloadSize))
	}

	store, err := newStore(ctx, settings.Archive)
	if err != nil {
		return nil, err
	}
	if store != nil {
		logger.Info("archiving attachments", slog.Any("store", store))
		opts = append(opts, pipeline.WithArchive(store))
	}

	switch settings.Analytics.Type {
	case "syslog":
		sink, closer, err := analytics.DialSyslog(settings.Analytics.SyslogProtocol, settings.Analytics.SyslogServer, settings.Analytics.SyslogTag)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closer)
		opts = append(opts, pipeline.WithSink(sink))
	case "log":
		opts = append(opts, pipeline.WithSink(analytics.NewLogSink(logger)))
	}

	a.pipeline = pipeline.New(logger, opts...)
	return a, nil
}

func newStore(ctx context.Context, c config.ArchiveConfig) (storage.Store, error) {
	switch c.Type {
	case "s3":
		s, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          c.Bucket,
			Prefix:          c.Prefix,
			Region:          c.Region,
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			UsePathStyle:    c.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "filesystem":
		s, err := storage.NewFileStore(c.Directory)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("error on close", slog.Any("error", err))
		}
	}
}

func (a *app) serveMetrics(ctx context.Context, listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("could not shutdown metrics server", slog.Any("error", err))
		}
	}()
	a.logger.Info("serving metrics", slog.String("listen", listen))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("metrics server failed", slog.Any("error", err))
	}
}

func (a *app) run(ctx context.Context) error {
	if a.config.ImapConfig.Host == "" {
		return errors.New("no imap host configured")
	}

	poller := &imap.Poller{
		Config:          a.config.ImapConfig,
		BatchSize:       a.config.BatchSize,
		DeleteProcessed: a.config.DeleteProcessed,
		Handler:         a.handleEmail,
		Logger:          a.logger,
	}

	// used to start the ticker immediately
	// otherwise it first runs after the first
	// period
	a.logger.Info("starting first run")
	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("received error", slog.Any("error", err))
	}
	a.logger.Info("first run finished")

	ticker := time.NewTicker(a.config.FetchInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context done")
			return nil
		case <-ticker.C:
			a.logger.Info("starting new run")
			if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
				// only log the error here so we keep the loop running
				a.logger.Error("received error", slog.Any("error", err))
			}
			a.logger.Info("run finished")
		}
	}
}

func (a *app) handleEmail(ctx context.Context, uid uint32, subject string, body io.Reader) error {
	logger := a.logger.With(slog.Any("uid", uid))
	msg, err := message.Read(ctx, body, logger)
	if err != nil {
		return fmt.Errorf("could not read message %q: %w", subject, err)
	}
	if _, err := a.pipeline.Process(ctx, msg); err != nil {
		return fmt.Errorf("could not process message %q: %w", subject, err)
	}
	return nil
}

func (a *app) processFile(ctx context.Context, args []string, raw bool) error {
	var r io.Reader = os.Stdin
	name := "stdin"
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("could not open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
		name = filepath.Base(args[0])
	}

	var msg *message.Message
	if raw {
		b, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", name, err)
		}
		msg = &message.Message{
			Subject: name,
			Attachments: []message.Attachment{{
				Filename: name,
				MIMEType: helper.SniffMIMEType(b),
				Content:  b,
			}},
		}
	} else {
		var err error
		msg, err = message.Read(ctx, r, a.logger)
		if err != nil {
			return fmt.Errorf("could not read message: %w", err)
		}
	}

	res, err := a.pipeline.Process(ctx, msg)
	if err != nil {
		return err
	}
	a.logger.Info("done", slog.String("run_id", res.RunID), slog.Int("rows", len(res.Rows)), slog.Int("rows_written", res.RowsWritten))
	return nil
}
