package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vendorport/internal/config"
	"vendorport/internal/datasource/file"
	"vendorport/internal/ingest"
	"vendorport/internal/logging"
	"vendorport/internal/metrics"
	"vendorport/internal/metrics/datadog"
	"vendorport/internal/metrics/prompush"
	"vendorport/internal/parser"
	"vendorport/internal/registry"
	"vendorport/internal/schema"
	"vendorport/internal/storage"
)

// app is the state shared by all subcommands, built in PersistentPreRunE.
type app struct {
	cfgPath string
	// flag overrides; empty means "use config"
	kind, dsn, logLevel, logFormat string

	cfg *config.Config
	log *zap.Logger
	db  storage.DB
	// dd is closed on exit; DogStatsD buffers until then.
	dd *datadog.Backend
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "vendorport",
		Short:         "Import vendor part files into per-run database tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}
	root.SetHelpTemplate(root.HelpTemplate() + "\nEnvironment:\n" + config.Usage())

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "vendorport.yaml", "config file (YAML or .env); skipped when missing")
	pf.StringVar(&a.kind, "storage", "", "storage kind override ("+strings.Join(storage.Kinds(), ", ")+")")
	pf.StringVar(&a.dsn, "dsn", "", "storage DSN override")
	pf.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", "", "log format override (json, console)")

	root.AddCommand(
		newBootstrapCmd(a),
		newVendorCmd(a),
		newHeadersCmd(a),
		newPreviewCmd(a),
		newIngestCmd(a),
		newImportsCmd(a),
		newDeleteCmd(a),
		newNormalizeCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads and validates configuration, then builds the logger and the
// metrics backend. Issues are printed like the pipeline linter does.
func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.kind != "" {
		cfg.Storage.Kind = a.kind
	}
	if a.dsn != "" {
		cfg.Storage.DSN = a.dsn
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}

	issues := config.Validate(*cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		}
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid")
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.log = log
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			log.Debug("config warning", zap.String("path", iss.Path), zap.String("message", iss.Message))
		}
	}
	return a.setupMetrics()
}

func (a *app) setupMetrics() error {
	m := a.cfg.Metrics
	switch strings.ToLower(m.Backend) {
	case "pushgateway":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, GlobalTags: m.DatadogTags})
		if err != nil {
			return err
		}
		a.dd = b
		metrics.SetBackend(b)
	default:
		return nil
	}
	a.log.Info("metrics enabled", zap.String("backend", m.Backend))
	return nil
}

// store opens the database on first use.
func (a *app) store(ctx context.Context) (storage.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := storage.New(ctx, storage.Config{
		Kind:     a.cfg.Storage.Kind,
		DSN:      a.cfg.Storage.DSN,
		MaxConns: a.cfg.Storage.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Storage.Kind, err)
	}
	a.db = db
	return db, nil
}

// registry opens the store and returns a bootstrapped registry.
func (a *app) registry(ctx context.Context) (*registry.Registry, error) {
	db, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	reg := registry.New(db, a.log)
	if err := reg.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

func (a *app) pipeline(db storage.DB, reg *registry.Registry) *ingest.Pipeline {
	in := a.cfg.Ingest
	return ingest.New(db, reg, a.log, ingest.Options{
		ChunkSize: in.ChunkSize,
		Schema:    schema.Options{Prefix: in.TablePrefix, UniqueSuffix: in.UniqueSuffix},
		SkipDir:   in.SkipDir,
	})
}

func (a *app) parserOptions() parser.Options {
	return parser.Options{
		Comma:    a.cfg.Ingest.DelimiterRune(),
		Encoding: a.cfg.Ingest.Encoding,
		OnError: func(line int, err error) {
			metrics.RecordRows(metrics.RowsParseErrors, 1)
			a.log.Warn("malformed record skipped", zap.Int("line", line), zap.Error(err))
		},
	}
}

func (a *app) uploads() file.Uploads {
	return file.Uploads{Dir: a.cfg.Ingest.UploadDir, MaxBytes: a.cfg.Ingest.MaxUploadBytes}
}

// close releases the store and flushes metrics and logs.
func (a *app) close(ctx context.Context) error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(ctx); err != nil {
			firstErr = err
		}
		a.db = nil
	}
	if err := metrics.Flush(); err != nil {
		a.log.Warn("metrics flush", zap.Error(err))
	}
	if a.dd != nil {
		_ = a.dd.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return firstErr
}
