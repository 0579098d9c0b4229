package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scholar/am"
	"github.com/teranos/scholar/assess"
	"github.com/teranos/scholar/db"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/logger"
	"github.com/teranos/scholar/rulebook"
	"github.com/teranos/scholar/server"
	"github.com/teranos/scholar/storage"
)

// ServeCmd starts the applicant form and JSON API
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the applicant form and JSON API",
	Long: `Serve the applicant form at / and the JSON API under /api.

Assessments are stored in the configured SQLite database. When a rulebook
file is configured it is reloaded on change; a broken edit keeps the
previous rulebook active.`,
	RunE: runServe,
}

var (
	servePort     int
	serveDBPath   string
	serveRulebook string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Database path (overrides config)")
	ServeCmd.Flags().StringVar(&serveRulebook, "rulebook", "", "Rulebook file (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Server defaults to Info so requests are visible
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jsonLogs, _ := cmd.Flags().GetBool("log-json")
	if err := logger.Initialize(logger.Options{
		JSON:      jsonLogs || cfg.Log.JSON,
		Verbosity: verbosity,
		Theme:     cfg.GetLogTheme(),
	}); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	log := logger.Logger.Named("serve")

	model, err := loadModel(cfg, serveRulebook)
	if err != nil {
		return err
	}
	models := rulebook.NewHolder(model)

	rulebookPath := cfg.Rulebook.Path
	if serveRulebook != "" {
		rulebookPath = serveRulebook
	}
	if rulebookPath != "" && cfg.Rulebook.Watch {
		watcher, err := rulebook.NewWatcher(rulebookPath, cfg.EngineSettings(), logger.Logger.Named("rulebook"), func(m *rulebook.Model) {
			models.Swap(m)
		})
		if err != nil {
			log.Warnw("Rulebook hot reload disabled", "error", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	database, err := openDatabase(cfg, serveDBPath)
	if err != nil {
		return err
	}
	var store *storage.AssessmentStore
	var history server.History
	if database != nil {
		defer database.Close()
		schema, err := db.SchemaVersion(database)
		if err != nil {
			log.Warnw("Could not read schema version", "error", err)
		}
		log.Debugw("Assessment history ready", "schema", schema)
		store = storage.NewAssessmentStore(database)
		history = store
	}

	scorer, err := newScorer(cfg, logger.Logger.Named("classifier"))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := assess.Options{
		Models:    models,
		Scorer:    scorer,
		UploadDir: cfg.Uploads.Dir,
		Logger:    logger.Logger.Named("assess"),
		Metrics:   assess.NewMetrics(registry),
	}
	if store != nil {
		opts.Store = store
	}
	service, err := assess.NewService(opts)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Service:           service,
		Models:            models,
		History:           history,
		Gatherer:          registry,
		AllowedOrigins:    cfg.GetServerAllowedOrigins(),
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		MaxUploadBytes:    cfg.Uploads.MaxBytes,
		Logger:            logger.Logger.Named("server"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	port := cfg.GetServerPort()
	if servePort != 0 {
		port = servePort
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))

	dbPath := cfg.Database.Path
	if serveDBPath != "" {
		dbPath = serveDBPath
	}
	printStartupBanner(verbosity, addr, dbPath, model, scorer.Name())

	// First Ctrl+C drains, a second one exits immediately
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")
		cancel()
		<-sigChan
		pterm.Warning.Println("\nForce shutdown - exiting immediately")
		os.Exit(1)
	}()

	timeout := am.DefaultShutdownTimeout
	if cfg.Server.ShutdownTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	}
	if err := srv.ListenAndServe(ctx, addr, timeout); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	pterm.Success.Println("Server stopped cleanly")
	return nil
}
