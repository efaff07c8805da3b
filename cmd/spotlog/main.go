package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yegors/spotlog/internal/config"
	"github.com/yegors/spotlog/internal/notify"
	"github.com/yegors/spotlog/internal/reconcile"
	"github.com/yegors/spotlog/internal/spot"
	"github.com/yegors/spotlog/internal/state"
	"github.com/yegors/spotlog/internal/storage/sqlite"
	"github.com/yegors/spotlog/internal/timeconv"
	"github.com/yegors/spotlog/internal/vereinsflieger"
	"github.com/yegors/spotlog/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	dryRun := flag.Bool("dry-run", false, "Read feed and logbook but only log intended writes; state is kept in memory")
	dayFlag := flag.String("date", "", "UTC day to reconcile (YYYY-MM-DD), defaults to today")
	flag.Parse()

	var day time.Time
	if *dayFlag != "" {
		parsed, err := time.Parse(timeconv.DateLayout, *dayFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -date %q: %v\n", *dayFlag, err)
			return 2
		}
		day = parsed
	}

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	log.Info("Starting spotlog",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.Bool("dry_run", *dryRun),
	)

	// Cancel the pass on interrupt; in-flight requests stop and nothing is marked known
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warn("Interrupted, aborting pass", logger.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	feed := spot.NewClient(spot.Config{
		BaseURL:        cfg.Spot.BaseURL,
		FeedID:         cfg.Spot.FeedID,
		FeedPassword:   cfg.Spot.FeedPassword,
		RequestTimeout: time.Duration(cfg.Spot.RequestTimeoutSeconds) * time.Second,
		MaxRetries:     cfg.Spot.MaxRetries,
		TakeoffType:    cfg.Spot.TakeoffMessageType,
		LandingType:    cfg.Spot.LandingMessageType,
	}, log)

	vfClient := vereinsflieger.NewClient(vereinsflieger.Config{
		BaseURL: cfg.Vereinsflieger.BaseURL,
		Credentials: vereinsflieger.Credentials{
			Login:    cfg.Vereinsflieger.Login,
			Password: cfg.Vereinsflieger.Password,
			AppKey:   cfg.Vereinsflieger.AppKey,
			ClubID:   cfg.Vereinsflieger.ClubID,
		},
		RequestTimeout: time.Duration(cfg.Vereinsflieger.RequestTimeoutSeconds) * time.Second,
	}, log)

	var logbook reconcile.Logbook = vfClient
	var store state.Store
	if *dryRun {
		logbook = vereinsflieger.NewDryRun(vfClient, log)
		store = state.NewMemory()
		log.Info("Dry run: logbook writes are logged only, state is not persisted")
	} else {
		// Ensure the directory exists
		dbDir := filepath.Dir(cfg.Storage.SQLitePath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dbDir))
			return 1
		}

		sqliteStore, err := sqlite.NewStateStore(cfg.Storage.SQLitePath, log)
		if err != nil {
			log.Error("Failed to open state database", logger.Error(err))
			return 1
		}
		defer sqliteStore.Close()
		store = sqliteStore
		log.Info("Using SQLite state", logger.String("path", cfg.Storage.SQLitePath))
	}

	notifiers := notify.Multi{}
	if cfg.Pushover.Enabled {
		notifiers = append(notifiers, notify.NewPushover(notify.PushoverConfig{
			BaseURL:        cfg.Pushover.BaseURL,
			AppToken:       cfg.Pushover.AppToken,
			RequestTimeout: time.Duration(cfg.Pushover.RequestTimeoutSeconds) * time.Second,
		}, log))
	}
	if cfg.NATS.Enabled {
		publisher, err := notify.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject,
			time.Duration(cfg.NATS.ConnectTimeoutSeconds)*time.Second, log)
		if err != nil {
			// Notifications are best-effort, the pass runs without them
			log.Warn("NATS unavailable, flight events will not be published", logger.Error(err))
		} else {
			defer publisher.Close()
			notifiers = append(notifiers, publisher)
		}
	}

	engine, err := reconcile.New(reconcile.Config{
		PilotName:      cfg.Pilot.Name,
		PilotID:        cfg.Pilot.MemberID,
		Callsign:       cfg.Flight.Callsign,
		StartType:      cfg.Flight.StartType,
		DefaultAirport: cfg.Flight.DefaultAirport,
		Recipient:      cfg.Pushover.UserKey,
		NotifyProblems: cfg.Flight.NotifyProblems,
		MatchTolerance: cfg.MatchTolerance(),
		LockLease:      time.Duration(cfg.Storage.LockLeaseSeconds) * time.Second,
		Retention:      cfg.Retention(),
		Day:            day,
	}, feed, logbook, store, cfg.AirportRegistry(), notifiers, log)
	if err != nil {
		log.Error("Failed to create reconciliation engine", logger.Error(err))
		return 1
	}

	summary, err := engine.Run(ctx)
	if summary != nil {
		fmt.Println(summary.String())
	}
	if err != nil {
		switch {
		case errors.Is(err, state.ErrLocked):
			log.Warn("Another pass is running, nothing done")
		case errors.Is(err, reconcile.ErrConfig):
			log.Error("Pass refused", logger.Error(err))
		case errors.Is(err, reconcile.ErrAuthFailure):
			log.Error("Logbook rejected the credentials", logger.Error(err))
		default:
			log.Error("Reconciliation pass failed", logger.Error(err))
		}
		return 1
	}

	return 0
}
