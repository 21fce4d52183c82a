package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/finvault/guardian/internal/adapters/notify"
	sessionstore "github.com/finvault/guardian/internal/adapters/session"
	"github.com/finvault/guardian/internal/adapters/storage"
	webserver "github.com/finvault/guardian/internal/adapters/web/server"
	"github.com/finvault/guardian/internal/config"
	"github.com/finvault/guardian/internal/core/services/alert"
	"github.com/finvault/guardian/internal/core/services/audit"
	"github.com/finvault/guardian/internal/core/services/baseline"
	"github.com/finvault/guardian/internal/core/services/enrich"
	"github.com/finvault/guardian/internal/core/services/geo"
	"github.com/finvault/guardian/internal/core/services/guardian"
	"github.com/finvault/guardian/internal/core/services/network"
	"github.com/finvault/guardian/internal/core/services/policy"
	"github.com/finvault/guardian/internal/core/services/risk"
	"github.com/finvault/guardian/internal/core/services/signature"
	"github.com/finvault/guardian/internal/core/services/stepup"
	"github.com/finvault/guardian/internal/core/services/token"
	"github.com/finvault/guardian/internal/telemetry"
)

// Background job cadences.
const (
	GeoAggregateInterval = 1 * time.Hour
	DriftScanInterval    = 15 * time.Minute
	DecaySweepInterval   = 24 * time.Hour
)

// Application wires the service graph and owns the process lifecycle.
type Application struct {
	Config *config.Config

	Store    *storage.SQLiteAdapter
	Sessions *sessionstore.RedisStore

	Policy       *policy.Policy
	Engine       *risk.Engine
	Orchestrator *stepup.Orchestrator
	Guardian     *guardian.Guardian
	Tracker      *network.Tracker
	Dispatcher   *alert.Dispatcher
	DriftMonitor *guardian.DriftMonitor
	GeoJob       *geo.Aggregator

	WebServer *webserver.Server
}

// New creates an Application instance and bootstraps its components.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}
	if err := app.bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap(ctx context.Context) error {
	telemetry.InitMetrics()

	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create DB directory: %w", err)
	}
	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	app.Store = store

	sessions, err := sessionstore.NewRedisStore(ctx, app.Config.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to init session store: %w", err)
	}
	app.Sessions = sessions

	app.Policy = policy.FromConfig(app.Config)
	app.Engine = risk.NewEngine(app.Policy)
	binder := signature.NewBinder()
	tokens := token.NewService(app.Config.JWTSecret)

	app.Dispatcher = alert.NewDispatcher(store, 256)
	auditor := audit.NewRecorder(store)
	learner := baseline.NewLearner(store, binder)
	app.Tracker = network.NewTracker(store, store, app.Policy)
	enricher := enrich.NewRecorder(store, binder)

	app.Orchestrator = stepup.NewOrchestrator(stepup.Deps{
		Users:        store,
		Profiles:     store,
		Sessions:     sessions,
		Links:        store,
		Trusted:      store,
		Contexts:     store,
		StepLog:      store,
		GeoStore:     store,
		Engine:       app.Engine,
		Learner:      learner,
		Tracker:      app.Tracker,
		Binder:       binder,
		Tokens:       tokens,
		Auditor:      auditor,
		Enrich:       enricher,
		Policy:       app.Policy,
		Alerts:       app.Dispatcher,
		Mailer:       notify.NewLogMailer(),
		SMS:          notify.NewLogSMSSender(),
		MagicBaseURL: app.Config.MagicLinkURL,
	})

	app.Guardian = guardian.NewGuardian(sessions, store, store, app.Engine, binder, app.Dispatcher)
	app.DriftMonitor = guardian.NewDriftMonitor(store, store, DriftScanInterval)
	app.GeoJob = geo.NewAggregator(store, GeoAggregateInterval)

	app.WebServer = webserver.NewServer(
		app.Config.Addr,
		tokens,
		app.Orchestrator,
		app.Guardian,
		store,
		auditor,
		store,
		app.Dispatcher,
	)
	return nil
}

// Run starts the background jobs and the web server, blocking until ctx is
// cancelled or the server fails.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting guardian components...")

	go app.Dispatcher.Run(ctx)
	go app.DriftMonitor.Run(ctx)
	go app.GeoJob.Run(ctx)
	go app.runDecaySweep(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	slog.Info("Guardian ready", "addr", app.Config.Addr)

	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case err := <-errChan:
		return err
	}

	return app.cleanup()
}

// runDecaySweep periodically ages out known networks users have stopped
// logging in from.
func (app *Application) runDecaySweep(ctx context.Context) {
	ticker := time.NewTicker(DecaySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.sweepKnownNetworks(ctx)
		}
	}
}

func (app *Application) sweepKnownNetworks(ctx context.Context) {
	users, err := app.Store.AllUserIDs(ctx)
	if err != nil {
		log.Printf("Decay sweep: listing users failed: %v", err)
		return
	}
	now := time.Now()
	for _, userID := range users {
		if err := app.Tracker.Decay(ctx, userID, now); err != nil {
			log.Printf("Decay sweep failed for user %s: %v", userID, err)
		}
	}
}

func (app *Application) cleanup() error {
	slog.Info("Cleaning up resources...")
	if app.Sessions != nil {
		app.Sessions.Close()
	}
	if app.Store != nil {
		return app.Store.Close()
	}
	return nil
}
