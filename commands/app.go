// Package commands provides the clubd CLI commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/clubsincronica/clubd/backend"
	"github.com/clubsincronica/clubd/calendar"
	"github.com/clubsincronica/clubd/config"
	"github.com/clubsincronica/clubd/food"
	"github.com/clubsincronica/clubd/identity"
	"github.com/clubsincronica/clubd/notify"
	"github.com/clubsincronica/clubd/storage"
	"github.com/clubsincronica/clubd/ticket"
	"github.com/clubsincronica/clubd/vendors"
)

// App bundles the wired stores for a CLI invocation. State lives in the
// configured NATS KV bucket; without a NATS URL everything runs against
// an in-memory KV and is lost on exit.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	KV         storage.KV
	Identity   *identity.Store
	Food       *food.Store
	Calendar   *calendar.Store
	Vendor     *vendors.Store
	Attendance *ticket.AttendanceManager
	Backend    *backend.Client

	natsConn *nats.Conn
}

// NewApp loads configuration, connects storage, and restores every
// store's persisted state.
func NewApp(ctx context.Context, configPath string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger}

	if cfg.NATS.URL != "" {
		if err := app.connectNATS(ctx); err != nil {
			return nil, err
		}
	} else {
		logger.Debug("No NATS URL configured, using in-memory state")
		app.KV = storage.NewMemKV()
	}

	var publisher notify.Publisher = notify.Nop{}
	if app.natsConn != nil {
		publisher = notify.NewNATSPublisher(app.natsConn)
	}

	app.Identity = identity.NewStore(app.KV, logger)
	app.Food = food.NewStore(app.KV, app.Identity, publisher, logger)
	app.Calendar = calendar.NewStore(app.KV, app.Identity,
		calendar.Options{EnforceCapacity: cfg.Booking.EnforceCapacity}, logger)
	app.Vendor = vendors.NewStore(app.KV, app.Food, logger)
	app.Attendance = ticket.NewAttendanceManager(app.KV, logger)
	app.Backend = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout)

	for name, load := range map[string]func(context.Context) error{
		"identity": app.Identity.Load,
		"food":     app.Food.Load,
		"calendar": app.Calendar.Load,
		"vendor":   app.Vendor.Load,
	} {
		if err := load(ctx); err != nil {
			return nil, fmt.Errorf("restore %s state: %w", name, err)
		}
	}

	return app, nil
}

// Close releases the NATS connection, if any.
func (a *App) Close() {
	if a.natsConn != nil {
		a.natsConn.Close()
	}
}

func (a *App) connectNATS(ctx context.Context) error {
	conn, err := nats.Connect(a.Config.NATS.URL,
		nats.Name("clubd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return wrapNATSError(err, a.Config.NATS.URL)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := storage.NewNATSKV(ctx, js, a.Config.NATS.Bucket)
	if err != nil {
		conn.Close()
		return err
	}

	a.Logger.Debug("Connected to NATS", "url", a.Config.NATS.URL, "bucket", a.Config.NATS.Bucket)
	a.natsConn = conn
	a.KV = kv
	return nil
}

// wrapNATSError provides guidance when the NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or clear nats.url in the config to run with in-memory state.`, err, url)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	loader := config.NewLoader(logger)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
