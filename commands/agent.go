package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/clubsincronica/clubd/config"
	"github.com/clubsincronica/clubd/food"
	"github.com/clubsincronica/clubd/realtime"
)

func agentCmd(configPath *string, logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the long-lived agent: realtime feed, metrics, config reload",
		Long: `Agent keeps the realtime websocket channel open, applies backend
pushes to local state, serves Prometheus metrics when metrics.addr is
set, and hot-reloads the config file on change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app, err := NewApp(ctx, *configPath, log)
			if err != nil {
				return err
			}
			defer app.Close()

			var metricsSrv *http.Server
			if addr := app.Config.Metrics.Addr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsSrv = &http.Server{Addr: addr, Handler: mux}
				go func() {
					log.Info("Metrics endpoint listening", "addr", addr)
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("Metrics server failed", "error", err)
					}
				}()
			}

			watcher, err := startConfigWatcher(ctx, *configPath, log)
			if err != nil {
				log.Warn("Config watching disabled", "error", err)
			} else if watcher != nil {
				defer watcher.Stop()
			}

			rt := realtime.NewClient(app.Config.Realtime, app.Config.Backend.Token, log)
			if err := rt.Connect(ctx); err != nil {
				log.Warn("Realtime channel unavailable, continuing without it", "error", err)
				rt = nil
			} else {
				defer rt.Close()
			}

			log.Info("Agent ready", "version", Version)

			var messages <-chan realtime.Message
			if rt != nil {
				messages = rt.Messages()
			}
			var updates <-chan *config.Config
			if watcher != nil {
				updates = watcher.Updates()
			}

			for {
				select {
				case <-ctx.Done():
					log.Info("Received shutdown signal")
					if metricsSrv != nil {
						shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
						_ = metricsSrv.Shutdown(shutdownCtx)
						shutdownCancel()
					}
					log.Info("Agent shutdown complete")
					return nil

				case msg, ok := <-messages:
					if !ok {
						log.Error("Realtime channel closed", "error", rt.Err())
						messages = nil
						continue
					}
					handleRealtimeMessage(ctx, app, msg)

				case cfg, ok := <-updates:
					if !ok {
						updates = nil
						continue
					}
					log.Info("Configuration reloaded")
					app.Config = cfg
					app.Backend.SetToken(cfg.Backend.Token)
				}
			}
		},
	}
}

// startConfigWatcher watches the explicit config file, or the discovered
// project config when none was given. No config file means no watching.
func startConfigWatcher(ctx context.Context, configPath string, log *slog.Logger) (*config.Watcher, error) {
	path := configPath
	if path == "" {
		path = config.NewLoader(log).FindProjectConfig()
	}
	if path == "" {
		return nil, nil
	}

	watcher, err := config.NewWatcher(path, log)
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("Watching config for changes", "path", path)
	return watcher, nil
}

// handleRealtimeMessage applies a backend push to local state. Unknown
// events are logged and dropped.
func handleRealtimeMessage(ctx context.Context, app *App, msg realtime.Message) {
	switch msg.Event {
	case "order_status":
		var push struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		}
		if err := unmarshalPayload(msg, &push); err != nil {
			app.Logger.Warn("Malformed order_status push", "error", err)
			return
		}
		if _, err := app.Food.UpdateOrderStatus(ctx, push.OrderID, foodStatus(push.Status)); err != nil {
			app.Logger.Warn("Failed to apply order status push",
				"order_id", push.OrderID, "status", push.Status, "error", err)
		}

	case "reservation_cancelled":
		var push struct {
			ReservationID string `json:"reservation_id"`
		}
		if err := unmarshalPayload(msg, &push); err != nil {
			app.Logger.Warn("Malformed reservation_cancelled push", "error", err)
			return
		}
		if _, err := app.Calendar.CancelReservation(ctx, push.ReservationID); err != nil {
			app.Logger.Warn("Failed to apply reservation cancellation",
				"reservation_id", push.ReservationID, "error", err)
		}

	default:
		app.Logger.Debug("Ignoring realtime event", "event", msg.Event)
	}
}

func unmarshalPayload(msg realtime.Message, v any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", msg.Event)
	}
	return json.Unmarshal(msg.Payload, v)
}

func foodStatus(s string) food.OrderStatus {
	return food.OrderStatus(s)
}
