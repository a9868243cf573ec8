// Command huckleberryd bridges a Huckleberry baby-tracking account into Home
// Assistant: it polls the vendor backend and republishes the event log as
// MQTT sensors and an HTTP/ICS calendar surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trymwestin/huckleberry/internal/config"
	"github.com/trymwestin/huckleberry/internal/core/auth"
	"github.com/trymwestin/huckleberry/internal/core/calendar"
	"github.com/trymwestin/huckleberry/internal/core/state"
	"github.com/trymwestin/huckleberry/internal/core/tracker"
	"github.com/trymwestin/huckleberry/internal/httpapi"
	"github.com/trymwestin/huckleberry/internal/logging"
	"github.com/trymwestin/huckleberry/internal/mqtt"
	"github.com/trymwestin/huckleberry/internal/poller"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "huckleberryd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "/data/config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("starting huckleberryd", "timezone", cfg.Huckleberry.Timezone)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Auth ---
	authenticator := auth.NewAuthenticator(cfg.Huckleberry.AuthBase, cfg.Huckleberry.TokenBase, cfg.Huckleberry.APIKey, log)
	tokenMgr := auth.NewTokenManager(authenticator, cfg.Huckleberry.Email, cfg.Huckleberry.Password, cfg.Session.Path, log)

	bus := state.NewEventBus(log)
	store := state.NewStateStore(bus, log)

	authCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	_, err = tokenMgr.Token(authCtx)
	cancel()
	if err != nil {
		class := auth.Classify(err)
		if class.Fatal() {
			bus.Publish(state.Event{Type: state.EventAuthError, Data: class.Message()})
			return fmt.Errorf("sign-in failed: %s", class.Message())
		}
		// Transient trouble; the poller retries on its schedule.
		log.Warn("initial sign-in failed, continuing", "class", class, "detail", class.Message())
	} else {
		bus.Publish(state.Event{Type: state.EventAuthOK})
	}

	// --- Tracker + calendars ---
	client := tracker.NewClient(cfg.Huckleberry.FirestoreBase, cfg.Huckleberry.ProjectID, tokenMgr, log)

	childCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	children, err := client.Children(childCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("list children: %w", err)
	}
	if len(children) == 0 {
		return errors.New("no children on this account")
	}
	log.Info("children discovered", "count", len(children))

	calendars := make(map[string]*calendar.Calendar, len(children))
	for _, child := range children {
		calendars[child.UID] = calendar.New(client, child.UID, loc, log)
	}

	// --- Poller ---
	p := poller.New(poller.Config{
		Interval:      time.Duration(cfg.Poll.IntervalMinutes) * time.Minute,
		WindowBack:    time.Duration(cfg.Poll.WindowBackHours) * time.Hour,
		WindowForward: time.Duration(cfg.Poll.WindowForwardHours) * time.Hour,
	}, children, calendars, store, bus, loc, log)
	if err := p.Start(ctx); err != nil {
		return err
	}

	// --- MQTT ---
	var publisher mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewHAPublisher(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			DeviceID:    cfg.MQTT.DeviceID,
		}, children, store, bus, log)
	} else {
		publisher = mqtt.NewStubPublisher(log)
	}
	if err := publisher.Start(ctx); err != nil {
		return err
	}

	// --- HTTP ---
	sources := make(map[string]httpapi.CalendarSource, len(calendars))
	for uid, cal := range calendars {
		sources[uid] = cal
	}
	api := httpapi.NewServer(store, bus, children, sources, tokenMgr, httpapi.Window{
		Back:    time.Duration(cfg.Poll.WindowBackHours) * time.Hour,
		Forward: time.Duration(cfg.Poll.WindowForwardHours) * time.Hour,
	}, loc, cfg.HTTP.CORSAll, log)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.Handler(),
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-httpErr:
		log.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", "error", err)
	}
	if err := publisher.Stop(shutdownCtx); err != nil {
		log.Warn("MQTT shutdown", "error", err)
	}
	if err := p.Stop(shutdownCtx); err != nil {
		log.Warn("poller shutdown", "error", err)
	}

	log.Info("huckleberryd stopped")
	return nil
}
