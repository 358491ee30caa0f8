// libemit-tail dials a websocket feed and logs every frame from the main
// goroutine's loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/sonirico/libemit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := libemit.LoadConfig()

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(libemit.ZapLevel(libemit.ParseLevel(cfg.LogLevel)))
	zl, err := zcfg.Build()
	if err != nil {
		return errors.Wrap(err, "cannot build logger")
	}
	defer func() { _ = zl.Sync() }()

	logger := libemit.NewZapLogger(zl)

	reg := prometheus.NewRegistry()
	metrics, err := libemit.NewMetrics(reg)
	if err != nil {
		return errors.Wrap(err, "cannot register metrics")
	}

	var (
		emitter *libemit.Emitter
		loops   *libemit.LoopRegistry
	)

	app := fx.New(
		libemit.Module(),
		fx.Provide(func() libemit.Logger { return logger }),
		fx.Supply(metrics),
		fx.Populate(&emitter, &loops),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zl.Named("fx")}
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return errors.Wrap(err, "cannot start")
	}

	// Registered from main, so the listeners below are owned by the
	// goroutine that runs the driver.
	events := libemit.NewSourceEvents(cfg.EventBase)
	local := libemit.WithMode(libemit.ThreadLocal)

	events.Connected.On(emitter, func() error {
		logger.Infof("connected to %s", cfg.WsURL)
		return nil
	}, local)
	events.Reconnected.On(emitter, func() error {
		logger.Infof("reconnected to %s", cfg.WsURL)
		return nil
	}, local)
	events.Closed.On(emitter, func(reason error) error {
		logger.Warnf("connection closed: %s", reason)
		return nil
	}, local)
	events.Frames.On(emitter, func(m libemit.Message) error {
		logger.Infof("<= %s", m.Data())
		return nil
	}, local)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %s", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	source := libemit.NewWsSource(emitter, cfg.WsURL, events, libemit.WithSourceLogger(logger))
	if err := source.Open(ctx); err != nil {
		stopApp(app, logger)
		return errors.Wrapf(err, "cannot open %s", cfg.WsURL)
	}

	driver := libemit.NewLoopDriver(loops,
		libemit.WithInterval(cfg.PumpInterval),
		libemit.WithDriverLogger(logger),
	)
	_ = driver.Run(ctx)

	if err := source.Close(); err != nil {
		logger.Warnf("closing source: %s", err)
	}

	stopApp(app, logger)
	return nil
}

func stopApp(app *fx.App, logger libemit.Logger) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("stopping: %s", err)
	}
}
