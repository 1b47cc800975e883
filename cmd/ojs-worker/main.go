// Command ojs-worker consumes jobs from Redis streams, promotes scheduled
// jobs when they are due and serves Prometheus metrics. It ships with
// the demo handlers registered in handlers.go.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openjobspec/ojs-jobtrace/internal/app"
	"github.com/openjobspec/ojs-jobtrace/internal/config"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ojs-worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			fmt.Fprintln(os.Stderr, "ojs-worker: shutdown:", err)
		}
	}()

	worker := rt.Worker()
	registerHandlers(worker, rt.Logger)

	var wg sync.WaitGroup
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Adapter.RunScheduler(schedCtx, cfg.Worker.SchedulerInterval, rt.ErrorHandler())
	}()

	var server *http.Server
	if cfg.Metrics.Enabled {
		server = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           rt.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				rt.Logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	rt.Logger.Info("worker started",
		zap.Strings("queues", cfg.Worker.Queues),
		zap.Int("concurrency", cfg.Worker.Concurrency),
	)
	err = worker.Start(ctx)

	stopScheduler()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = server.Shutdown(shutdownCtx)
		cancel()
	}
	wg.Wait()
	return err
}
