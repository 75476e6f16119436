package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowforge/orchestrator/internal/app"
	"github.com/flowforge/orchestrator/internal/store"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize orchestrator: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wake, err := store.Listen(ctx, a.Cfg.DatabaseURL, a.Log)
	if err != nil {
		a.Log.Warn("listen/notify unavailable, falling back to poll-only scheduling", "error", err)
		wake = make(chan struct{})
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.Scheduler.Run(groupCtx, wake)
	})

	group.Go(func() error {
		addr := a.Cfg.APIHost + ":" + a.Cfg.APIPort
		a.Log.Info("server listening", "address", addr)
		if err := a.Server.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Log.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}
