package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/clibridge/internal/api"
	"github.com/mattjoyce/clibridge/internal/auth"
	"github.com/mattjoyce/clibridge/internal/lock"
	"github.com/mattjoyce/clibridge/internal/log"
)

// pruneInterval is how often serve applies the history retention policy.
const pruneInterval = time.Hour

func printServeHelp() {
	fmt.Println("Usage: clibridge serve [--config PATH]")
	fmt.Println()
	fmt.Println("Run the HTTP API in the foreground until interrupted.")
	fmt.Println("Requires api.enabled in the configuration. Only one server may use a")
	fmt.Println("state database at a time.")
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer a.Close()

	logger := a.logger
	if !a.cfg.API.Enabled {
		fmt.Fprintf(os.Stderr, "API is disabled in %s (set api.enabled: true)\n", a.cfg.Path)
		return 1
	}
	logger.Info("clibridge starting", "version", version, "config", a.cfg.Path, "program", a.cfg.Program.Executable)

	pidLockPath := lock.PathFor(a.cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	tokens := make([]auth.TokenConfig, 0, len(a.cfg.API.Auth.Tokens))
	for _, t := range a.cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	apiConfig := api.Config{
		Listen: a.cfg.API.Listen,
		Title:  a.cfg.Program.Executable,
		APIKey: a.cfg.API.Auth.APIKey,
		Tokens: tokens,
	}

	// A nil *history.Store must not reach the interface.
	var hist api.HistoryReader
	if a.history != nil {
		hist = a.history
	}
	server := api.New(apiConfig, a.invoker, hist, log.WithComponent("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		a.pruneHistory(gctx)
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.pruneHistory(gctx)
			}
		}
	})

	logger.Info("clibridge running (press Ctrl+C to stop)", "listen", a.cfg.API.Listen, "operations", len(a.table.Operations()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("API server failed", "error", err)
		return 1
	}
	logger.Info("clibridge stopped")
	return 0
}
