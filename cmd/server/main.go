// Command gca-proxy boots the OpenAI-to-Code-Assist translating proxy:
// it wires configuration, logging, the signature cache, the upstream
// client, the fallback coordinator and the HTTP server together and
// serves /v1/chat/completions until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kairos-labs/gca-proxy/internal/api"
	"github.com/kairos-labs/gca-proxy/internal/config"
	"github.com/kairos-labs/gca-proxy/internal/fallback"
	"github.com/kairos-labs/gca-proxy/internal/gclient"
	"github.com/kairos-labs/gca-proxy/internal/logging"
	"github.com/kairos-labs/gca-proxy/internal/sigcache"

	"github.com/kairos-labs/gca-proxy/internal/cli"
)

func main() {
	root := cli.NewRootCommand(run)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string) error {
	_ = config.LoadDotEnv(".env")

	log := logging.New(logging.Level(cfg.LogLevel))
	requestLog := logging.NewRequestLogger(cfg.RequestLogPath)
	defer requestLog.Close()

	store := config.NewStore(cfg)

	durable, err := sigcache.OpenSQLiteStore(cfg.SignatureCachePath)
	if err != nil {
		return fmt.Errorf("gca-proxy: open signature cache: %w", err)
	}
	cache := sigcache.New(durable)
	defer cache.Destroy()

	tokens, err := gclient.NewFileTokenSource(cfg.CredentialsPath)
	if err != nil {
		return fmt.Errorf("gca-proxy: load credentials (run the separate auth flow to populate %s): %w", cfg.CredentialsPath, err)
	}

	client := gclient.New(tokens, gclient.WithLogger(log.WithField("component", "gclient")))
	coordinator := fallback.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gclient.Prewarm(ctx)
	if err := config.Watch(ctx, store, configPath, log.WithField("component", "config")); err != nil {
		log.WithError(err).Warn("config hot-reload watcher not started")
	}

	server := api.New(client, cache, coordinator, store, log.WithField("component", "api"))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("gca-proxy listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
