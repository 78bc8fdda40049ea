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

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/secnex/crm-gateway/config"
	"github.com/secnex/crm-gateway/crm"
	"github.com/secnex/crm-gateway/database"
	"github.com/secnex/crm-gateway/handlers"
	"github.com/secnex/crm-gateway/logging"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	source := config.Path()

	app := &cli.Command{
		Name:   "crm-gateway",
		Usage:  "forward lookups, attachments and case forms to the CRM API",
		Flags:  config.Flags(source),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.FromCommand(cmd, source)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config) error {
	logging.Init(cfg.LogLevel)
	if cfg.Source != "" {
		log.Debugf("using config file: %s", cfg.Source)
	}

	httpClient := crm.NewHTTPClient(cfg.UpstreamTimeout)
	tokens := crm.NewTokenCache(crm.TokenCacheConfig{
		BaseURL:    cfg.CRMBaseURL,
		Credential: cfg.Credential,
		TTL:        cfg.TokenTTL,
		HTTPClient: httpClient,
	})
	client, err := crm.NewClient(crm.ClientConfig{
		BaseURL:    cfg.CRMBaseURL,
		Tokens:     tokens,
		HTTPClient: httpClient,
	})
	if err != nil {
		return err
	}

	opts := handlers.Options{MaxUploadBytes: cfg.MaxUploadBytes}
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
		opts.Recorder = database.NewLedger(db)
		log.Info("attachment ledger enabled")
	}

	return listen(ctx, cfg.Port, handlers.NewRouter(client, opts))
}

func listen(ctx context.Context, port string, router http.Handler) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("CRM gateway listening on port %s", port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
