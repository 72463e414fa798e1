// Command mapcampaign runs the mapping-campaign processor: create
// campaigns, run them against an Overpass-style data source, or serve
// the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hotosm/mapcampaign/internal/core/config"
	"github.com/hotosm/mapcampaign/internal/core/httpclient"
	"github.com/hotosm/mapcampaign/internal/core/observability"
	"github.com/hotosm/mapcampaign/internal/fetcher"
	"github.com/hotosm/mapcampaign/internal/httpapi"
	"github.com/hotosm/mapcampaign/internal/logger"
	"github.com/hotosm/mapcampaign/internal/model"
	"github.com/hotosm/mapcampaign/internal/store"
	"github.com/hotosm/mapcampaign/internal/supervisor"
	"github.com/hotosm/mapcampaign/internal/token"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: true, Component: "mapcampaign"}, os.Stdout)
	log := logger.NewSlog(&zl)

	var err error
	switch os.Args[1] {
	case "create-campaign":
		err = runCreateCampaign(cfg, os.Args[2:])
	case "run":
		err = runRun(cfg, log, os.Args[2:])
	case "serve":
		err = runServe(cfg, log)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "mapcampaign:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  mapcampaign create-campaign <storage-root> <campaign.json>
  mapcampaign run <storage-root> <uuid>
  mapcampaign serve

serve reads its storage root from MAPCAMPAIGN_STORAGE_ROOT (see internal/core/config).`)
}

func runCreateCampaign(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("create-campaign", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errors.New("create-campaign requires <storage-root> <campaign.json>")
	}
	st, err := store.New(fs.Arg(0), cfg.StoreCacheSize, cfg.H3ListRes)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("read campaign file: %w", err)
	}
	var c model.Campaign
	if err := json.Unmarshal(b, &c); err != nil {
		return fmt.Errorf("parse campaign file: %w", err)
	}
	if err := c.Geom.Validate(); err != nil {
		return fmt.Errorf("invalid geom: %w", err)
	}
	if err := c.Tags.Validate(); err != nil {
		return fmt.Errorf("invalid tags: %w", err)
	}
	now := time.Now().UTC()
	c.UUID = strings.ReplaceAll(uuid.New().String(), "-", "")
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Status = model.StatusCreated
	id, err := st.Save(c)
	if err != nil {
		return fmt.Errorf("save campaign: %w", err)
	}
	fmt.Println(id)
	return nil
}

func runRun(cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errors.New("run requires <storage-root> <uuid>")
	}
	st, err := store.New(fs.Arg(0), cfg.StoreCacheSize, cfg.H3ListRes)
	if err != nil {
		return err
	}
	f := fetcher.New(httpclient.NewOutbound(), cfg.OverpassURL, cfg.UserAgent)
	sup := supervisor.New(log, st, f, 1, 1, cfg.FetchTimeout)
	sup.RunNow(context.Background(), fs.Arg(1))
	return nil
}

func runServe(cfg config.Config, log *slog.Logger) error {
	st, err := store.New(cfg.StorageRoot, cfg.StoreCacheSize, cfg.H3ListRes)
	if err != nil {
		return err
	}
	observability.Init(prometheus.DefaultRegisterer, true)

	f := fetcher.New(httpclient.NewOutbound(), cfg.OverpassURL, cfg.UserAgent)
	sup := supervisor.New(log, st, f, cfg.WorkerPoolSize, cfg.RunQueueSize, cfg.FetchTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	tokens := token.New(cfg.SecretKey)
	srv := httpapi.New(st, sup, tokens, sup, log)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listen", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("signal received, shutting down", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}
