package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/echowords/internal/config"
	"github.com/DoyleJ11/echowords/internal/httpapi"
	"github.com/DoyleJ11/echowords/internal/hub"
	"github.com/DoyleJ11/echowords/internal/store"
	"github.com/DoyleJ11/echowords/internal/ws"
)

func main() {
	cobra.CheckErr(newCmd().ExecuteContext(context.Background()))
}

func newCmd() *cobra.Command {
	cfg := &config.Server{}
	cmd := &cobra.Command{
		Use:           "echowords-server",
		Short:         "Relay and REST server for echowords lobbies.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	config.BindServer(cmd.Flags(), cfg)
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

func serve(ctx context.Context, cfg *config.Server) (err error) {
	log, err := config.NewLogger(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.DSN, log.Named("store"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	// The hub outlives ctx so it can be shut down after the listener stops.
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	h := hub.NewHub(hubCtx, hub.WithLogger(log.Named("hub")))

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:       h,
			Store:     st,
			Log:       log,
			WS:        ws.Config{OriginPatterns: cfg.Origins},
			PublicURL: cfg.PublicURL,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		h.RunReaper(gctx, cfg.ReaperInterval, cfg.LobbyIdle)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Shutdown()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, dsn string, log *zap.Logger) (store.Store, error) {
	if dsn == "memory" {
		log.Warn("using in-memory store; nothing survives a restart")
		return store.NewMemoryStore(), nil
	}
	gs, err := store.Open(ctx, dsn, log)
	if err != nil {
		return nil, err
	}
	return gs, nil
}
