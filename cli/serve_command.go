package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rangesecurity/oracle/api"
	"github.com/rangesecurity/oracle/callback"
	"github.com/rangesecurity/oracle/chainclient"
	"github.com/rangesecurity/oracle/common"
	"github.com/rangesecurity/oracle/config"
	"github.com/rangesecurity/oracle/db"
	"github.com/rangesecurity/oracle/engine"
	"github.com/rangesecurity/oracle/metrics"
	"github.com/rangesecurity/oracle/service"
	"github.com/rangesecurity/oracle/stream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func ServeCmd() *cobra.Command {
	var (
		envFiles []string
		noRedis  bool
		noDB     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the oracle service and its http api",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			if noRedis {
				cfg.RedisURL = ""
			}
			if noDB {
				cfg.DBURL = ""
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before parsing the environment")
	cmd.Flags().BoolVar(&noRedis, "no-redis", false, "do not consume the redis inbox or deliver stream callbacks")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "keep the registry in memory only")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewOracleCollector(registry)

	var (
		inbox service.Inbox
		store service.Store
	)
	router := callback.NewRouter().Handle(common.TargetHTTP, callback.NewHTTPDeliverer(nil))
	if cfg.ChainRPC != "" {
		chain, err := chainclient.NewClient(cfg.ChainRPC, cfg.ChainToken)
		if err != nil {
			return err
		}
		router.Handle(common.TargetChain, chain)
	}
	if cfg.RedisURL != "" {
		streams, err := stream.New(ctx, cfg.RedisURL, cfg.Namespace, false)
		if err != nil {
			return err
		}
		defer streams.Close()
		router.Handle(common.TargetStream, streams)
		inbox = streams
	}

	dispatcher, err := callback.NewDispatcher(cfg.Callback, router, collector, logger)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg.Params, dispatcher,
		engine.WithAdmin(cfg.Admin),
		engine.WithMetrics(collector),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if cfg.DBURL != "" {
		database, err := db.New(cfg.DBURL)
		if err != nil {
			return err
		}
		defer database.Close()
		snap, found, err := database.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if found {
			if err := eng.Restore(snap); err != nil {
				return fmt.Errorf("restore snapshot: %w", err)
			}
		}
		store = database
	}

	svc, err := service.NewService(ctx, eng, inbox, store)
	if err != nil {
		return err
	}
	svc.Start(cfg.TickInterval)

	server := api.NewServer(api.NewHandler(svc, logger), registry, cfg.ListenAddr, logger)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("serving api")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Create a channel to receive OS signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-sigs:
		log.Info().Str("signal", fmt.Sprint(sig)).Msg("received exit")
	case err = <-errCh:
		log.Error().Err(err).Msg("api server failed")
	}
	_ = server.Shutdown(context.Background())
	svc.Close()
	// persist whatever the last tick did not
	if store != nil {
		if serr := svc.View(func(e *engine.Engine) error {
			return store.SaveSnapshot(context.Background(), e.Snapshot())
		}); serr != nil {
			log.Error().Err(serr).Msg("failed to save final snapshot")
		}
	}
	return err
}
