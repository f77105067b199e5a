package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuaworth/hoistwaywatch/common/httputil"
	"github.com/joshuaworth/hoistwaywatch/common/logging"
	natsclient "github.com/joshuaworth/hoistwaywatch/common/messaging/nats"
	"github.com/joshuaworth/hoistwaywatch/common/middleware"
	"github.com/joshuaworth/hoistwaywatch/rules/correlation"
	"github.com/joshuaworth/hoistwaywatch/rules/engine"
	"github.com/joshuaworth/hoistwaywatch/rules/internal/config"
	rulesnats "github.com/joshuaworth/hoistwaywatch/rules/internal/nats"
	"github.com/joshuaworth/hoistwaywatch/rules/internal/service"
	"github.com/joshuaworth/hoistwaywatch/rules/ruleset"
)

const serviceName = "rules"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var keys map[string]string

	cmd := &cobra.Command{
		Use:          "rules",
		Short:        "Evaluate hoistway sensor events against declarative rules and publish alerts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags(), keys)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	keys = config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service(serviceName))
	logging.SetDefault(logger)

	rules, err := ruleset.Load(cfg.Rules.Path,
		ruleset.WithStrict(cfg.Rules.Strict),
		ruleset.WithLogger(logger.Logger))
	if err != nil {
		logger.Error("Failed to load rules", logging.Path(cfg.Rules.Path), logging.Error(err))
		return err
	}
	logger.Info("Rules loaded",
		logging.Path(cfg.Rules.Path),
		logging.Count(rules.Len()),
		"skipped", len(rules.Skipped))

	client, err := natsclient.NewClient(cfg.NATS.ClientConfig("hoistwaywatch-rules", logger.Logger))
	if err != nil {
		logger.Error("Failed to connect to NATS", "url", cfg.NATS.URL, logging.Error(err))
		return fmt.Errorf("connect nats: %w", err)
	}

	eng := engine.New(rules, correlation.NewStore(), engine.WithLogger(logger.Logger))
	svc := service.NewService(eng, client, service.Config{
		PublishSubject: cfg.Rules.Pub,
		Workers:        cfg.Rules.Workers,
		QueueSize:      cfg.Rules.QueueSize,
	}, logger)

	handler := rulesnats.NewHandler(client, cfg.Rules.Sub, cfg.Rules.Queue, svc.HandleMessage).
		WithLogger(logger.Logger)
	if err := handler.Start(ctx); err != nil {
		_ = client.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Run outlives the signal; it returns once Close has drained the queue.
		return svc.Run(context.WithoutCancel(gctx))
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		_ = handler.Stop()
		svc.Close()
		return nil
	})

	if cfg.Metrics.Addr != "" {
		mux := httputil.NewOpsMux(httputil.BrokerReadiness(client), prometheus.DefaultGatherer)
		g.Go(func() error {
			logger.Info("Ops listener started", "addr", cfg.Metrics.Addr)
			return httputil.Serve(gctx, cfg.Metrics.Addr, middleware.RequestID(middleware.AccessLog(logger)(mux)), logger.Logger)
		})
	}

	logger.Info("Rules service started",
		logging.Subject(cfg.Rules.Sub),
		"publish_subject", cfg.Rules.Pub,
		"workers", cfg.Rules.Workers,
		"queue_size", cfg.Rules.QueueSize)

	runErr := g.Wait()

	if err := client.Drain(); err != nil {
		logger.Warn("NATS drain failed", logging.Error(err))
	}
	if runErr != nil {
		logger.Error("Rules service stopped with error", logging.Error(runErr))
		return runErr
	}
	logger.Info("Rules service stopped")
	return nil
}
