package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuaworth/hoistwaywatch/alerting/internal/config"
	alertnats "github.com/joshuaworth/hoistwaywatch/alerting/internal/nats"
	"github.com/joshuaworth/hoistwaywatch/alerting/internal/sink"
	"github.com/joshuaworth/hoistwaywatch/common/alertlog"
	"github.com/joshuaworth/hoistwaywatch/common/httputil"
	"github.com/joshuaworth/hoistwaywatch/common/logging"
	natsclient "github.com/joshuaworth/hoistwaywatch/common/messaging/nats"
	"github.com/joshuaworth/hoistwaywatch/common/middleware"
)

const serviceName = "alerting"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var keys map[string]string

	cmd := &cobra.Command{
		Use:          "alerting",
		Short:        "Record HoistwayWatch alerts to an append-only log and trigger local actions",
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

	alertLog, err := alertlog.Open(cfg.Alerts.Log, nil)
	if err != nil {
		logger.Error("Failed to open alert log", logging.Path(cfg.Alerts.Log), logging.Error(err))
		return err
	}
	defer alertLog.Close()

	var echo io.Writer
	if cfg.Alerts.Echo {
		echo = os.Stdout
	}
	s := sink.New(alertLog, echo, sink.NewExecutor(cfg.Alerts.Exec, cfg.Alerts.ExecTimeout), logger)

	clientCfg := cfg.NATS.ClientConfig("hoistwaywatch-alerting", logger.Logger)
	opts := alertnats.Options{
		Subject:  cfg.Alerts.Sub,
		Queue:    cfg.Alerts.Queue,
		Consumer: cfg.Alerts.Consumer,
	}

	var client *natsclient.Client
	var consumer *alertnats.Consumer
	if cfg.Alerts.Durable {
		js, err := natsclient.NewJetStreamClient(clientCfg)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		client = js.Client
		consumer = alertnats.NewDurableConsumer(js, opts, s.HandleMessage)
	} else {
		client, err = natsclient.NewClient(clientCfg)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		consumer = alertnats.NewConsumer(client, opts, s.HandleMessage)
	}
	consumer.WithLogger(logger.Logger)

	if err := consumer.Start(ctx); err != nil {
		logger.Error("Failed to start alert consumer", logging.Error(err))
		_ = client.Close()
		return err
	}

	logger.Info("Alert sink started",
		logging.Path(alertLog.Path()),
		"exec", cfg.Alerts.Exec != "",
		"durable", cfg.Alerts.Durable)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if cfg.Metrics.Addr != "" {
		mux := httputil.NewOpsMux(httputil.BrokerReadiness(client), prometheus.DefaultGatherer)
		g.Go(func() error {
			return httputil.Serve(gctx, cfg.Metrics.Addr, middleware.RequestID(middleware.AccessLog(logger)(mux)), logger.Logger)
		})
	}

	runErr := g.Wait()

	logger.Info("Shutting down")
	consumer.Stop()
	if err := client.Drain(); err != nil {
		logger.Warn("NATS drain failed", logging.Error(err))
	}
	if runErr != nil {
		logger.Error("Alert sink stopped with error", logging.Error(runErr))
		return runErr
	}
	logger.Info("Alert sink stopped")
	return nil
}
