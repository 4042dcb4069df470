package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"WalletFleet/internal/api"
	"WalletFleet/internal/auth"
	"WalletFleet/internal/config"
	"WalletFleet/internal/job"
	"WalletFleet/internal/ledger/provider"
	"WalletFleet/internal/observability/metrics"
	"WalletFleet/pkg/logger"
)

// main 是钱包集群守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("fleetd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	logger.L().Info("配置加载完成", slog.String("path", cfg.Path))

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o700); err != nil {
		return err
	}

	registry, err := provider.NewRegistry(cfg.Ledger)
	if err != nil {
		return err
	}
	defer registry.Close()
	ledgerClient, err := registry.DefaultClient()
	if err != nil {
		return err
	}
	logger.L().Info("账本集群就绪",
		slog.String("default", registry.DefaultCluster()),
		slog.Any("clusters", registry.Clusters()),
	)

	fleetSvc, err := newFleetService(cfg, ledgerClient)
	if err != nil {
		return err
	}

	store, err := newJobStore(ctx, cfg.Storage.JobStore)
	if err != nil {
		return err
	}
	queue, err := newJobQueue(ctx, cfg.JobQueue)
	if err != nil {
		_ = store.Close()
		return err
	}
	jobs := job.NewService(store, queue, cfg.Storage.JobStore.Retries)
	defer func() {
		if err := jobs.Close(); err != nil {
			logger.L().Error("关闭作业服务失败", slog.Any("error", err))
		}
	}()

	processor := job.NewProcessor(job.NewDistributionRunner(fleetSvc), store, queue, queue,
		job.WithWorkerCount(cfg.JobQueue.Workers),
		job.WithAlertDispatcher(newAlerter(cfg.Observability.Alerting)),
	)

	authSvc, err := auth.NewService(auth.Config{
		Mode:   auth.Mode(cfg.Auth.Mode),
		Secret: cfg.Auth.ResolveSecret(),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL(),
	})
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, fleetSvc,
		api.WithJobs(jobs),
		api.WithAuth(authSvc),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout()),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ignoreCanceled(processor.Start(groupCtx))
	})
	if addr := cfg.Observability.MetricsAddress; addr != "" {
		group.Go(func() error {
			return ignoreCanceled(metrics.StartServer(groupCtx, addr))
		})
	}
	group.Go(func() error {
		return ignoreCanceled(server.Start(groupCtx))
	})
	return group.Wait()
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
