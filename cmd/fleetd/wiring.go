package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"WalletFleet/internal/batch"
	"WalletFleet/internal/config"
	"WalletFleet/internal/distribution"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/job"
	"WalletFleet/internal/keystore"
	"WalletFleet/internal/ledger"
	"WalletFleet/internal/observability/alerting"
	"WalletFleet/internal/partition"
	storagemysql "WalletFleet/internal/storage/mysql"
	"WalletFleet/internal/swap"
	"WalletFleet/pkg/logger"
)

// newFleetService 组装密钥存储、出资账户、兑换服务与批量执行器。
func newFleetService(cfg *config.Config, client ledger.Client) (*distribution.Service, error) {
	keys, err := keystore.NewFileStore(cfg.Fleet.KeyFile)
	if err != nil {
		return nil, err
	}

	generator := partition.NewRandom()
	if cfg.Fleet.Seed != 0 {
		generator = partition.New(cfg.Fleet.Seed)
	}
	executor := batch.NewExecutor(client,
		batch.WithConcurrency(cfg.Fleet.Concurrency),
		batch.WithLogger(logger.Named("batch")),
	)

	opts := []distribution.Option{
		distribution.WithExecutor(executor),
		distribution.WithGenerator(generator),
		distribution.WithFeeReserve(cfg.Fleet.FeeReserveLamports),
		distribution.WithSlippageBps(cfg.Swap.DefaultSlippageBps),
		distribution.WithLogger(logger.Named("distribution")),
	}
	if secret := cfg.Fleet.ResolveFunderSecret(); secret != "" {
		key, err := keystore.ParseSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("解析出资账户密钥失败: %w", err)
		}
		opts = append(opts, distribution.WithFunder(fleet.Account{
			Address:   key.PublicKey().String(),
			PublicKey: key.PublicKey(),
			Key:       key,
		}))
	}
	quoter, err := newQuoter(cfg.Swap)
	if err != nil {
		return nil, err
	}
	if quoter != nil {
		opts = append(opts, distribution.WithQuoter(quoter))
	}
	return distribution.New(keys, client, opts...)
}

func newQuoter(cfg config.SwapConfig) (swap.Quoter, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var provider swap.Quoter
	switch name {
	case "", "jupiter":
		name = "jupiter"
		provider = swap.NewJupiter(swap.JupiterConfig{BaseURL: cfg.JupiterBaseURL, Timeout: cfg.Timeout()})
	case "pumpportal":
		pump, err := swap.NewPumpPortal(swap.PumpPortalConfig{
			BaseURL:     cfg.PumpPortalBaseURL,
			Timeout:     cfg.Timeout(),
			PriorityFee: cfg.PriorityFee,
			Pool:        cfg.Pool,
		})
		if err != nil {
			return nil, err
		}
		provider = pump
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的兑换服务: %s", cfg.Provider)
	}
	failures := cfg.BreakerFailures
	if failures < 0 {
		failures = 0
	}
	return swap.NewBreaker(name, provider, swap.BreakerConfig{
		ConsecutiveFailures: uint32(failures),
		OpenTimeout:         cfg.BreakerOpen(),
	}, logger.Named("swap")), nil
}

func newJobStore(ctx context.Context, cfg config.JobStoreConfig) (job.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return job.NewMemoryStore(), nil
	case "mysql":
		db, err := storagemysql.Open(ctx, storagemysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return job.NewMySQLStore(db)
	default:
		return nil, fmt.Errorf("未知的作业存储驱动: %s", cfg.Driver)
	}
}

func newJobQueue(ctx context.Context, cfg config.JobQueueConfig) (job.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return job.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		return job.NewRedisQueue(ctx, job.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:             cfg.RabbitMQ.URL,
			Queue:           cfg.RabbitMQ.Queue,
			Prefetch:        cfg.RabbitMQ.Prefetch,
			Durable:         cfg.RabbitMQ.Durable,
			AutoDelete:      cfg.RabbitMQ.AutoDelete,
			DeadLetterQueue: cfg.RabbitMQ.DeadLetterQueue,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

func newAlerter(cfg config.AlertingConfig) alerting.Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Named("alert")}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.WebhookURL,
			Client: &http.Client{Timeout: 10 * time.Second},
		})
	}
	return alerting.NewFanout(notifiers...)
}
