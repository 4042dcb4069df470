package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 是覆盖配置项时使用的环境变量前缀，例如 WALLETFLEET_SERVER_ADDRESS。
const EnvPrefix = "WALLETFLEET"

// Config 描述了 WalletFleet 在启动阶段需要加载的核心配置。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	JobQueue      JobQueueConfig      `mapstructure:"job_queue"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Fleet         FleetConfig         `mapstructure:"fleet"`
	Swap          SwapConfig          `mapstructure:"swap"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Runtime       RuntimeConfig       `mapstructure:"runtime"`

	// Path 记录实际读取的配置文件，未读取文件时为空。
	Path string `mapstructure:"-"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                string `mapstructure:"address"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// ShutdownTimeout 返回优雅关闭的等待时间。
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// StorageConfig 统一描述任务存储等后端的连接信息。
type StorageConfig struct {
	JobStore JobStoreConfig `mapstructure:"job_store"`
}

// JobStoreConfig 支持内存实现与 MySQL 实现。
type JobStoreConfig struct {
	Driver                 string `mapstructure:"driver"`
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `mapstructure:"conn_max_idle_time_seconds"`
	Retries                int    `mapstructure:"retries"`
}

// JobQueueConfig 描述异步任务队列。
type JobQueueConfig struct {
	Driver   string         `mapstructure:"driver"`
	Workers  int            `mapstructure:"workers"`
	Buffer   int            `mapstructure:"buffer"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接参数。
type RedisConfig struct {
	Address          string `mapstructure:"address"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	Queue            string `mapstructure:"queue"`
	BlockWaitSeconds int    `mapstructure:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接参数。
type RabbitMQConfig struct {
	URL             string `mapstructure:"url"`
	Queue           string `mapstructure:"queue"`
	Prefetch        int    `mapstructure:"prefetch"`
	Durable         bool   `mapstructure:"durable"`
	AutoDelete      bool   `mapstructure:"auto_delete"`
	DeadLetterQueue string `mapstructure:"dead_letter_queue"`
}

// LedgerConfig 包含访问链上节点所需的 RPC 信息。
type LedgerConfig struct {
	RPCURL                string `mapstructure:"rpc_url"`
	ClusterConfig         string `mapstructure:"cluster_config"`
	DefaultCluster        string `mapstructure:"default_cluster"`
	Commitment            string `mapstructure:"commitment"`
	PollIntervalMillis    int    `mapstructure:"poll_interval_millis"`
	ConfirmTimeoutSeconds int    `mapstructure:"confirm_timeout_seconds"`
	SkipPreflight         bool   `mapstructure:"skip_preflight"`
}

// PollInterval 返回确认轮询间隔。
func (l LedgerConfig) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalMillis) * time.Millisecond
}

// ConfirmTimeout 返回确认超时时间。
func (l LedgerConfig) ConfirmTimeout() time.Duration {
	return time.Duration(l.ConfirmTimeoutSeconds) * time.Second
}

// FleetConfig 描述钱包集群本身：密钥文件、出资账户与执行参数。
type FleetConfig struct {
	KeyFile            string `mapstructure:"key_file"`
	FunderSecret       string `mapstructure:"funder_secret"`
	FunderSecretEnv    string `mapstructure:"funder_secret_env"`
	FeeReserveLamports uint64 `mapstructure:"fee_reserve_lamports"`
	Concurrency        int    `mapstructure:"concurrency"`
	Seed               uint64 `mapstructure:"seed"`
}

// ResolveFunderSecret 优先读取直接配置的密钥，其次读取指定的环境变量。
func (f FleetConfig) ResolveFunderSecret() string {
	if secret := strings.TrimSpace(f.FunderSecret); secret != "" {
		return secret
	}
	if f.FunderSecretEnv != "" {
		return strings.TrimSpace(os.Getenv(f.FunderSecretEnv))
	}
	return ""
}

// SwapConfig 描述兑换服务的访问方式。
type SwapConfig struct {
	// Provider 取值 jupiter、pumpportal 或 none。
	Provider           string `mapstructure:"provider"`
	JupiterBaseURL     string `mapstructure:"jupiter_base_url"`
	PumpPortalBaseURL  string `mapstructure:"pumpportal_base_url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	DefaultSlippageBps int    `mapstructure:"default_slippage_bps"`
	PriorityFee        string `mapstructure:"priority_fee"`
	Pool               string `mapstructure:"pool"`
	// BreakerFailures 为连续失败多少次后熔断，0 表示关闭熔断。
	BreakerFailures    int    `mapstructure:"breaker_failures"`
	BreakerOpenSeconds int    `mapstructure:"breaker_open_seconds"`
}

// Timeout 返回兑换服务请求超时。
func (s SwapConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// BreakerOpen 返回熔断后的冷却时间。
func (s SwapConfig) BreakerOpen() time.Duration {
	return time.Duration(s.BreakerOpenSeconds) * time.Second
}

// AuthConfig 控制 API 的认证方式。
type AuthConfig struct {
	Mode            string `mapstructure:"mode"`
	Secret          string `mapstructure:"secret"`
	SecretEnv       string `mapstructure:"secret_env"`
	Issuer          string `mapstructure:"issuer"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

// ResolveSecret 返回 JWT 签名密钥。
func (a AuthConfig) ResolveSecret() string {
	if secret := strings.TrimSpace(a.Secret); secret != "" {
		return secret
	}
	if a.SecretEnv != "" {
		return strings.TrimSpace(os.Getenv(a.SecretEnv))
	}
	return ""
}

// TokenTTL 返回令牌有效期。
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// ObservabilityConfig 描述指标与告警。
type ObservabilityConfig struct {
	MetricsAddress string         `mapstructure:"metrics_address"`
	Alerting       AlertingConfig `mapstructure:"alerting"`
}

// AlertingConfig 描述告警通道。
type AlertingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	OutputPaths []string    `mapstructure:"output_paths"`
	Audit       AuditConfig `mapstructure:"audit"`
}

// AuditConfig 描述审计日志的滚动策略。
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// DefaultPath 返回默认配置文件路径，可通过 WALLETFLEET_CONFIG 覆盖。
func DefaultPath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		return path
	}
	return filepath.Join("configs", "walletfleet.json")
}

// Load 解析指定路径的配置文件（JSON 或 YAML），并允许通过环境变量覆盖。
// 文件不存在时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// setDefaults 注册所有键，使 AutomaticEnv 能覆盖文件中未出现的配置项。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("storage.job_store.driver", "memory")
	v.SetDefault("storage.job_store.dsn", "")
	v.SetDefault("storage.job_store.max_open_conns", 10)
	v.SetDefault("storage.job_store.max_idle_conns", 5)
	v.SetDefault("storage.job_store.conn_max_lifetime_seconds", 300)
	v.SetDefault("storage.job_store.conn_max_idle_time_seconds", 60)
	v.SetDefault("storage.job_store.retries", 1)

	v.SetDefault("job_queue.driver", "memory")
	v.SetDefault("job_queue.workers", 1)
	v.SetDefault("job_queue.buffer", 1024)
	v.SetDefault("job_queue.redis.address", "")
	v.SetDefault("job_queue.redis.password", "")
	v.SetDefault("job_queue.redis.db", 0)
	v.SetDefault("job_queue.redis.queue", "walletfleet:jobs")
	v.SetDefault("job_queue.redis.block_wait_seconds", 5)
	v.SetDefault("job_queue.rabbitmq.url", "")
	v.SetDefault("job_queue.rabbitmq.queue", "walletfleet.jobs")
	v.SetDefault("job_queue.rabbitmq.prefetch", 1)
	v.SetDefault("job_queue.rabbitmq.durable", true)
	v.SetDefault("job_queue.rabbitmq.auto_delete", false)
	v.SetDefault("job_queue.rabbitmq.dead_letter_queue", "")

	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.cluster_config", "")
	v.SetDefault("ledger.default_cluster", "")
	v.SetDefault("ledger.commitment", "confirmed")
	v.SetDefault("ledger.poll_interval_millis", 2000)
	v.SetDefault("ledger.confirm_timeout_seconds", 90)
	v.SetDefault("ledger.skip_preflight", false)

	v.SetDefault("fleet.key_file", "")
	v.SetDefault("fleet.funder_secret", "")
	v.SetDefault("fleet.funder_secret_env", "")
	v.SetDefault("fleet.fee_reserve_lamports", 5000)
	v.SetDefault("fleet.concurrency", 1)
	v.SetDefault("fleet.seed", 0)

	v.SetDefault("swap.provider", "jupiter")
	v.SetDefault("swap.jupiter_base_url", "https://lite-api.jup.ag/swap/v1")
	v.SetDefault("swap.pumpportal_base_url", "https://pumpportal.fun/api")
	v.SetDefault("swap.timeout_seconds", 30)
	v.SetDefault("swap.default_slippage_bps", 300)
	v.SetDefault("swap.priority_fee", "0.00001")
	v.SetDefault("swap.pool", "pump")
	v.SetDefault("swap.breaker_failures", 5)
	v.SetDefault("swap.breaker_open_seconds", 30)

	v.SetDefault("auth.mode", "disabled")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.secret_env", "")
	v.SetDefault("auth.issuer", "walletfleet")
	v.SetDefault("auth.token_ttl_minutes", 60)

	v.SetDefault("observability.metrics_address", "")
	v.SetDefault("observability.alerting.enabled", true)
	v.SetDefault("observability.alerting.webhook_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.audit.enabled", false)
	v.SetDefault("logging.audit.path", "")
	v.SetDefault("logging.audit.max_size_mb", 100)
	v.SetDefault("logging.audit.max_backups", 7)
	v.SetDefault("logging.audit.max_age_days", 30)
	v.SetDefault("logging.audit.compress", true)

	v.SetDefault("runtime.data_dir", "")
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值，并把相对路径解析到配置文件所在目录。
func (c *Config) applyDefaults(baseDir string) {
	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Fleet.KeyFile == "" {
		c.Fleet.KeyFile = filepath.Join(c.Runtime.DataDir, "wallets.json")
	} else if !filepath.IsAbs(c.Fleet.KeyFile) {
		c.Fleet.KeyFile = filepath.Join(baseDir, c.Fleet.KeyFile)
	}

	if c.Ledger.ClusterConfig != "" && !filepath.IsAbs(c.Ledger.ClusterConfig) {
		c.Ledger.ClusterConfig = filepath.Join(baseDir, c.Ledger.ClusterConfig)
	}

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}

	if c.Fleet.Concurrency <= 0 {
		c.Fleet.Concurrency = 1
	}
	if c.JobQueue.Workers <= 0 {
		c.JobQueue.Workers = 1
	}
	if c.Storage.JobStore.Retries <= 0 {
		c.Storage.JobStore.Retries = 1
	}
}
