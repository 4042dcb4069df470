package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"WalletFleet/internal/auth"
	"WalletFleet/internal/distribution"
	"WalletFleet/internal/fleet"
	"WalletFleet/internal/job"
	"WalletFleet/internal/observability/metrics"
	"WalletFleet/pkg/logger"
)

// Fleet 是 API 依赖的钱包集群操作，由 distribution.Service 实现。
type Fleet interface {
	CreateWallets(ctx context.Context, count int) ([]string, error)
	AccountInfo(ctx context.Context, commitment string) ([]distribution.AccountInfo, error)
	Fund(ctx context.Context, req distribution.FundRequest) (fleet.Summary, error)
	Sweep(ctx context.Context, req distribution.SweepRequest) (fleet.Summary, error)
	BuyAll(ctx context.Context, req distribution.BuyRequest) (fleet.Summary, error)
	SellAll(ctx context.Context, req distribution.SellRequest) (fleet.Summary, error)
}

// Jobs 是异步作业接口，由 job.Service 实现。
type Jobs interface {
	Submit(ctx context.Context, req job.Request) (*job.Job, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	List(ctx context.Context, opts ...job.ListOption) ([]*job.Job, error)
	Stats(ctx context.Context, opts ...job.ListOption) (job.Stats, error)
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr            string
	fleet           Fleet
	jobs            Jobs
	auth            *auth.Service
	shutdownTimeout time.Duration
	log             *slog.Logger
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithJobs 启用 /api/v1/jobs 接口。
func WithJobs(jobs Jobs) Option {
	return func(s *Server) {
		s.jobs = jobs
	}
}

// WithAuth 为除健康检查外的所有接口启用认证。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger 指定服务日志。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, f Fleet, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		fleet:           f,
		shutdownTimeout: 5 * time.Second,
		log:             logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	protected := http.NewServeMux()
	s.route(protected, "POST /wallets/create-wallets", s.handleCreateWallets)
	s.route(protected, "POST /wallets/info", s.handleAccountInfo)
	s.route(protected, "POST /wallets/fund-wallets", s.handleFund)
	s.route(protected, "POST /wallets/withdraw-to-wallet", s.handleSweep)
	s.route(protected, "POST /trade/buy-token-all-wallets", s.handleBuyAll)
	s.route(protected, "POST /trade/sell-token-all-wallets", s.handleSellAll)
	if s.jobs != nil {
		s.route(protected, "POST /api/v1/jobs", s.handleSubmitJob)
		s.route(protected, "GET /api/v1/jobs", s.handleListJobs)
		s.route(protected, "GET /api/v1/jobs/stats", s.handleJobStats)
		s.route(protected, "GET /api/v1/jobs/{id}", s.handleJobDetail)
	}

	root := http.NewServeMux()
	s.route(root, "GET /healthz", s.handleHealth)
	var guarded http.Handler = protected
	if s.auth != nil {
		guarded = s.auth.Middleware(auth.FleetPermissions())(protected)
	}
	root.Handle("/", guarded)
	return root
}

// route 注册处理函数并记录请求指标。
func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler(sw, r)
		metrics.ObserveHTTPRequest(pattern, r.Method, sw.status, time.Since(start))
	}))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
