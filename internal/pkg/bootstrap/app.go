// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/auth"
	"vinheria/internal/pkg/logger"
	"vinheria/internal/pkg/metrics"
	"vinheria/internal/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

// AppCtx 传给 RegisterHandlers。
// 挂在 Secured 上的路由需要经过鉴权网关，挂在 Router 上的不需要。
type AppCtx struct {
	Router  *mux.Router
	Secured *mux.Router
	Config  *Config
	Metrics *metrics.Metrics
}

// AppInfo 包含一个服务启动所需的全部依赖
type AppInfo struct {
	Config           *Config
	Metrics          *metrics.Metrics
	Verifier         *auth.Verifier
	RegisterHandlers func(appCtx AppCtx)
	// OnShutdown 在 HTTP server 停止接收请求之后执行（关闭 Kafka、Redis 等）
	OnShutdown []func(ctx context.Context) error
}

// NewHandler 构建带路由和埋点的 handler
func NewHandler(info AppInfo) http.Handler {
	r := mux.NewRouter()
	r.Use(Recover, Trace(info.Config.Service.Name), logger.AccessLog)
	if info.Metrics != nil {
		r.Use(info.Metrics.Middleware)
		r.Handle("/metrics", info.Metrics.Handler()).Methods(http.MethodGet)
	}

	secured := r.NewRoute().Subrouter()
	secured.Use(auth.Middleware(info.Verifier))

	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Router: r, Secured: secured, Config: info.Config, Metrics: info.Metrics})
	}
	return r
}

// StartService 运行服务直到收到 SIGINT/SIGTERM，启动阶段的错误直接 fatal
func StartService(info AppInfo) {
	if err := Run(info); err != nil {
		logger.Ctx(context.Background()).Fatal().Err(err).Str("service", info.Config.Service.Name).Msg("service stopped with error")
	}
}

// Run 与 StartService 相同，但返回错误而不是退出
func Run(info AppInfo) error {
	cfg := info.Config
	log := logger.Ctx(context.Background())

	// 1. 证书文件不可读直接启动失败
	if cfg.TLS.Enabled() {
		if err := checkReadable(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			return err
		}
	}

	// 2. 初始化 TracerProvider
	tp, err := tracing.InitTracerProvider(cfg.Service.Name, cfg.Service.Version, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return errors.Wrap(err, "init tracer provider")
	}

	// 3. 构建 HTTP server
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.Port),
		Handler:           NewHandler(info),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 4. 监听退出信号，server 和关闭流程放在同一个 errgroup 中
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Bool("tls", cfg.TLS.Enabled()).Msgf("%s listening", cfg.Service.Name)
		var err error
		if cfg.TLS.Enabled() {
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", server.Addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msgf("shutting down %s", cfg.Service.Name)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 先停止接收新请求，再关闭依赖，最后 flush trace
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown")
		}
		for _, hook := range info.OnShutdown {
			if err := hook(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown hook")
			}
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("tracer provider shutdown")
		}
		log.Info().Msgf("%s gracefully shut down", cfg.Service.Name)
		return nil
	})

	return g.Wait()
}

func checkReadable(paths ...string) error {
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return errors.Wrap(err, "load tls material")
		}
		f.Close()
	}
	return nil
}

// Recover 把 handler 中的 panic 转成 InternalError 响应
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				err := errors.Errorf("panic: %v", v)
				logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("recovered from panic")
				apperr.Write(w, apperr.Internal(err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Trace 从请求头中提取上游的 trace 上下文，并为每个请求开启一个 server span
func Trace(serviceName string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(serviceName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, serviceName+" "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				))
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
