// Package logger 封装 zerolog：进程级默认配置，以及会自动带上 trace id 的 Ctx(ctx)。
package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Config 日志级别和输出格式
type Config struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 初始化进程日志，同时替换 zerolog 的全局 logger，
// 保证直接使用 zerolog/log 的代码输出格式一致。
func Init(service string, cfg Config) zerolog.Logger {
	return InitWithWriter(os.Stdout, service, cfg)
}

func InitWithWriter(w io.Writer, service string, cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	base = zerolog.New(w).Level(level).With().Timestamp().Str("service", service).Logger()
	zlog.Logger = base
	return base
}

// Ctx 返回带有 ctx 中 trace_id / span_id 的 logger
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog 每个请求结束后记录一行访问日志
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
