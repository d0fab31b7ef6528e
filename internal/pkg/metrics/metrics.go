// Package metrics 两个服务的 prometheus 指标。
// 每个服务使用独立的 registry，测试里可以随意创建多个实例。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	Reservations    *prometheus.CounterVec
	Restocks        prometheus.Counter
	Orders          *prometheus.CounterVec
	UpstreamCalls   *prometheus.HistogramVec
}

// New 在新的 registry 上注册 service 的全部指标
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	constLabels := prometheus.Labels{"service": service}

	return &Metrics{
		registry: reg,
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "Latency of inbound HTTP requests.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "inventory_reservations_total",
			Help:        "Reserve attempts by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		Restocks: f.NewCounter(prometheus.CounterOpts{
			Name:        "inventory_restocks_total",
			Help:        "Successful restock operations.",
			ConstLabels: constLabels,
		}),
		Orders: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "orders_total",
			Help:        "Place-order attempts by outcome kind.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		UpstreamCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "upstream_call_duration_seconds",
			Help:        "Latency of calls to the inventory authority.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"operation", "code"}),
	}
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (r *codeRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware 按匹配到的 mux 路由模板统计请求耗时
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &codeRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Observe(time.Since(start).Seconds())
	})
}
