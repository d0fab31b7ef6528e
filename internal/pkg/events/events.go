// Package events 是两个服务上报业务结果的结构化事件通道。
// 事件发送失败不会影响产生事件的业务操作。
package events

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"vinheria/internal/pkg/logger"
)

const (
	StockReserved            = "stock.reserved"
	StockReservationRejected = "stock.reservation_rejected"
	StockRestocked           = "stock.restocked"
	OrderConfirmed           = "order.confirmed"
	OrderRejected            = "order.rejected"
)

// Event 一条业务结果
type Event struct {
	Type       string         `json:"type"`
	Service    string         `json:"service"`
	At         time.Time      `json:"at"`
	TraceID    string         `json:"trace_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type Emitter interface {
	Emit(ctx context.Context, e Event)
	Close() error
}

// New 为事件打上时间戳和 ctx 中的 trace id
func New(ctx context.Context, service, typ string, attrs map[string]any) Event {
	e := Event{Type: typ, Service: service, At: time.Now().UTC(), Attributes: attrs}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e.TraceID = sc.TraceID().String()
	}
	return e
}

// LogEmitter 把事件写入进程日志
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, e Event) {
	logger.Ctx(ctx).Info().
		Str("event", e.Type).
		Fields(e.Attributes).
		Msg("event emitted")
}

func (LogEmitter) Close() error { return nil }

type multi []Emitter

// Multi 把每个事件分发给所有 emitter
func Multi(emitters ...Emitter) Emitter {
	return multi(emitters)
}

func (m multi) Emit(ctx context.Context, e Event) {
	for _, em := range m {
		em.Emit(ctx, e)
	}
}

func (m multi) Close() error {
	var first error
	for _, em := range m {
		if err := em.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder 在内存中保存事件，测试用
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count 返回 typ 类型事件的数量
func (r *Recorder) Count(typ string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Type == typ {
			n++
		}
	}
	return n
}
