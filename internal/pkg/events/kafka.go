package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"vinheria/internal/pkg/logger"
)

const (
	publishTimeout = 2 * time.Second
	queueSize      = 1024
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter 按 product 做 key，同一商品的事件落在同一分区内保持有序。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

type queuedMessage struct {
	eventType string
	msg       kafka.Message
}

// KafkaEmitter 把事件以 JSON 发到 Kafka。
// Emit 只负责入队，真正的发送在后台 goroutine 里完成：库存已经扣减，
// 响应不能等一个慢 broker。队列满时丢弃事件并记录告警。
type KafkaEmitter struct {
	writer messageWriter
	queue  chan queuedMessage
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewKafkaEmitter(writer messageWriter) *KafkaEmitter {
	k := &KafkaEmitter{
		writer: writer,
		queue:  make(chan queuedMessage, queueSize),
		done:   make(chan struct{}),
	}
	go k.run()
	return k
}

func (k *KafkaEmitter) Emit(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event", e.Type).Msg("marshal event")
		return
	}

	var key []byte
	if p, ok := e.Attributes["product"].(string); ok {
		key = []byte(p)
	}

	msg := kafka.Message{Key: key, Value: payload}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		logger.Ctx(ctx).Warn().Str("event", e.Type).Msg("event emitter closed, dropping event")
		return
	}
	select {
	case k.queue <- queuedMessage{eventType: e.Type, msg: msg}:
	default:
		logger.Ctx(ctx).Warn().Str("event", e.Type).Msg("event queue full, dropping event")
	}
}

// run 串行发送队列中的消息，直到 Close 关闭队列
func (k *KafkaEmitter) run() {
	defer close(k.done)
	for q := range k.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := k.writer.WriteMessages(ctx, q.msg)
		cancel()
		if err != nil {
			logger.Ctx(context.Background()).Warn().Err(err).Str("event", q.eventType).Msg("failed to publish event")
		}
	}
}

// Close 先把已入队的事件发完，再关闭 writer
func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	if !k.closed {
		k.closed = true
		close(k.queue)
	}
	k.mu.Unlock()
	<-k.done
	return k.writer.Close()
}

// headerCarrier 让 kafka 消息头实现 propagation.TextMapCarrier，
// 用于把 trace 上下文注入消息
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
