package bootstrap

import (
	"vinheria/internal/pkg/events"
)

// NewEmitter 事件总是写日志；配置了 brokers 时同时发到 Kafka
func NewEmitter(cfg *Config) events.Emitter {
	if len(cfg.Events.Kafka.Brokers) == 0 {
		return events.LogEmitter{}
	}
	writer := events.NewKafkaWriter(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
	return events.Multi(events.LogEmitter{}, events.NewKafkaEmitter(writer))
}
