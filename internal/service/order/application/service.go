// internal/service/order/application/service.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/events"
	"vinheria/internal/pkg/logger"
	"vinheria/internal/pkg/metrics"
	"vinheria/internal/service/order/application/saga"
	"vinheria/internal/service/order/domain"
	"vinheria/internal/service/order/port"
)

// OrderApplicationService 只负责下单流程的编排，具体步骤在 saga 责任链中。
type OrderApplicationService struct {
	serviceName      string
	tracer           trace.Tracer
	inventoryService port.InventoryService
	metrics          *metrics.Metrics
	emitter          events.Emitter
	chain            saga.Handler
}

func NewOrderApplicationService(serviceName string, tracer trace.Tracer, inventoryService port.InventoryService, m *metrics.Metrics, emitter events.Emitter) *OrderApplicationService {
	return &OrderApplicationService{
		serviceName:      serviceName,
		tracer:           tracer,
		inventoryService: inventoryService,
		metrics:          m,
		emitter:          emitter,
		chain:            buildChain(),
	}
}

// PlaceOrder 为一次请求执行责任链。
// 失败时返回 *apperr.Error，错误类型说明是哪一步失败。
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.String("product", req.Product), attribute.Int("quantity", req.Quantity))

	// 1. 构造责任链所需的上下文
	orderCtx := &saga.OrderContext{
		Ctx:              ctx,
		Tracer:           s.tracer,
		Intent:           req.intent(),
		Credential:       req.Credential,
		InventoryService: s.inventoryService,
	}

	// 2. 执行责任链：校验 -> 查库存 -> 预占 -> 确认
	if err := s.chain.Handle(orderCtx); err != nil {
		kind := apperr.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		s.metrics.Orders.WithLabelValues(string(kind)).Inc()

		attrs := map[string]any{
			"product":  req.Product,
			"quantity": req.Quantity,
			"kind":     string(kind),
		}
		if e, ok := apperr.As(err); ok && e.Stock != nil {
			attrs["available"] = e.Stock.Available
		}
		s.emitter.Emit(ctx, events.New(ctx, s.serviceName, events.OrderRejected, attrs))

		// 业务拒绝记 warn，只有内部错误记 error
		logEvt := logger.Ctx(ctx).Warn()
		if kind == apperr.KindInternal {
			logEvt = logger.Ctx(ctx).Error()
		}
		logEvt.Err(err).
			Str("product", req.Product).
			Int("quantity", req.Quantity).
			Str("kind", string(kind)).
			Msg("order rejected")
		return nil, err
	}

	// 3. 流程成功，记录指标和事件
	order := orderCtx.Order
	span.SetAttributes(attribute.String("order.id", order.ID))
	s.metrics.Orders.WithLabelValues(string(domain.StateConfirmed)).Inc()
	s.emitter.Emit(ctx, events.New(ctx, s.serviceName, events.OrderConfirmed, map[string]any{
		"order_id":       order.ID,
		"reservation_id": order.Reservation.ID,
		"product":        order.Product,
		"quantity":       order.Quantity,
	}))
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("reservation_id", order.Reservation.ID).
		Str("product", order.Product).
		Int("quantity", order.Quantity).
		Msg("order confirmed")
	return order, nil
}

func buildChain() saga.Handler {
	chain := new(saga.ValidateHandler)
	chain.
		SetNext(new(saga.StockCheckHandler)).
		SetNext(new(saga.ReserveHandler)).
		SetNext(new(saga.ConfirmHandler))
	return chain
}
