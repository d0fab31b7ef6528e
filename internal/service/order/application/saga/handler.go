package saga

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vinheria/internal/service/order/domain"
	"vinheria/internal/service/order/port"
)

// OrderContext 在责任链中传递一次下单的上下文。
// 外部依赖都是出站端口 (port) 的抽象接口。
type OrderContext struct {
	Ctx    context.Context
	Tracer trace.Tracer

	Intent     domain.PurchaseIntent
	Credential string

	InventoryService port.InventoryService

	// 以下字段随责任链推进逐步填充
	Available   int
	Reservation *domain.ReservationReceipt
	Order       *domain.Order
}

// Handler 是责任链中的一个步骤：要么失败并结束整条链，要么交给下一个步骤。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
