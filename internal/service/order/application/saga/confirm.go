package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"vinheria/internal/service/order/domain"
)

// ConfirmHandler 步骤 4: 把已接受的预占转成订单
type ConfirmHandler struct {
	NextHandler
}

func (h *ConfirmHandler) Handle(orderCtx *OrderContext) error {
	_, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Confirm")
	defer span.End()

	orderCtx.Order = domain.NewConfirmedOrder(orderCtx.Intent, orderCtx.Reservation)
	span.SetAttributes(attribute.String("order.id", orderCtx.Order.ID))

	return h.executeNext(orderCtx)
}
