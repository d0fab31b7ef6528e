package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"vinheria/internal/pkg/apperr"
)

// ReserveHandler 步骤 3: 预占库存。以库存服务的回答为准，
// 上一步的查询只是参考，此时可能已经过期。
//
// 这里不注册补偿：之前的步骤都不修改状态，库存服务也没有释放接口。
type ReserveHandler struct {
	NextHandler
}

func (h *ReserveHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ReserveStock")
	defer span.End()

	intent := orderCtx.Intent
	receipt, err := orderCtx.InventoryService.ReserveStock(ctx, intent.Product, intent.Quantity, orderCtx.Credential)
	if err != nil {
		return fail(span, reservationFailed(err))
	}
	orderCtx.Reservation = receipt
	span.SetAttributes(
		attribute.String("reservation.id", receipt.ID),
		attribute.Int("stock.remaining", receipt.Remaining),
	)

	return h.executeNext(orderCtx)
}

// reservationFailed 在消息里保留上游的错误类型；上游报告库存不足时保留数量明细
func reservationFailed(err error) error {
	upstream := apperr.KindOf(err)
	out := apperr.Wrap(apperr.KindReservationFailed, err, fmt.Sprintf("inventory rejected the reservation (%s)", upstream))
	if e, ok := apperr.As(err); ok && e.Stock != nil {
		detail := *e.Stock
		out.Stock = &detail
	}
	return out
}
