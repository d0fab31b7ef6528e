package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/logger"
)

// StockCheckHandler 步骤 2: 查询库存，不足时提前终止，不再发起预占
type StockCheckHandler struct {
	NextHandler
}

func (h *StockCheckHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.StockCheck")
	defer span.End()

	intent := orderCtx.Intent
	available, err := orderCtx.InventoryService.QueryStock(ctx, intent.Product, orderCtx.Credential)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			err = apperr.Wrap(apperr.KindUpstreamUnavailable, err, "inventory service unavailable")
		}
		return fail(span, err)
	}
	span.SetAttributes(attribute.Int("stock.available", available))

	if available < intent.Quantity {
		return fail(span, apperr.InsufficientStock(available, intent.Quantity))
	}
	orderCtx.Available = available
	logger.Ctx(ctx).Debug().
		Str("product", intent.Product).
		Int("available", available).
		Int("requested", intent.Quantity).
		Msg("stock check passed")

	return h.executeNext(orderCtx)
}
