package saga

// ValidateHandler 步骤 1: 在发起任何远程调用之前校验请求
type ValidateHandler struct {
	NextHandler
}

func (h *ValidateHandler) Handle(orderCtx *OrderContext) error {
	_, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Validate")
	defer span.End()

	if err := orderCtx.Intent.Validate(); err != nil {
		return fail(span, err)
	}
	return h.executeNext(orderCtx)
}
