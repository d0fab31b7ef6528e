package port

import (
	"context"

	"vinheria/internal/service/order/domain"
)

// InventoryService 是库存服务的出站端口。
// credential 是调用方的 Authorization 头，原样转发。
//
// 失败时返回 *apperr.Error：传输层问题为 KindUpstreamUnavailable，
// 库存服务拒绝的请求保留它报告的类型。
type InventoryService interface {
	QueryStock(ctx context.Context, product, credential string) (int, error)
	ReserveStock(ctx context.Context, product string, quantity int, credential string) (*domain.ReservationReceipt, error)
}
