// internal/service/order/application/dto.go
package application

import "vinheria/internal/service/order/domain"

// PlaceOrderRequest 下单用例的输入
type PlaceOrderRequest struct {
	Product  string
	Quantity int
	// Credential 调用方的 Authorization 头，原样转发给库存服务
	Credential string
}

func (r *PlaceOrderRequest) intent() domain.PurchaseIntent {
	return domain.PurchaseIntent{Product: r.Product, Quantity: r.Quantity}
}
