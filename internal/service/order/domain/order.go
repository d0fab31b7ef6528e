// internal/service/order/domain/order.go
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"vinheria/internal/pkg/apperr"
)

// PurchaseIntent 客户端的购买意图
type PurchaseIntent struct {
	Product  string
	Quantity int
}

func (i PurchaseIntent) Validate() error {
	if i.Product == "" {
		return apperr.InvalidRequest("product is required")
	}
	if i.Quantity <= 0 {
		return apperr.InvalidRequest("quantity must be greater than zero")
	}
	return nil
}

// ReservationReceipt 库存服务对预占成功的答复，Raw 保留原始响应体
type ReservationReceipt struct {
	ID        string
	Product   string
	Quantity  int
	Remaining int
	Raw       json.RawMessage
}

// Order 是订单聚合的根实体，只返回给客户端，不落库
type Order struct {
	ID          string
	Product     string
	Quantity    int
	State       State
	Reservation *ReservationReceipt
	CreatedAt   time.Time
}

// 工厂函数: NewConfirmedOrder 根据已接受的预占创建订单
func NewConfirmedOrder(intent PurchaseIntent, receipt *ReservationReceipt) *Order {
	return &Order{
		ID:          NewOrderID(),
		Product:     intent.Product,
		Quantity:    intent.Quantity,
		State:       StateConfirmed,
		Reservation: receipt,
		CreatedAt:   time.Now().UTC(),
	}
}

func NewOrderID() string {
	return "ORD-" + uuid.NewString()
}
