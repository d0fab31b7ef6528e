// internal/service/inventory/domain/stock.go
package domain

import (
	"context"

	"github.com/google/uuid"

	"vinheria/internal/pkg/apperr"
)

// DefaultCatalog 未配置商品目录时使用的初始库存
func DefaultCatalog() map[string]int {
	return map[string]int{
		"Vinho Tinto Reserva":   50,
		"Vinho Branco Especial": 30,
		"Champagne Premium":     15,
		"Rosé Clássico":         25,
		"Espumante Nacional":    40,
	}
}

// StockView 库存查询结果。只有未指定商品时才设置 Inventory，此时 Quantity 为总量。
type StockView struct {
	Product   string
	Quantity  int
	Inventory map[string]int
}

// Reservation 预占成功的结果，只返回给调用方，不落库
type Reservation struct {
	ID        string
	Product   string
	Quantity  int
	Remaining int
}

// StockRepository 持有 商品 -> 可用数量 的映射。
// 实现必须保证 Reserve 的"读取-检查-扣减"相对其他 Reserve/Restock 是原子的。
type StockRepository interface {
	// Seed 整体替换映射
	Seed(ctx context.Context, catalog map[string]int) error
	// Quantity 未知商品返回 0
	Quantity(ctx context.Context, product string) (int, error)
	Snapshot(ctx context.Context) (map[string]int, error)
	// Reserve 库存不足时返回 apperr.InsufficientStock，库存保持不变
	Reserve(ctx context.Context, product string, quantity int) (remaining int, err error)
	// Restock 会创建未知商品；结果超出整数范围时返回 apperr.InvalidRequest
	Restock(ctx context.Context, product string, quantity int) (newQuantity int, err error)
}

// ValidateRequest 预占和补货共用的前置校验。商品名原样使用，不做归一化。
func ValidateRequest(product string, quantity int) error {
	if product == "" {
		return apperr.InvalidRequest("product is required")
	}
	if quantity <= 0 {
		return apperr.InvalidRequest("quantity must be greater than zero")
	}
	return nil
}

// NewReservationID 生成不会冲突的预占编号
func NewReservationID() string {
	return "RES-" + uuid.NewString()
}

func Total(inventory map[string]int) int {
	total := 0
	for _, q := range inventory {
		total += q
	}
	return total
}
