package infrastructure

import (
	"context"
	"fmt"
	"math"
	"sync"

	"vinheria/internal/pkg/apperr"
)

// MemoryRepository 用一把互斥锁保护的 map 存库存，
// 每个方法在整个"读-改-写"过程中持有锁。
type MemoryRepository struct {
	mu    sync.Mutex
	stock map[string]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{stock: make(map[string]int)}
}

func (r *MemoryRepository) Seed(_ context.Context, catalog map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stock = make(map[string]int, len(catalog))
	for p, q := range catalog {
		r.stock[p] = q
	}
	return nil
}

func (r *MemoryRepository) Quantity(_ context.Context, product string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stock[product], nil
}

func (r *MemoryRepository) Snapshot(_ context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.stock))
	for p, q := range r.stock {
		out[p] = q
	}
	return out, nil
}

func (r *MemoryRepository) Reserve(_ context.Context, product string, quantity int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.stock[product]
	if current < quantity {
		return current, apperr.InsufficientStock(current, quantity)
	}
	r.stock[product] = current - quantity
	return r.stock[product], nil
}

func (r *MemoryRepository) Restock(_ context.Context, product string, quantity int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.stock[product]
	// 库存非负，current 不会让减法溢出
	if quantity > math.MaxInt-current {
		return current, errRestockOverflow(product)
	}
	r.stock[product] = current + quantity
	return r.stock[product], nil
}

// errRestockOverflow 两个后端共用：补货后库存超出整数范围
func errRestockOverflow(product string) error {
	return apperr.InvalidRequest(fmt.Sprintf("restock would overflow the stock of %q", product))
}
