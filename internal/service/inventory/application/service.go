// internal/service/inventory/application/service.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/events"
	"vinheria/internal/pkg/logger"
	"vinheria/internal/pkg/metrics"
	"vinheria/internal/service/inventory/domain"
)

// InventoryService 是访问库存仓储的唯一入口，所有修改都经过 Reserve 或 Restock
type InventoryService struct {
	serviceName string
	repo        domain.StockRepository
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	emitter     events.Emitter
	newID       func() string
}

func NewInventoryService(serviceName string, repo domain.StockRepository, tracer trace.Tracer, m *metrics.Metrics, emitter events.Emitter) *InventoryService {
	return &InventoryService{
		serviceName: serviceName,
		repo:        repo,
		tracer:      tracer,
		metrics:     m,
		emitter:     emitter,
		newID:       domain.NewReservationID,
	}
}

// Query 返回单个商品的库存；product 为空时返回总量和完整映射
func (s *InventoryService) Query(ctx context.Context, product string) (*domain.StockView, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Query")
	defer span.End()
	span.SetAttributes(attribute.String("product", product))

	if product != "" {
		q, err := s.repo.Quantity(ctx, product)
		if err != nil {
			return nil, s.fail(span, apperr.Internal(err))
		}
		return &domain.StockView{Product: product, Quantity: q}, nil
	}

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, s.fail(span, apperr.Internal(err))
	}
	return &domain.StockView{Quantity: domain.Total(snap), Inventory: snap}, nil
}

// Reserve 原子地扣减 quantity 个库存
func (s *InventoryService) Reserve(ctx context.Context, product string, quantity int) (*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("product", product), attribute.Int("quantity", quantity))

	if err := domain.ValidateRequest(product, quantity); err != nil {
		s.metrics.Reservations.WithLabelValues(string(apperr.KindInvalidRequest)).Inc()
		return nil, s.fail(span, err)
	}

	// 检查和扣减在仓储内部原子完成
	remaining, err := s.repo.Reserve(ctx, product, quantity)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInsufficientStock {
			err = apperr.Internal(err)
		} else {
			// 库存不足是正常的业务结果，同样上报事件
			s.emitter.Emit(ctx, events.New(ctx, s.serviceName, events.StockReservationRejected, map[string]any{
				"product":   product,
				"requested": quantity,
				"available": remaining,
			}))
		}
		s.metrics.Reservations.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, s.fail(span, err)
	}

	res := &domain.Reservation{ID: s.newID(), Product: product, Quantity: quantity, Remaining: remaining}
	s.metrics.Reservations.WithLabelValues("accepted").Inc()
	span.SetAttributes(attribute.String("reservation.id", res.ID), attribute.Int("remaining", remaining))
	logger.Ctx(ctx).Info().
		Str("reservation_id", res.ID).
		Str("product", product).
		Int("quantity", quantity).
		Int("remaining", remaining).
		Msg("stock reserved")
	// 事件只是入队，不会拖慢响应
	s.emitter.Emit(ctx, events.New(ctx, s.serviceName, events.StockReserved, map[string]any{
		"reservation_id": res.ID,
		"product":        product,
		"quantity":       quantity,
		"remaining":      remaining,
	}))
	return res, nil
}

// Restock 补货，未知商品会被创建
func (s *InventoryService) Restock(ctx context.Context, product string, quantity int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Restock")
	defer span.End()
	span.SetAttributes(attribute.String("product", product), attribute.Int("quantity", quantity))

	if err := domain.ValidateRequest(product, quantity); err != nil {
		return 0, s.fail(span, err)
	}
	q, err := s.repo.Restock(ctx, product, quantity)
	if err != nil {
		// 溢出是调用方的问题，保留 InvalidRequest；其余都是内部错误
		if apperr.KindOf(err) != apperr.KindInvalidRequest {
			err = apperr.Internal(err)
		}
		return 0, s.fail(span, err)
	}

	s.metrics.Restocks.Inc()
	logger.Ctx(ctx).Info().Str("product", product).Int("quantity", quantity).Int("total", q).Msg("stock replenished")
	s.emitter.Emit(ctx, events.New(ctx, s.serviceName, events.StockRestocked, map[string]any{
		"product":      product,
		"quantity":     quantity,
		"new_quantity": q,
	}))
	return q, nil
}

// Totals 返回商品数和总库存，供健康检查使用
func (s *InventoryService) Totals(ctx context.Context) (products, units int, err error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return 0, 0, apperr.Internal(err)
	}
	return len(snap), domain.Total(snap), nil
}

func (s *InventoryService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	return err
}
