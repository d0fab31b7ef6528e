package application

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/events"
	"vinheria/internal/pkg/metrics"
	"vinheria/internal/service/inventory/domain"
	"vinheria/internal/service/inventory/infrastructure"
)

func newService(t *testing.T, catalog map[string]int) (*InventoryService, *events.Recorder, *metrics.Metrics) {
	t.Helper()
	repo := infrastructure.NewMemoryRepository()
	if err := repo.Seed(context.Background(), catalog); err != nil {
		t.Fatal(err)
	}
	rec := &events.Recorder{}
	m := metrics.New("inventory-service")
	return NewInventoryService("inventory-service", repo, noop.NewTracerProvider().Tracer(""), m, rec), rec, m
}

func TestQuery(t *testing.T) {
	svc, _, _ := newService(t, domain.DefaultCatalog())
	ctx := context.Background()

	one, err := svc.Query(ctx, "Champagne Premium")
	if err != nil || one.Quantity != 15 || one.Inventory != nil {
		t.Fatalf("single = %+v, %v", one, err)
	}
	unknown, _ := svc.Query(ctx, "Porto Vintage")
	if unknown.Quantity != 0 {
		t.Fatalf("unknown = %+v", unknown)
	}
	all, _ := svc.Query(ctx, "")
	if all.Quantity != 160 || len(all.Inventory) != 5 {
		t.Fatalf("all = %+v", all)
	}
}

func TestReserveThenQueryReflectsState(t *testing.T) {
	svc, rec, m := newService(t, map[string]int{"Rosé Clássico": 25})
	ctx := context.Background()

	res, err := svc.Reserve(ctx, "Rosé Clássico", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.ID, "RES-") || res.Remaining != 20 || res.Quantity != 5 {
		t.Fatalf("reservation = %+v", res)
	}
	view, _ := svc.Query(ctx, "Rosé Clássico")
	if view.Quantity != 20 {
		t.Fatalf("query after reserve = %d", view.Quantity)
	}
	if rec.Count(events.StockReserved) != 1 {
		t.Fatalf("events = %+v", rec.Events())
	}
	if got := testutil.ToFloat64(m.Reservations.WithLabelValues("accepted")); got != 1 {
		t.Fatalf("accepted counter = %v", got)
	}
}

func TestReservationIDsAreUnique(t *testing.T) {
	svc, _, _ := newService(t, map[string]int{"Espumante Nacional": 500})
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Reserve(context.Background(), "Espumante Nacional", 1)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[res.ID] {
				t.Errorf("duplicate reservation id %s", res.ID)
			}
			seen[res.ID] = true
		}()
	}
	wg.Wait()
}

func TestReserveRejections(t *testing.T) {
	cases := []struct {
		name     string
		product  string
		quantity int
		want     apperr.Kind
	}{
		{"empty product", "", 1, apperr.KindInvalidRequest},
		{"zero quantity", "Champagne Premium", 0, apperr.KindInvalidRequest},
		{"negative quantity", "Champagne Premium", -3, apperr.KindInvalidRequest},
		{"too many", "Champagne Premium", 1000, apperr.KindInsufficientStock},
		{"unknown product", "Porto Vintage", 1, apperr.KindInsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, rec, _ := newService(t, domain.DefaultCatalog())
			_, err := svc.Reserve(context.Background(), tc.product, tc.quantity)
			if apperr.KindOf(err) != tc.want {
				t.Fatalf("kind = %s, want %s (%v)", apperr.KindOf(err), tc.want, err)
			}
			if q, _ := svc.Query(context.Background(), "Champagne Premium"); q.Quantity != 15 {
				t.Fatalf("stock changed to %d", q.Quantity)
			}
			if rec.Count(events.StockReserved) != 0 {
				t.Fatal("reserved event emitted for a rejection")
			}
		})
	}
}

func TestInsufficientStockCarriesDetail(t *testing.T) {
	svc, rec, _ := newService(t, domain.DefaultCatalog())
	_, err := svc.Reserve(context.Background(), "Champagne Premium", 1000)
	e, ok := apperr.As(err)
	if !ok || e.Stock == nil || e.Stock.Available != 15 || e.Stock.Requested != 1000 {
		t.Fatalf("err = %v", err)
	}
	if rec.Count(events.StockReservationRejected) != 1 {
		t.Fatal("rejection event missing")
	}
}

func TestNonNegativityOverMixedSequence(t *testing.T) {
	svc, _, _ := newService(t, map[string]int{"Vinho Tinto Reserva": 3})
	ctx := context.Background()
	ops := []struct {
		reserve bool
		qty     int
	}{{true, 2}, {true, 2}, {false, 1}, {true, 2}, {true, 1}, {false, 4}, {true, 5}, {true, 4}}
	for i, op := range ops {
		if op.reserve {
			svc.Reserve(ctx, "Vinho Tinto Reserva", op.qty)
		} else {
			svc.Restock(ctx, "Vinho Tinto Reserva", op.qty)
		}
		q, _ := svc.Query(ctx, "Vinho Tinto Reserva")
		if q.Quantity < 0 {
			t.Fatalf("step %d: quantity %d", i, q.Quantity)
		}
	}
	if q, _ := svc.Query(ctx, "Vinho Tinto Reserva"); q.Quantity != 0 {
		t.Fatalf("final = %d", q.Quantity)
	}
}

func TestRestock(t *testing.T) {
	svc, rec, m := newService(t, domain.DefaultCatalog())
	ctx := context.Background()

	q, err := svc.Restock(ctx, "Malbec", 12)
	if err != nil || q != 12 {
		t.Fatalf("restock new = %d, %v", q, err)
	}
	if _, err := svc.Restock(ctx, "Malbec", 0); apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Fatalf("zero restock err = %v", err)
	}
	if _, err := svc.Restock(ctx, "", 4); apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Fatalf("empty product err = %v", err)
	}
	if rec.Count(events.StockRestocked) != 1 || testutil.ToFloat64(m.Restocks) != 1 {
		t.Fatal("restock not recorded exactly once")
	}
	products, units, _ := svc.Totals(ctx)
	if products != 6 || units != 172 {
		t.Fatalf("totals = %d products, %d units", products, units)
	}
}

func TestRestockOverflowIsInvalidRequest(t *testing.T) {
	svc, rec, m := newService(t, map[string]int{"Champagne Premium": 15})
	ctx := context.Background()

	_, err := svc.Restock(ctx, "Champagne Premium", math.MaxInt)
	if k := apperr.KindOf(err); k != apperr.KindInvalidRequest {
		t.Fatalf("kind = %s (%v)", k, err)
	}
	view, _ := svc.Query(ctx, "Champagne Premium")
	if view.Quantity != 15 {
		t.Fatalf("stock = %d", view.Quantity)
	}
	if rec.Count(events.StockRestocked) != 0 || testutil.ToFloat64(m.Restocks) != 0 {
		t.Fatal("rejected restock was recorded")
	}
}

type brokenRepo struct{ domain.StockRepository }

func (brokenRepo) Snapshot(context.Context) (map[string]int, error) {
	return nil, errors.New("connection reset")
}

func (brokenRepo) Reserve(context.Context, string, int) (int, error) {
	return 0, errors.New("connection reset")
}

func TestRepositoryFaultsBecomeInternal(t *testing.T) {
	svc := NewInventoryService("inventory-service", brokenRepo{}, noop.NewTracerProvider().Tracer(""), metrics.New("inventory-service"), &events.Recorder{})
	if _, err := svc.Query(context.Background(), ""); apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("query err = %v", err)
	}
	if _, err := svc.Reserve(context.Background(), "Rosé Clássico", 1); apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("reserve err = %v", err)
	}
}
