package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/auth"
	"vinheria/internal/pkg/bootstrap"
	"vinheria/internal/pkg/events"
	"vinheria/internal/pkg/httpclient"
	"vinheria/internal/pkg/metrics"
	invapp "vinheria/internal/service/inventory/application"
	invdomain "vinheria/internal/service/inventory/domain"
	invinfra "vinheria/internal/service/inventory/infrastructure"
	invhttp "vinheria/internal/service/inventory/interfaces"
	"vinheria/internal/service/order/application"
	"vinheria/internal/service/order/infrastructure/adapter"
)

const secret = "shared-test-secret"

var tracer = noop.NewTracerProvider().Tracer("")

func newHandler(t *testing.T, name string, register func(bootstrap.AppCtx), m *metrics.Metrics) http.Handler {
	t.Helper()
	v, err := auth.NewVerifier(secret)
	if err != nil {
		t.Fatal(err)
	}
	return bootstrap.NewHandler(bootstrap.AppInfo{
		Config: &bootstrap.Config{
			Service: bootstrap.ServiceConfig{Name: name, Version: "1.0.0", Port: 3000},
			Auth:    bootstrap.AuthConfig{Secret: secret},
		},
		Metrics:          m,
		Verifier:         v,
		RegisterHandlers: register,
	})
}

// startInventory 启动一个使用默认目录的真实库存服务
func startInventory(t *testing.T) (*httptest.Server, *invapp.InventoryService) {
	t.Helper()
	repo := invinfra.NewMemoryRepository()
	if err := repo.Seed(context.Background(), invdomain.DefaultCatalog()); err != nil {
		t.Fatal(err)
	}
	m := metrics.New("inventory-service")
	svc := invapp.NewInventoryService("inventory-service", repo, tracer, m, &events.Recorder{})
	h := newHandler(t, "inventory-service", func(app bootstrap.AppCtx) {
		invhttp.NewInventoryHandler(svc, "inventory-service", "1.0.0").RegisterRoutes(app.Router, app.Secured)
	}, m)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, svc
}

type sales struct {
	handler http.Handler
	token   string
}

func newSales(t *testing.T, inventoryURL string, timeout time.Duration) *sales {
	t.Helper()
	m := metrics.New("sales-service")
	client := httpclient.NewClient(tracer, timeout, false)
	svc := application.NewOrderApplicationService("sales-service", tracer,
		adapter.NewInventoryHTTPAdapter(client, inventoryURL, m), m, &events.Recorder{})
	iss, err := auth.NewIssuer(secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, _ := iss.Issue("test-client")
	h := newHandler(t, "sales-service", func(app bootstrap.AppCtx) {
		NewOrderHandler(svc, iss, "sales-service", "1.0.0").RegisterRoutes(app.Router, app.Secured)
	}, m)
	return &sales{handler: h, token: token}
}

func (s *sales) order(body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/order", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func stockOf(t *testing.T, svc *invapp.InventoryService, product string) int {
	t.Helper()
	v, err := svc.Query(context.Background(), product)
	if err != nil {
		t.Fatal(err)
	}
	return v.Quantity
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) apperr.Body {
	t.Helper()
	var b apperr.Body
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestOrderHappyPath(t *testing.T) {
	srv, inv := startInventory(t)
	s := newSales(t, srv.URL, time.Second)

	rec := s.order(`{"product":"Rosé Clássico","quantity":5}`, s.token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var resp OrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || !strings.HasPrefix(resp.OrderID, "ORD-") || resp.Status != "confirmed" || resp.Quantity != 5 {
		t.Fatalf("resp = %+v", resp)
	}
	var reservation invhttp.ReserveResponse
	if err := json.Unmarshal(resp.InventoryResponse, &reservation); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(reservation.ReservationID, "RES-") || reservation.RemainingStock != 20 {
		t.Fatalf("inventory_response = %+v", reservation)
	}
	if got := stockOf(t, inv, "Rosé Clássico"); got != 20 {
		t.Fatalf("stock = %d", got)
	}
}

func TestOrderInsufficientStockLeavesStockUnchanged(t *testing.T) {
	srv, inv := startInventory(t)
	s := newSales(t, srv.URL, time.Second)

	rec := s.order(`{"product":"Champagne Premium","quantity":1000}`, s.token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	b := decodeFailure(t, rec)
	if b.Kind != apperr.KindInsufficientStock || b.Available == nil || *b.Available != 15 || *b.Requested != 1000 {
		t.Fatalf("body = %+v", b)
	}
	if got := stockOf(t, inv, "Champagne Premium"); got != 15 {
		t.Fatalf("stock = %d", got)
	}
}

func TestOrderRejectsBadInput(t *testing.T) {
	srv, inv := startInventory(t)
	s := newSales(t, srv.URL, time.Second)

	for _, body := range []string{
		`{"product":"Champagne Premium","quantity":0}`,
		`{"product":"Champagne Premium","quantity":-3}`,
		`{"product":"","quantity":1}`,
		`{"product":"Champagne Premium"}`,
		`{"product":"Champagne Premium","quantity":"2"}`,
		`not json`,
	} {
		rec := s.order(body, s.token)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", body, rec.Code)
		}
		if b := decodeFailure(t, rec); b.Kind != apperr.KindInvalidRequest {
			t.Fatalf("%s: kind = %s", body, b.Kind)
		}
	}
	if got := stockOf(t, inv, "Champagne Premium"); got != 15 {
		t.Fatalf("stock = %d", got)
	}
}

func TestOrderRequiresCredential(t *testing.T) {
	srv, inv := startInventory(t)
	s := newSales(t, srv.URL, time.Second)

	for _, token := range []string{"", "forged.token.value"} {
		rec := s.order(`{"product":"Rosé Clássico","quantity":1}`, token)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d", token, rec.Code)
		}
	}
	if got := stockOf(t, inv, "Rosé Clássico"); got != 25 {
		t.Fatalf("stock = %d", got)
	}
}

func TestOrderWithTokenFromAuthEndpoint(t *testing.T) {
	srv, inv := startInventory(t)
	s := newSales(t, srv.URL, time.Second)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("auth status = %d", rec.Code)
	}
	var tok TokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&tok); err != nil {
		t.Fatal(err)
	}
	if !tok.Success || tok.Token == "" || tok.ExpiresIn != 3600 {
		t.Fatalf("token = %+v", tok)
	}

	if rec := s.order(`{"product":"Vinho Tinto Reserva","quantity":2}`, tok.Token); rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if got := stockOf(t, inv, "Vinho Tinto Reserva"); got != 48 {
		t.Fatalf("stock = %d", got)
	}
}

func TestOrderUpstreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	s := newSales(t, url, time.Second)

	rec := s.order(`{"product":"Rosé Clássico","quantity":1}`, s.token)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if b := decodeFailure(t, rec); b.Kind != apperr.KindUpstreamUnavailable {
		t.Fatalf("kind = %s", b.Kind)
	}
}

func TestOrderUpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	s := newSales(t, srv.URL, 50*time.Millisecond)

	rec := s.order(`{"product":"Rosé Clássico","quantity":1}`, s.token)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

// 查询时库存充足，但预占前被其他买家抢先
func TestOrderLosesRaceAfterStockCheck(t *testing.T) {
	var reserves int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/stock":
			_, _ = w.Write([]byte(`{"success":true,"product":"Champagne Premium","stock":15,"message":"ok"}`))
		case "/reserve":
			reserves++
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"kind":"InsufficientStock","error":"insufficient stock","available":3,"requested":10}`))
		}
	}))
	t.Cleanup(srv.Close)
	s := newSales(t, srv.URL, time.Second)

	rec := s.order(`{"product":"Champagne Premium","quantity":10}`, s.token)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	b := decodeFailure(t, rec)
	if b.Kind != apperr.KindReservationFailed || b.Available == nil || *b.Available != 3 {
		t.Fatalf("body = %+v", b)
	}
	if reserves != 1 {
		t.Fatalf("reserves = %d", reserves)
	}
}

func TestPublicEndpoints(t *testing.T) {
	srv, _ := startInventory(t)
	s := newSales(t, srv.URL, time.Second)

	for _, path := range []string{"/", "/health", "/metrics"} {
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
	}
}
