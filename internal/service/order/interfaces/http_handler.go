package interfaces

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/auth"
	"vinheria/internal/pkg/logger"
	"vinheria/internal/service/order/application"
)

// OrderHandler 销售服务的 HTTP 接口
type OrderHandler struct {
	service     *application.OrderApplicationService
	issuer      *auth.Issuer
	serviceName string
	version     string
}

func NewOrderHandler(service *application.OrderApplicationService, issuer *auth.Issuer, serviceName, version string) *OrderHandler {
	return &OrderHandler{service: service, issuer: issuer, serviceName: serviceName, version: version}
}

// RegisterRoutes /order 需要鉴权，其余接口公开
func (h *OrderHandler) RegisterRoutes(public, secured *mux.Router) {
	public.HandleFunc("/", h.index).Methods(http.MethodGet)
	public.HandleFunc("/health", h.health).Methods(http.MethodGet)
	public.HandleFunc("/auth", h.issueToken).Methods(http.MethodGet)

	secured.HandleFunc("/order", h.createOrder).Methods(http.MethodPost)
}

// OrderRequest POST /order 的请求体
type OrderRequest struct {
	Product  string `json:"product"`
	Quantity *int   `json:"quantity"`
}

type OrderResponse struct {
	Success           bool            `json:"success"`
	OrderID           string          `json:"order_id"`
	Product           string          `json:"product"`
	Quantity          int             `json:"quantity"`
	Status            string          `json:"status"`
	Message           string          `json:"message"`
	InventoryResponse json.RawMessage `json:"inventory_response,omitempty"`
}

type TokenResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	Message   string `json:"message"`
}

type HealthResponse struct {
	Service   string `json:"service"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInvalidRequest, err, "body must be JSON with product and integer quantity"))
		return
	}
	quantity := 0
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	order, err := h.service.PlaceOrder(r.Context(), &application.PlaceOrderRequest{
		Product:    req.Product,
		Quantity:   quantity,
		Credential: r.Header.Get("Authorization"),
	})
	if err != nil {
		apperr.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OrderResponse{
		Success:           true,
		OrderID:           order.ID,
		Product:           order.Product,
		Quantity:          order.Quantity,
		Status:            string(order.State),
		Message:           fmt.Sprintf("order confirmed: %d x %s", order.Quantity, order.Product),
		InventoryResponse: order.Reservation.Raw,
	})
}

func (h *OrderHandler) issueToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.issuer.Issue(h.serviceName)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("token issuance failed")
		apperr.Write(w, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		Success:   true,
		Token:     token,
		ExpiresIn: int64(h.issuer.TTL() / time.Second),
		Message:   "token issued",
	})
}

func (h *OrderHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Service:   h.serviceName,
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	})
}

func (h *OrderHandler) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Vinheria Agnello - Sales Service",
		"version": h.version,
		"endpoints": map[string]string{
			"auth":   "GET /auth - issue a JWT",
			"order":  "POST /order - place an order (requires JWT)",
			"health": "GET /health - service status",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
