package interfaces

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/service/inventory/application"
)

// InventoryHandler 库存服务的 HTTP 接口
type InventoryHandler struct {
	service     *application.InventoryService
	serviceName string
	version     string
}

func NewInventoryHandler(service *application.InventoryService, serviceName, version string) *InventoryHandler {
	return &InventoryHandler{service: service, serviceName: serviceName, version: version}
}

// RegisterRoutes 库存操作挂在 secured 上，探活类接口挂在 public 上
func (h *InventoryHandler) RegisterRoutes(public, secured *mux.Router) {
	public.HandleFunc("/", h.index).Methods(http.MethodGet)
	public.HandleFunc("/health", h.health).Methods(http.MethodGet)

	secured.HandleFunc("/stock", h.stock).Methods(http.MethodGet)
	secured.HandleFunc("/reserve", h.reserve).Methods(http.MethodPost)
	secured.HandleFunc("/restock", h.restock).Methods(http.MethodPost)
}

// StockRequest /reserve 和 /restock 的请求体
type StockRequest struct {
	Product  string `json:"product"`
	Quantity *int   `json:"quantity"`
}

type ProductStockResponse struct {
	Success bool   `json:"success"`
	Product string `json:"product"`
	Stock   int    `json:"stock"`
	Message string `json:"message"`
}

type TotalStockResponse struct {
	Success   bool           `json:"success"`
	Stock     int            `json:"stock"`
	Inventory map[string]int `json:"inventory"`
	Message   string         `json:"message"`
}

type ReserveResponse struct {
	Success          bool   `json:"success"`
	ReservationID    string `json:"reservation_id"`
	Product          string `json:"product"`
	QuantityReserved int    `json:"quantity_reserved"`
	RemainingStock   int    `json:"remaining_stock"`
	Message          string `json:"message"`
}

type RestockResponse struct {
	Success       bool   `json:"success"`
	Product       string `json:"product"`
	QuantityAdded int    `json:"quantity_added"`
	NewStock      int    `json:"new_stock"`
	Message       string `json:"message"`
}

type HealthResponse struct {
	Service       string `json:"service"`
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	Version       string `json:"version"`
	TotalProducts int    `json:"total_products"`
	TotalStock    int    `json:"total_stock"`
}

func (h *InventoryHandler) stock(w http.ResponseWriter, r *http.Request) {
	product := r.URL.Query().Get("product")
	view, err := h.service.Query(r.Context(), product)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if product != "" {
		writeJSON(w, http.StatusOK, ProductStockResponse{
			Success: true,
			Product: view.Product,
			Stock:   view.Quantity,
			Message: fmt.Sprintf("stock queried for %s", view.Product),
		})
		return
	}
	writeJSON(w, http.StatusOK, TotalStockResponse{
		Success:   true,
		Stock:     view.Quantity,
		Inventory: view.Inventory,
		Message:   "total stock queried",
	})
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStockRequest(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	res, err := h.service.Reserve(r.Context(), req.Product, *req.Quantity)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReserveResponse{
		Success:          true,
		ReservationID:    res.ID,
		Product:          res.Product,
		QuantityReserved: res.Quantity,
		RemainingStock:   res.Remaining,
		Message:          "stock reserved",
	})
}

func (h *InventoryHandler) restock(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStockRequest(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	q, err := h.service.Restock(r.Context(), req.Product, *req.Quantity)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RestockResponse{
		Success:       true,
		Product:       req.Product,
		QuantityAdded: *req.Quantity,
		NewStock:      q,
		Message:       "stock replenished",
	})
}

func (h *InventoryHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Service:   h.serviceName,
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	}
	products, units, err := h.service.Totals(r.Context())
	if err != nil {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.TotalProducts, resp.TotalStock = products, units
	writeJSON(w, http.StatusOK, resp)
}

func (h *InventoryHandler) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Vinheria Agnello - Inventory Service",
		"version": h.version,
		"endpoints": map[string]string{
			"stock":   "GET /stock - query stock (requires JWT)",
			"reserve": "POST /reserve - reserve stock (requires JWT)",
			"restock": "POST /restock - replenish stock (requires JWT)",
			"health":  "GET /health - service status",
		},
	})
}

func decodeStockRequest(r *http.Request) (*StockRequest, error) {
	var req StockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, err, "body must be JSON with product and integer quantity")
	}
	if req.Product == "" || req.Quantity == nil {
		return nil, apperr.InvalidRequest("product and quantity are required")
	}
	return &req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
