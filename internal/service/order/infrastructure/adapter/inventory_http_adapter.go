package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/httpclient"
	"vinheria/internal/pkg/metrics"
	"vinheria/internal/service/order/domain"
)

const (
	opQueryStock   = "query_stock"
	opReserveStock = "reserve_stock"
)

// InventoryHTTPAdapter 通过 HTTP 实现 port.InventoryService 接口
type InventoryHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
	metrics *metrics.Metrics
}

func NewInventoryHTTPAdapter(client *httpclient.Client, baseURL string, m *metrics.Metrics) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/"), metrics: m}
}

type stockResponse struct {
	Success bool   `json:"success"`
	Product string `json:"product"`
	Stock   *int   `json:"stock"`
}

type reserveRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type reserveResponse struct {
	Success          bool   `json:"success"`
	ReservationID    string `json:"reservation_id"`
	Product          string `json:"product"`
	QuantityReserved int    `json:"quantity_reserved"`
	RemainingStock   int    `json:"remaining_stock"`
}

// QueryStock 查询单个商品的可用库存
func (a *InventoryHTTPAdapter) QueryStock(ctx context.Context, product, credential string) (int, error) {
	u := a.baseURL + "/stock?" + url.Values{"product": {product}}.Encode()

	start := time.Now()
	resp, err := a.client.Get(ctx, u, authHeader(credential))
	a.observe(opQueryStock, resp, start)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "inventory service unreachable")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, upstreamFailure(resp)
	}

	var body stockResponse
	if err := resp.Decode(&body); err != nil {
		return 0, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "undecodable stock response")
	}
	if !body.Success || body.Stock == nil || body.Product != product {
		return 0, apperr.New(apperr.KindUpstreamUnavailable, "inconsistent stock response")
	}
	return *body.Stock, nil
}

// ReserveStock 请求库存服务预占 quantity 个库存
func (a *InventoryHTTPAdapter) ReserveStock(ctx context.Context, product string, quantity int, credential string) (*domain.ReservationReceipt, error) {
	start := time.Now()
	resp, err := a.client.PostJSON(ctx, a.baseURL+"/reserve", authHeader(credential), reserveRequest{Product: product, Quantity: quantity})
	a.observe(opReserveStock, resp, start)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "inventory service unreachable")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamFailure(resp)
	}

	var body reserveResponse
	if err := resp.Decode(&body); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "undecodable reservation response")
	}
	if !body.Success || body.ReservationID == "" || body.Product != product || body.QuantityReserved != quantity {
		return nil, apperr.New(apperr.KindUpstreamUnavailable, "inconsistent reservation response")
	}
	return &domain.ReservationReceipt{
		ID:        body.ReservationID,
		Product:   body.Product,
		Quantity:  body.QuantityReserved,
		Remaining: body.RemainingStock,
		Raw:       resp.Body,
	}, nil
}

func (a *InventoryHTTPAdapter) observe(op string, resp *httpclient.Response, start time.Time) {
	if a.metrics == nil {
		return
	}
	code := "error"
	if resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	a.metrics.UpstreamCalls.WithLabelValues(op, code).Observe(time.Since(start).Seconds())
}

func authHeader(credential string) http.Header {
	h := http.Header{}
	if credential != "" {
		h.Set("Authorization", credential)
	}
	return h
}

// upstreamFailure 把非 2xx 响应还原为上游报告的错误类型，
// 响应体里没有类型时按状态码分类。
func upstreamFailure(resp *httpclient.Response) error {
	var body apperr.Body
	if err := resp.Decode(&body); err == nil && body.Kind != "" {
		return body.Err()
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return apperr.Unauthorized("inventory service rejected the credential")
	}
	return apperr.New(apperr.KindUpstreamUnavailable, fmt.Sprintf("inventory service returned %d", resp.StatusCode))
}
