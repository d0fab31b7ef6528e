// Package apperr 定义库存服务和销售服务共用的错误类型，
// 以及所有失败响应统一使用的 JSON 结构。
package apperr

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind 是每个失败响应携带的稳定标识
type Kind string

const (
	KindInvalidRequest      Kind = "InvalidRequest"
	KindUnauthorized        Kind = "Unauthorized"
	KindInsufficientStock   Kind = "InsufficientStock"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindReservationFailed   Kind = "ReservationFailed"
	KindInternal            Kind = "InternalError"
)

// Retryable 表示调用方能否原样重试
func (k Kind) Retryable() bool {
	return k == KindUpstreamUnavailable
}

// StockDetail 附在库存不足的错误上，供客户端展示
type StockDetail struct {
	Available int `json:"available"`
	Requested int `json:"requested"`
}

// Error 是已分类的错误
type Error struct {
	Kind    Kind
	Message string
	Stock   *StockDetail
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap 把 cause 归类为 kind，保留原始错误链
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

func InvalidRequest(msg string) *Error { return New(KindInvalidRequest, msg) }

func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }

// InsufficientStock 请求数量超过可用库存
func InsufficientStock(available, requested int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: "insufficient stock",
		Stock:   &StockDetail{Available: available, Requested: requested},
	}
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, cause, "internal server error")
}

// As 从错误链中取出已分类的错误
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回 err 的类型，未分类的错误一律视为内部错误
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus 错误类型 -> HTTP 状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInsufficientStock:
		return http.StatusConflict
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindReservationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body 是失败响应的线上格式
type Body struct {
	Success   bool   `json:"success"`
	Kind      Kind   `json:"kind"`
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

// ToBody 渲染给客户端的错误体。内部错误的原因不对外暴露。
func ToBody(err error) Body {
	e, ok := As(err)
	if !ok {
		e = Internal(err)
	}
	b := Body{Kind: e.Kind, Error: e.Message}
	if e.Stock != nil {
		available, requested := e.Stock.Available, e.Stock.Requested
		b.Available, b.Requested = &available, &requested
	}
	return b
}

// Err 从上游返回的失败响应体还原出分类错误
func (b Body) Err() *Error {
	kind := b.Kind
	if kind == "" {
		kind = KindInternal
	}
	e := New(kind, b.Error)
	if b.Available != nil && b.Requested != nil {
		e.Stock = &StockDetail{Available: *b.Available, Requested: *b.Requested}
	}
	return e
}

// Write 以 JSON 失败响应的形式输出 err
func Write(w http.ResponseWriter, err error) {
	body := ToBody(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(body.Kind))
	_ = json.NewEncoder(w).Encode(body)
}
