// Package auth 是两个服务前面的 Bearer 凭证网关。
// 使用共享密钥签发和校验 HS256 JWT。
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"vinheria/internal/pkg/apperr"
	"vinheria/internal/pkg/logger"
)

// DefaultTTL 签发凭证的默认有效期
const DefaultTTL = time.Hour

const bearerPrefix = "Bearer "

var ErrMissingSecret = errors.New("auth: shared secret is empty")

// Claims 每个凭证携带的声明
type Claims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue 为 service 签发一个凭证
func (i *Issuer) Issue(service string) (string, error) {
	now := i.now()
	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify 校验签名和过期时间
func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "invalid or expired token")
	}
	return claims, nil
}

// BearerToken 从 Authorization 头中取出凭证
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, bearerPrefix) || len(h) == len(bearerPrefix) {
		return "", apperr.Unauthorized("missing or malformed bearer token")
	}
	return h[len(bearerPrefix):], nil
}

// Middleware 拒绝没有有效凭证的请求；校验通过时把 claims 放进请求的 context。
// 失败响应在任何业务 handler 执行之前返回。
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r)
			if err == nil {
				var claims *Claims
				if claims, err = v.Verify(raw); err == nil {
					next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
					return
				}
			}
			logger.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected by auth gate")
			apperr.Write(w, err)
		})
	}
}

type claimsKey struct{}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext 取出 Middleware 放入的 claims
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}
