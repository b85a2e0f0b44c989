package middlewares

import (
	"context"
	"net"
	"net/http"

	"github.com/dropDatabas3/tokenguard/internal/jwt"
)

type ctxKey string

const (
	ctxClaimsKey    ctxKey = "claims"
	ctxRequestIDKey ctxKey = "request_id"
	ctxClientIPKey  ctxKey = "client_ip"
)

// WithClaims inyecta los claims del access token en el contexto.
func WithClaims(ctx context.Context, c *jwt.AdminClaims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, c)
}

// GetClaims retorna los claims o nil si el request no trae token.
func GetClaims(ctx context.Context) *jwt.AdminClaims {
	c, _ := ctx.Value(ctxClaimsKey).(*jwt.AdminClaims)
	return c
}

// AdminName retorna el sub del token si tiene rol admin, o "".
func AdminName(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil && c.IsAdmin() {
		return c.Subject
	}
	return ""
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}

// ClientIP retorna la IP resuelta por WithClientIP. Sin ese middleware usa la
// IP del peer TCP e ignora X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ctxClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return peerIP(r)
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
