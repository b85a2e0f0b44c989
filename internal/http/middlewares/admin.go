package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/tokenguard/internal/http/errors"
	"github.com/dropDatabas3/tokenguard/internal/jwt"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// WithAuth valida el Bearer token si viene y deja los claims en el contexto.
// Sin header el request sigue anónimo; un token inválido es 401.
func WithAuth(issuer *jwt.Issuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := strings.TrimSpace(r.Header.Get("Authorization"))
			if h == "" || issuer == nil {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(h, "Bearer ")
			if !ok {
				errors.WriteError(w, errors.ErrTokenInvalid.WithDetail("expected Bearer token"))
				return
			}
			claims, err := issuer.Parse(strings.TrimSpace(raw))
			if err != nil {
				logger.From(r.Context()).Debug("access token rejected", logger.Err(err))
				errors.WriteError(w, errors.ErrTokenInvalid.WithCause(err))
				return
			}
			ctx := WithClaims(r.Context(), claims)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Admin(claims.Subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin exige un token con rol admin. Con enforce=false (dev, sin
// secreto configurado) deja pasar todo.
func RequireAdmin(enforce bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enforce {
				next.ServeHTTP(w, r)
				return
			}
			c := GetClaims(r.Context())
			if c == nil {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			if !c.IsAdmin() {
				errors.WriteError(w, errors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
