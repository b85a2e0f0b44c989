package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// WithAudit crea el ledger del request, lo siembra con action, client y
// administrator y lo finaliza cuando el handler termina. Un request escribe
// una entrada aunque el handler no agregue campos.
func WithAudit(ledgers *audit.Factory) Middleware {
	return func(next http.Handler) http.Handler {
		if ledgers == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := ledgers.New()
			f := audit.Fields{
				audit.KeyAction: r.Method + " " + r.URL.Path,
				audit.KeyClient: ClientIP(r),
			}
			if admin := AdminName(r.Context()); admin != "" {
				f[audit.KeyAdministrator] = admin
			} else if c := GetClaims(r.Context()); c != nil {
				f[audit.KeyUser] = c.Subject
				f[audit.KeyRealm] = c.Realm
			}
			l.Log(f)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(audit.ToContext(r.Context(), l)))

			// chi conoce el patrón recién después de rutear.
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					l.Log(audit.Fields{audit.KeyAction: r.Method + " " + p})
				}
			}
			if rec.status >= 400 {
				l.Log(audit.Fields{audit.KeySuccess: false})
			} else if _, set := l.Snapshot()[audit.KeySuccess]; !set {
				l.Log(audit.Fields{audit.KeySuccess: true})
			}
			if err := l.FinalizeLog(r.Context()); err != nil {
				logger.From(r.Context()).Error("audit finalize failed", logger.Err(err))
			}
		})
	}
}
