package audit

import (
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

const canonicalDateLayout = "2006-01-02T15:04:05.000000Z"

// Canonical arma el string firmado de una entrada. Nunca incluye Signature.
// El orden de los campos es parte del formato: cambiarlo invalida firmas previas.
// Cada valor va prefijado con su largo en bytes ("action=12:validate_chk,"),
// así un valor no puede correr texto hacia el campo vecino.
func Canonical(e *repository.AuditEntry) string {
	var b strings.Builder
	write := func(k, v string) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte(',')
	}
	write("id", strconv.FormatInt(e.ID, 10))
	write("date", e.Date.UTC().Truncate(time.Microsecond).Format(canonicalDateLayout))
	write("action", e.Action)
	write("success", strconv.FormatBool(e.Success))
	write("serial", e.Serial)
	write("token_type", e.TokenType)
	write("user", e.User)
	write("realm", e.Realm)
	write("resolver", e.Resolver)
	write("administrator", e.Administrator)
	write("action_detail", e.ActionDetail)
	write("info", e.Info)
	write("server", e.Server)
	write("client", e.Client)
	write("policies", e.Policies)
	return b.String()
}
