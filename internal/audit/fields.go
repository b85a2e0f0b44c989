package audit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

// Fields son los campos parciales de una entrada de auditoría.
type Fields map[string]any

// Claves reconocidas. Otras claves se aceptan pero solo las ve el backend logger.
const (
	KeyAction        = repository.AuditColAction
	KeyActionDetail  = repository.AuditColActionDetail
	KeyInfo          = repository.AuditColInfo
	KeySerial        = repository.AuditColSerial
	KeyTokenType     = repository.AuditColTokenType
	KeyUser          = repository.AuditColUser
	KeyRealm         = repository.AuditColRealm
	KeyResolver      = repository.AuditColResolver
	KeyAdministrator = repository.AuditColAdministrator
	KeyClient        = repository.AuditColClient
	KeySuccess       = "success"
)

// columnWidths son los anchos de columna; los valores se truncan antes de firmar.
var columnWidths = map[string]int{
	repository.AuditColAction:        255,
	repository.AuditColActionDetail:  50,
	repository.AuditColInfo:          50,
	repository.AuditColSerial:        40,
	repository.AuditColTokenType:     12,
	repository.AuditColUser:          20,
	repository.AuditColRealm:         20,
	repository.AuditColResolver:      50,
	repository.AuditColAdministrator: 20,
	repository.AuditColServer:        255,
	repository.AuditColClient:        50,
	repository.AuditColPolicies:      255,
}

// accumulator es el registro en memoria de un ciclo log → finalize.
type accumulator struct {
	mu       sync.Mutex
	fields   Fields
	policies []string
	start    time.Time
}

func newAccumulator() *accumulator {
	return &accumulator{fields: Fields{}, start: time.Now()}
}

// log mezcla f en el registro (last-write-wins por clave).
func (a *accumulator) log(f Fields) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range f {
		a.fields[k] = v
	}
}

// addToLog concatena valores string a los existentes.
func (a *accumulator) addToLog(f Fields, withComma bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range f {
		prev, ok := a.fields[k]
		if !ok || stringify(prev) == "" {
			a.fields[k] = v
			continue
		}
		if withComma {
			a.fields[k] = stringify(prev) + "," + stringify(v)
		} else {
			a.fields[k] = stringify(prev) + stringify(v)
		}
	}
}

func (a *accumulator) addPolicy(names ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.policies = append(a.policies, names...)
}

func (a *accumulator) snapshot() Fields {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(Fields, len(a.fields))
	for k, v := range a.fields {
		out[k] = v
	}
	return out
}

// take construye la entrada y resetea el acumulador para el próximo ciclo.
func (a *accumulator) take(server string, now time.Time) (repository.AuditEntry, Fields) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f := a.fields
	e := repository.AuditEntry{
		Date:          now.UTC().Truncate(time.Microsecond),
		StartDate:     a.start.UTC().Truncate(time.Microsecond),
		Action:        stringify(f[KeyAction]),
		ActionDetail:  stringify(f[KeyActionDetail]),
		Info:          stringify(f[KeyInfo]),
		Success:       truthy(f[KeySuccess]),
		Serial:        stringify(f[KeySerial]),
		TokenType:     stringify(f[KeyTokenType]),
		User:          stringify(f[KeyUser]),
		Realm:         stringify(f[KeyRealm]),
		Resolver:      stringify(f[KeyResolver]),
		Administrator: stringify(f[KeyAdministrator]),
		Server:        server,
		Client:        stringify(f[KeyClient]),
		Policies:      strings.Join(a.policies, ","),
	}
	e.Duration = now.Sub(a.start)
	truncateColumns(&e)

	a.fields = Fields{}
	a.policies = nil
	a.start = time.Now()
	return e, f
}

func truncateColumns(e *repository.AuditEntry) {
	for _, col := range []struct {
		name string
		v    *string
	}{
		{repository.AuditColAction, &e.Action},
		{repository.AuditColActionDetail, &e.ActionDetail},
		{repository.AuditColInfo, &e.Info},
		{repository.AuditColSerial, &e.Serial},
		{repository.AuditColTokenType, &e.TokenType},
		{repository.AuditColUser, &e.User},
		{repository.AuditColRealm, &e.Realm},
		{repository.AuditColResolver, &e.Resolver},
		{repository.AuditColAdministrator, &e.Administrator},
		{repository.AuditColServer, &e.Server},
		{repository.AuditColClient, &e.Client},
		{repository.AuditColPolicies, &e.Policies},
	} {
		*col.v = truncate(*col.v, columnWidths[col.name])
	}
}

// truncate corta a n runes sin partir caracteres multibyte.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}
