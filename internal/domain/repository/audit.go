package repository

import (
	"context"
	"time"
)

// AuditEntry es una fila append-only del log de auditoría.
type AuditEntry struct {
	ID            int64
	Date          time.Time
	StartDate     time.Time
	Duration      time.Duration
	Signature     string
	Action        string
	ActionDetail  string
	Info          string
	Success       bool
	Serial        string
	TokenType     string
	User          string
	Realm         string
	Resolver      string
	Administrator string
	Server        string
	Client        string
	Policies      string
}

// Columnas filtrables por patrón LIKE.
const (
	AuditColAction        = "action"
	AuditColActionDetail  = "action_detail"
	AuditColInfo          = "info"
	AuditColSerial        = "serial"
	AuditColTokenType     = "token_type"
	AuditColUser          = "user"
	AuditColRealm         = "realm"
	AuditColResolver      = "resolver"
	AuditColAdministrator = "administrator"
	AuditColServer        = "server"
	AuditColClient        = "client"
	AuditColPolicies      = "policies"
)

// AuditLikeColumns lista las columnas que aceptan filtros LIKE.
var AuditLikeColumns = []string{
	AuditColAction, AuditColActionDetail, AuditColInfo, AuditColSerial,
	AuditColTokenType, AuditColUser, AuditColRealm, AuditColResolver,
	AuditColAdministrator, AuditColServer, AuditColClient, AuditColPolicies,
}

// IsAuditLikeColumn indica si name es una columna filtrable.
func IsAuditLikeColumn(name string) bool {
	for _, c := range AuditLikeColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Column retorna el valor string de una columna filtrable.
func (e *AuditEntry) Column(name string) string {
	switch name {
	case AuditColAction:
		return e.Action
	case AuditColActionDetail:
		return e.ActionDetail
	case AuditColInfo:
		return e.Info
	case AuditColSerial:
		return e.Serial
	case AuditColTokenType:
		return e.TokenType
	case AuditColUser:
		return e.User
	case AuditColRealm:
		return e.Realm
	case AuditColResolver:
		return e.Resolver
	case AuditColAdministrator:
		return e.Administrator
	case AuditColServer:
		return e.Server
	case AuditColClient:
		return e.Client
	case AuditColPolicies:
		return e.Policies
	}
	return ""
}

// AuditFilter combina (AND) patrones LIKE por columna, éxito y ventana temporal.
// Los patrones ya vienen en sintaxis SQL LIKE (% y _).
type AuditFilter struct {
	Like    map[string]string
	Success *bool
	Since   *time.Time
}

// AuditQuery agrega orden y paginación a un filtro.
type AuditQuery struct {
	Filter   AuditFilter
	SortDesc bool
	Offset   int
	// Limit 0 significa sin límite.
	Limit int
}

// AuditRepository persiste entradas de auditoría.
type AuditRepository interface {
	// Insert agrega una fila y retorna el id asignado.
	Insert(ctx context.Context, e *AuditEntry) (int64, error)

	// UpdateSignature fija la firma de una fila ya insertada.
	UpdateSignature(ctx context.Context, id int64, signature string) error

	// Query recorre las filas que cumplen la consulta, en orden.
	// Si fn retorna error la iteración se corta y el error se propaga.
	Query(ctx context.Context, q AuditQuery, fn func(AuditEntry) error) error

	// Count cuenta las filas que cumplen el filtro.
	Count(ctx context.Context, f AuditFilter) (int64, error)

	// Existing retorna el subconjunto de ids que existen.
	Existing(ctx context.Context, ids []int64) (map[int64]bool, error)

	// DeleteBefore borra filas con date < t.
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}
