package logger

import (
	"time"

	"go.uber.org/zap"
)

// ─── HTTP ───

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }
func Admin(v string) zap.Field           { return zap.String("admin", v) }
func Realm(v string) zap.Field           { return zap.String("realm", v) }

// ─── Tokens y challenges ───

// Serial identifica el token involucrado.
func Serial(v string) zap.Field { return zap.String("serial", v) }

// TokenType es el tipo de token (hotp, totp, yubikey).
func TokenType(v string) zap.Field { return zap.String("token_type", v) }

// Counter es el contador OTP resultante.
func Counter(v int64) zap.Field { return zap.Int64("counter", v) }

// Outcome es el resultado detallado del codec (nunca se expone al cliente).
func Outcome(v string) zap.Field { return zap.String("outcome", v) }

// TransactionID correlaciona challenge y respuesta.
func TransactionID(v string) zap.Field { return zap.String("transaction_id", v) }

// ─── Eventos / auditoría / scheduler ───

func Event(v string) zap.Field    { return zap.String("event", v) }
func Handler(v string) zap.Field  { return zap.String("handler", v) }
func Action(v string) zap.Field   { return zap.String("action", v) }
func Position(v string) zap.Field { return zap.String("position", v) }
func AuditID(v int64) zap.Field   { return zap.Int64("audit_id", v) }
func Node(v string) zap.Field     { return zap.String("node", v) }
func Task(v string) zap.Field     { return zap.String("task", v) }
func NextRun(v time.Time) zap.Field {
	return zap.Time("next_run", v)
}

// ─── Genéricos ───

func Component(v string) zap.Field    { return zap.String("component", v) }
func Op(v string) zap.Field           { return zap.String("op", v) }
func Err(err error) zap.Field         { return zap.Error(err) }
func Count(v int) zap.Field           { return zap.Int("count", v) }
func ID(v int64) zap.Field            { return zap.Int64("id", v) }
func String(k, v string) zap.Field    { return zap.String(k, v) }
func Int(k string, v int) zap.Field   { return zap.Int(k, v) }
func Bool(k string, v bool) zap.Field { return zap.Bool(k, v) }
func Any(k string, v any) zap.Field   { return zap.Any(k, v) }
