package repository

import (
	"context"
	"time"
)

// Token es un token OTP enrolado.
type Token struct {
	Serial      string
	Type        string
	Description string
	// SecretEnc es el secreto cifrado con secretbox; nunca se guarda en claro.
	SecretEnc   string
	OTPLen      int
	Count       int64
	CountWindow int
	FailCount   int
	MaxFail     int
	Active      bool
	Realm       string
	Owner       string
	Info        map[string]string
	CreatedAt   time.Time
}

// Locked indica si el token alcanzó el máximo de fallos.
func (t *Token) Locked() bool {
	return t.MaxFail > 0 && t.FailCount >= t.MaxFail
}

// InfoValue retorna una entrada del mapa info o "".
func (t *Token) InfoValue(key string) string {
	if t.Info == nil {
		return ""
	}
	return t.Info[key]
}

// TokenRepository define operaciones sobre tokens.
type TokenRepository interface {
	// Create inserta un token. ErrConflict si el serial ya existe.
	Create(ctx context.Context, t *Token) error

	// Get obtiene un token por serial.
	Get(ctx context.Context, serial string) (*Token, error)

	// CountByType agrupa los tokens por tipo (estadísticas).
	CountByType(ctx context.Context) (map[string]int, error)

	// UpdateCounter fija el contador solo si el valor actual es expected.
	// Retorna ErrPreconditionFailed si otro request lo movió antes.
	UpdateCounter(ctx context.Context, serial string, expected, next int64) error

	// IncFailCount incrementa el contador de fallos y retorna el nuevo valor.
	IncFailCount(ctx context.Context, serial string) (int, error)

	// ResetFailCount pone el contador de fallos en cero.
	ResetFailCount(ctx context.Context, serial string) error

	// SetActive habilita o deshabilita el token.
	SetActive(ctx context.Context, serial string, active bool) error

	// SetInfo guarda una entrada en el mapa info.
	SetInfo(ctx context.Context, serial, key, value string) error

	// Delete elimina el token.
	Delete(ctx context.Context, serial string) error
}
