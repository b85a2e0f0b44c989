package repository

import (
	"context"
	"time"
)

// Challenge es el lado servidor de un intercambio challenge/response.
type Challenge struct {
	ID            int64
	TransactionID string
	Serial        string
	Challenge     string
	// Data es el blob auxiliar tal como se persiste (JSON o texto opaco).
	Data          string
	CreatedAt     time.Time
	Expiration    time.Time
	ReceivedCount int
	OTPReceived   bool
	OTPValid      bool
}

// ChallengeRepository define operaciones sobre challenges.
type ChallengeRepository interface {
	// Create inserta un challenge. ErrConflict si el transaction id existe.
	Create(ctx context.Context, c *Challenge) error

	// Get obtiene un challenge por transaction id.
	Get(ctx context.Context, transactionID string) (*Challenge, error)

	// Exists verifica si el transaction id ya está usado.
	Exists(ctx context.Context, transactionID string) (bool, error)

	// ListBySerial lista los challenges de un token, más recientes primero.
	ListBySerial(ctx context.Context, serial string) ([]Challenge, error)

	// RecordResponse incrementa received_count y fija ambos flags. otp_valid
	// queda en true una vez marcado.
	RecordResponse(ctx context.Context, transactionID string, received, valid bool) error

	// DeleteExpired borra challenges con expiration <= now y retorna cuántos.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
