// Package challenge maneja el lado servidor de un intercambio challenge/response.
//
// No aplica expiración por su cuenta: los llamadores comparan Expiration con
// "ahora" (IsValid). El borrado de vencidos es un sweep externo (DeleteExpired).
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// DefaultDigits es el largo por defecto del transaction id.
const DefaultDigits = 20

// maxAttempts acota los reintentos ante colisión de transaction id.
const maxAttempts = 10

// ErrIDSpaceExhausted se retorna si no se encontró un id libre tras maxAttempts.
var ErrIDSpaceExhausted = errors.New("challenge: could not allocate a unique transaction id")

// Challenge es la vista de dominio de un challenge, con Data decodificado.
type Challenge struct {
	repository.Challenge

	// Decoded es Data decodificado como JSON, o el texto crudo si no es JSON.
	Decoded any
}

// IsValid indica si el challenge no expiró a la hora dada.
func (c *Challenge) IsValid(now time.Time) bool {
	return now.Before(c.Expiration)
}

// Store crea y consulta challenges.
type Store struct {
	repo   repository.ChallengeRepository
	digits int
	now    func() time.Time
}

// Option configura un Store.
type Option func(*Store)

// WithDigits fija el largo del transaction id.
func WithDigits(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.digits = n
		}
	}
}

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New crea un Store sobre el repositorio dado.
func New(repo repository.ChallengeRepository, opts ...Option) *Store {
	s := &Store{repo: repo, digits: DefaultDigits, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create persiste un challenge nuevo y retorna su transaction id.
// data se codifica como JSON si es estructurado; un string se guarda tal cual.
func (s *Store) Create(ctx context.Context, serial, payload string, data any, validity time.Duration) (string, error) {
	blob, err := EncodeData(data)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		txid, err := NewTransactionID(s.digits)
		if err != nil {
			return "", err
		}
		exists, err := s.repo.Exists(ctx, txid)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		err = s.repo.Create(ctx, &repository.Challenge{
			TransactionID: txid,
			Serial:        serial,
			Challenge:     payload,
			Data:          blob,
			CreatedAt:     now,
			Expiration:    now.Add(validity),
		})
		if repository.IsConflict(err) {
			// Otro request tomó el id entre Exists y Create.
			continue
		}
		if err != nil {
			return "", err
		}

		metrics.ChallengesCreated.Inc()
		logger.From(ctx).Debug("challenge created",
			logger.Serial(serial), logger.TransactionID(txid))
		return txid, nil
	}
	return "", ErrIDSpaceExhausted
}

// RecordResponse incrementa el contador de respuestas y fija ambos flags.
// otp_valid nunca vuelve a false una vez marcado.
func (s *Store) RecordResponse(ctx context.Context, transactionID string, received, valid bool) error {
	return s.repo.RecordResponse(ctx, transactionID, received, valid)
}

// Get retorna el challenge o nil si no existe.
func (s *Store) Get(ctx context.Context, transactionID string) (*Challenge, error) {
	c, err := s.repo.Get(ctx, transactionID)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Challenge{Challenge: *c, Decoded: DecodeData(c.Data)}, nil
}

// ForSerial lista los challenges de un token, más recientes primero.
func (s *Store) ForSerial(ctx context.Context, serial string) ([]Challenge, error) {
	rows, err := s.repo.ListBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	out := make([]Challenge, 0, len(rows))
	for _, r := range rows {
		out = append(out, Challenge{Challenge: r, Decoded: DecodeData(r.Data)})
	}
	return out, nil
}

// DeleteExpired borra los challenges vencidos a la hora dada.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.repo.DeleteExpired(ctx, now)
}

// NewTransactionID genera un id numérico de n dígitos con crypto/rand.
func NewTransactionID(n int) (string, error) {
	if n <= 0 {
		n = DefaultDigits
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("challenge: random: %w", err)
	}
	digits := v.String()
	return strings.Repeat("0", n-len(digits)) + digits, nil
}

// EncodeData serializa los datos auxiliares.
func EncodeData(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("challenge: encode data: %w", err)
	}
	return string(b), nil
}

// DecodeData intenta decodificar JSON; si falla retorna el texto crudo. Nunca falla.
func DecodeData(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
