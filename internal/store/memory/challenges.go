package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type challengeRepo struct{ c *Conn }

func (r *challengeRepo) Create(ctx context.Context, ch *repository.Challenge) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	if _, ok := r.c.challenges[ch.TransactionID]; ok {
		return repository.ErrConflict
	}
	r.c.challSeq++
	ch.ID = r.c.challSeq
	r.c.challenges[ch.TransactionID] = *ch
	return nil
}

func (r *challengeRepo) Get(ctx context.Context, transactionID string) (*repository.Challenge, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	ch, ok := r.c.challenges[transactionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ch, nil
}

func (r *challengeRepo) Exists(ctx context.Context, transactionID string) (bool, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	_, ok := r.c.challenges[transactionID]
	return ok, nil
}

func (r *challengeRepo) ListBySerial(ctx context.Context, serial string) ([]repository.Challenge, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	var out []repository.Challenge
	for _, ch := range r.c.challenges {
		if ch.Serial == serial {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *challengeRepo) RecordResponse(ctx context.Context, transactionID string, received, valid bool) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	ch, ok := r.c.challenges[transactionID]
	if !ok {
		return repository.ErrNotFound
	}
	ch.ReceivedCount++
	ch.OTPReceived = received
	// una respuesta válida deja el challenge terminal
	ch.OTPValid = ch.OTPValid || valid
	r.c.challenges[transactionID] = ch
	return nil
}

func (r *challengeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	n := 0
	for id, ch := range r.c.challenges {
		if !ch.Expiration.After(now) {
			delete(r.c.challenges, id)
			n++
		}
	}
	return n, nil
}
