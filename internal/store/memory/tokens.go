package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

type tokenRepo struct{ c *Conn }

func (r *tokenRepo) Create(ctx context.Context, t *repository.Token) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	if _, ok := r.c.tokens[t.Serial]; ok {
		return repository.ErrConflict
	}
	cp := *t
	cp.Info = copyStrMap(t.Info)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.c.tokens[t.Serial] = cp
	return nil
}

func (r *tokenRepo) Get(ctx context.Context, serial string) (*repository.Token, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	t, ok := r.c.tokens[serial]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.Info = copyStrMap(t.Info)
	return &t, nil
}

func (r *tokenRepo) CountByType(ctx context.Context) (map[string]int, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	out := make(map[string]int)
	for _, t := range r.c.tokens {
		out[t.Type]++
	}
	return out, nil
}

func (r *tokenRepo) UpdateCounter(ctx context.Context, serial string, expected, next int64) error {
	return r.mutate(serial, func(t *repository.Token) error {
		if t.Count != expected {
			return repository.ErrPreconditionFailed
		}
		t.Count = next
		return nil
	})
}

func (r *tokenRepo) IncFailCount(ctx context.Context, serial string) (int, error) {
	var n int
	err := r.mutate(serial, func(t *repository.Token) error {
		t.FailCount++
		n = t.FailCount
		return nil
	})
	return n, err
}

func (r *tokenRepo) ResetFailCount(ctx context.Context, serial string) error {
	return r.mutate(serial, func(t *repository.Token) error {
		t.FailCount = 0
		return nil
	})
}

func (r *tokenRepo) SetActive(ctx context.Context, serial string, active bool) error {
	return r.mutate(serial, func(t *repository.Token) error {
		t.Active = active
		return nil
	})
}

func (r *tokenRepo) SetInfo(ctx context.Context, serial, key, value string) error {
	return r.mutate(serial, func(t *repository.Token) error {
		if t.Info == nil {
			t.Info = make(map[string]string)
		}
		t.Info[key] = value
		return nil
	})
}

func (r *tokenRepo) Delete(ctx context.Context, serial string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	if _, ok := r.c.tokens[serial]; !ok {
		return repository.ErrNotFound
	}
	delete(r.c.tokens, serial)
	return nil
}

func (r *tokenRepo) mutate(serial string, fn func(t *repository.Token) error) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	t, ok := r.c.tokens[serial]
	if !ok {
		return repository.ErrNotFound
	}
	t.Info = copyStrMap(t.Info)
	if err := fn(&t); err != nil {
		return err
	}
	r.c.tokens[serial] = t
	return nil
}
