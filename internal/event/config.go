package event

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/cache"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

const configCacheKey = "event:config"

// Config es la foto de las definiciones para un request. Es de solo lectura.
type Config struct {
	defs []repository.EventDefinition
}

// NewConfig ordena las definiciones por ordering y luego id.
func NewConfig(defs []repository.EventDefinition) *Config {
	cp := make([]repository.EventDefinition, len(defs))
	copy(cp, defs)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Ordering != cp[j].Ordering {
			return cp[i].Ordering < cp[j].Ordering
		}
		return cp[i].ID < cp[j].ID
	})
	return &Config{defs: cp}
}

// Events retorna todas las definiciones.
func (c *Config) Events() []repository.EventDefinition {
	if c == nil {
		return nil
	}
	return c.defs
}

// Matching retorna las definiciones activas que escuchan event en position.
// Una posición vacía cuenta como post.
func (c *Config) Matching(event, position string) []repository.EventDefinition {
	if c == nil {
		return nil
	}
	var out []repository.EventDefinition
	for _, d := range c.defs {
		pos := d.Position
		if pos == "" {
			pos = repository.PositionPost
		}
		if d.Active && pos == position && d.Triggers(event) {
			out = append(out, d)
		}
	}
	return out
}

// Loader carga el Config desde el repositorio, con cache opcional.
type Loader struct {
	repo  repository.EventRepository
	cache cache.Client
	ttl   time.Duration
}

// NewLoader crea un Loader. Sin cache o con ttl 0 siempre lee el repositorio.
func NewLoader(repo repository.EventRepository, c cache.Client, ttl time.Duration) *Loader {
	return &Loader{repo: repo, cache: c, ttl: ttl}
}

// LoadConfig lee las definiciones sin cache.
func LoadConfig(ctx context.Context, repo repository.EventRepository) (*Config, error) {
	return NewLoader(repo, nil, 0).Load(ctx)
}

// Load retorna un Config nuevo para el request.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cached := l.cache != nil && l.ttl > 0
	if cached {
		raw, err := l.cache.Get(ctx, configCacheKey)
		if err == nil {
			var defs []repository.EventDefinition
			if err := json.Unmarshal([]byte(raw), &defs); err == nil {
				return NewConfig(defs), nil
			}
		} else if !cache.IsNotFound(err) {
			logger.From(ctx).Warn("event config cache read failed", logger.Err(err))
		}
	}

	defs, err := l.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if cached {
		if b, err := json.Marshal(defs); err == nil {
			if err := l.cache.Set(ctx, configCacheKey, string(b), l.ttl); err != nil {
				logger.From(ctx).Warn("event config cache write failed", logger.Err(err))
			}
		}
	}
	return NewConfig(defs), nil
}

// Invalidate descarta la foto cacheada tras un cambio de definiciones.
func (l *Loader) Invalidate(ctx context.Context) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, configCacheKey); err != nil && !cache.IsNotFound(err) {
		logger.From(ctx).Warn("event config cache invalidate failed", logger.Err(err))
	}
}
