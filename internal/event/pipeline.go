package event

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// Body es la operación envuelta.
type Body func(ctx context.Context, req *Request) (*Response, error)

// Pipeline corre PRE → body → POST.
type Pipeline struct {
	registry *Registry
	ledgers  *audit.Factory
}

// NewPipeline crea el pipeline. ledgers nil desactiva la auditoría de handlers.
func NewPipeline(registry *Registry, ledgers *audit.Factory) *Pipeline {
	return &Pipeline{registry: registry, ledgers: ledgers}
}

// Wrap ejecuta los handlers PRE, el body y los POST. Si el body falla, POST
// no corre. Los handlers POST pueden reescribir la respuesta.
func (p *Pipeline) Wrap(ctx context.Context, cfg *Config, event string, req *Request, body Body) (*Response, error) {
	if req == nil {
		req = &Request{}
	}
	if err := p.run(ctx, cfg, event, repository.PositionPre, req, nil); err != nil {
		return nil, err
	}
	resp, err := body(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.run(ctx, cfg, event, repository.PositionPost, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Pipeline) run(ctx context.Context, cfg *Config, event, position string, req *Request, resp *Response) error {
	for _, def := range cfg.Matching(event, position) {
		log := logger.From(ctx).With(
			logger.Event(event), logger.Position(position),
			logger.Handler(def.HandlerModule), logger.Action(def.Action))

		h := p.registry.Get(def.HandlerModule)
		if h == nil {
			log.Warn("event handler module unknown, skipping", logger.String("definition", def.Name))
			continue
		}
		inv := &Invocation{Event: event, Position: position, Definition: def, Request: req, Response: resp}
		if !h.CheckCondition(ctx, inv) {
			log.Debug("event condition not met", logger.String("definition", def.Name))
			continue
		}
		if err := p.invoke(ctx, h, inv); err != nil {
			log.Error("event handler failed", logger.Err(err))
			return fmt.Errorf("event %s: %s handler %s: %w", event, position, def.HandlerModule, err)
		}
	}
	return nil
}

// invoke ejecuta la acción y escribe un registro de auditoría propio,
// sembrado con los campos del registro del request.
func (p *Pipeline) invoke(ctx context.Context, h Handler, inv *Invocation) error {
	def := inv.Definition
	var l audit.Ledger
	if p.ledgers != nil {
		l = p.ledgers.New()
		if parent := audit.From(ctx); parent != nil {
			l.Log(parent.Snapshot())
		}
		l.Log(audit.Fields{
			audit.KeyAction: fmt.Sprintf("%s-EVENT %s>>%s:%s",
				strings.ToUpper(inv.Position), inv.Event, def.HandlerModule, def.Action),
			audit.KeyActionDetail: def.Name,
			audit.KeyInfo:         "",
		})
	}

	ok, err := h.Do(ctx, def.Action, inv)
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !ok:
		result = "false"
	}
	metrics.EventHandlerRuns.WithLabelValues(def.HandlerModule, inv.Position, result).Inc()

	if l != nil {
		f := audit.Fields{audit.KeySuccess: err == nil && ok}
		if err != nil {
			f[audit.KeyInfo] = err.Error()
		}
		l.Log(f)
		if ferr := l.FinalizeLog(ctx); ferr != nil {
			logger.From(ctx).Error("event audit finalize failed", logger.Handler(def.HandlerModule), logger.Err(ferr))
		}
	}
	return err
}
