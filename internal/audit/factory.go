package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

// Módulos soportados.
const (
	ModuleSQL    = "sql"
	ModuleLogger = "logger"
	ModuleKafka  = "kafka"
)

// Options configura la Factory.
type Options struct {
	// Modules son los backends de escritura; ReadModule el de lectura.
	Modules    []string
	ReadModule string

	ServerName      string
	FailOnSignError bool

	Repo   repository.AuditRepository // requerido para "sql"
	Signer *Signer                    // opcional
	Kafka  MessageWriter              // requerido para "kafka"
	Logger *zap.Logger                // para "logger"; default zap.NewNop

	// Now reemplaza el reloj (tests).
	Now func() time.Time
}

// Factory crea un Ledger nuevo por request. Es segura para uso concurrente;
// los Ledger que devuelve no lo son.
type Factory struct {
	opts Options
}

// NewFactory valida las opciones. Un backend de lectura no legible es solo
// una advertencia.
func NewFactory(opts Options) (*Factory, error) {
	if len(opts.Modules) == 0 {
		opts.Modules = []string{ModuleSQL}
	}
	if opts.ReadModule == "" {
		opts.ReadModule = opts.Modules[0]
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	readFound := false
	for _, m := range opts.Modules {
		switch m {
		case ModuleSQL:
			if opts.Repo == nil {
				return nil, fmt.Errorf("audit: module %q requires a repository", m)
			}
		case ModuleKafka:
			if opts.Kafka == nil {
				return nil, fmt.Errorf("audit: module %q requires a kafka writer", m)
			}
		case ModuleLogger:
		default:
			return nil, fmt.Errorf("audit: unknown module %q", m)
		}
		if m == opts.ReadModule {
			readFound = true
		}
	}
	if !readFound {
		return nil, fmt.Errorf("audit: read module %q is not a configured module", opts.ReadModule)
	}
	if opts.ReadModule != ModuleSQL {
		opts.Logger.Warn("audit read module is not readable; search will return no entries",
			zap.String("read_module", opts.ReadModule))
	}
	if opts.Signer == nil {
		opts.Logger.Warn("audit signing disabled: no private key configured")
	}
	return &Factory{opts: opts}, nil
}

// New crea el ledger para un request. Con un solo módulo retorna el backend
// directo; con varios, un container.
func (f *Factory) New() Ledger {
	if len(f.opts.Modules) == 1 {
		return f.build(f.opts.Modules[0])
	}
	c := &containerLedger{}
	for _, m := range f.opts.Modules {
		l := f.build(m)
		c.writers = append(c.writers, l)
		if m == f.opts.ReadModule {
			c.reader = l
		}
	}
	return c
}

func (f *Factory) build(module string) Ledger {
	b := newBase(f.opts.ServerName, f.opts.Now)
	switch module {
	case ModuleLogger:
		return &loggerLedger{base: b, log: f.opts.Logger.Named("audit"), signer: f.opts.Signer}
	case ModuleKafka:
		return &kafkaLedger{base: b, writer: f.opts.Kafka, signer: f.opts.Signer}
	default:
		return &sqlLedger{base: b, repo: f.opts.Repo, signer: f.opts.Signer, failOnSignError: f.opts.FailOnSignError}
	}
}

// Rotate borra entradas anteriores a cutoff en el backend de lectura.
func (f *Factory) Rotate(ctx context.Context, cutoff time.Time) (int64, error) {
	if r, ok := f.New().(Rotator); ok {
		return r.Rotate(ctx, cutoff)
	}
	return 0, ErrNotRotatable
}
