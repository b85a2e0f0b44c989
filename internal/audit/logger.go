package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/tokenguard/internal/metrics"
)

// loggerLedger escribe cada entrada como un log estructurado. Solo escritura.
type loggerLedger struct {
	base
	log    *zap.Logger
	signer *Signer
}

func (l *loggerLedger) Name() string     { return "logger" }
func (l *loggerLedger) IsReadable() bool { return false }

func (l *loggerLedger) FinalizeLog(ctx context.Context) error {
	e, raw := l.acc.take(l.server, l.now())

	fields := []zap.Field{
		zap.Time("date", e.Date),
		zap.Duration("duration", e.Duration),
		zap.String("action", e.Action),
		zap.Bool("success", e.Success),
		zap.String("serial", e.Serial),
		zap.String("token_type", e.TokenType),
		zap.String("user", e.User),
		zap.String("realm", e.Realm),
		zap.String("administrator", e.Administrator),
		zap.String("action_detail", e.ActionDetail),
		zap.String("info", e.Info),
		zap.String("server", e.Server),
		zap.String("client", e.Client),
		zap.String("policies", e.Policies),
	}
	// Claves extra que no tienen columna.
	for k, v := range raw {
		if _, known := columnWidths[k]; known || k == KeySuccess {
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	if l.signer != nil {
		if sig, err := l.signer.Sign(Canonical(&e)); err == nil {
			fields = append(fields, zap.String("signature", sig))
		}
	}
	l.log.Info("audit", fields...)
	metrics.AuditWrites.WithLabelValues(l.Name(), "ok").Inc()
	return nil
}

func (l *loggerLedger) Search(ctx context.Context, p SearchParams) (*Page, error) {
	return &Page{Current: p.page()}, nil
}

func (l *loggerLedger) Total(ctx context.Context, p SearchParams) (int64, error) {
	return 0, nil
}

func (l *loggerLedger) SearchQuery(ctx context.Context, p SearchParams, fn func(Entry) error) error {
	return nil
}
