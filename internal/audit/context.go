package audit

import "context"

type ctxKey struct{}

// ToContext adjunta el ledger del request al contexto.
func ToContext(ctx context.Context, l Ledger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From retorna el ledger del request o nil.
func From(ctx context.Context) Ledger {
	if l, ok := ctx.Value(ctxKey{}).(Ledger); ok {
		return l
	}
	return nil
}
