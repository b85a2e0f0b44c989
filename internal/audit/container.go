package audit

import (
	"context"
	"errors"
	"time"
)

// containerLedger replica escrituras en N backends y lee de uno solo.
type containerLedger struct {
	writers []Ledger
	reader  Ledger
}

func (c *containerLedger) Name() string     { return "container" }
func (c *containerLedger) IsReadable() bool { return c.reader.IsReadable() }

func (c *containerLedger) Log(f Fields) {
	for _, w := range c.writers {
		w.Log(f)
	}
}

func (c *containerLedger) AddToLog(f Fields, withComma bool) {
	for _, w := range c.writers {
		w.AddToLog(f, withComma)
	}
}

func (c *containerLedger) AddPolicy(names ...string) {
	for _, w := range c.writers {
		w.AddPolicy(names...)
	}
}

func (c *containerLedger) Snapshot() Fields { return c.reader.Snapshot() }

// FinalizeLog finaliza en todos los writers aunque alguno falle.
func (c *containerLedger) FinalizeLog(ctx context.Context) error {
	var errs []error
	for _, w := range c.writers {
		if err := w.FinalizeLog(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *containerLedger) Search(ctx context.Context, p SearchParams) (*Page, error) {
	return c.reader.Search(ctx, p)
}

func (c *containerLedger) Total(ctx context.Context, p SearchParams) (int64, error) {
	return c.reader.Total(ctx, p)
}

func (c *containerLedger) SearchQuery(ctx context.Context, p SearchParams, fn func(Entry) error) error {
	return c.reader.SearchQuery(ctx, p, fn)
}

func (c *containerLedger) EntryToMap(e Entry) map[string]any { return c.reader.EntryToMap(e) }

// Rotate delega en el reader si soporta rotación.
func (c *containerLedger) Rotate(ctx context.Context, cutoff time.Time) (int64, error) {
	if r, ok := c.reader.(Rotator); ok {
		return r.Rotate(ctx, cutoff)
	}
	return 0, ErrNotRotatable
}
