package event

import (
	"context"
	"errors"
	"strconv"

	"github.com/dropDatabas3/tokenguard/internal/cache"
)

// Acciones del handler Counter.
const (
	CounterIncrease = "increase_counter"
	CounterDecrease = "decrease_counter"
	CounterReset    = "reset_counter"
)

// CounterKeyPrefix antecede el nombre del contador en el cache.
const CounterKeyPrefix = "event_counter:"

var errNoCache = errors.New("counter handler: no cache configured")

// CounterHandler mantiene contadores con nombre en el cache (atómicos en redis).
type CounterHandler struct {
	conditional
	cache cache.Client
}

func (h *CounterHandler) Kind() Kind { return KindCounter }

func (h *CounterHandler) Actions() map[string]map[string]OptionSpec {
	name := OptionSpec{Type: "str", Required: true, Description: "nombre del contador"}
	return map[string]map[string]OptionSpec{
		CounterIncrease: {"counter_name": name},
		CounterDecrease: {
			"counter_name":          name,
			"allow_negative_values": {Type: "bool", Description: "permite bajar de 0"},
		},
		CounterReset: {"counter_name": name},
	}
}

func (h *CounterHandler) Do(ctx context.Context, action string, inv *Invocation) (bool, error) {
	if h.cache == nil {
		return false, errNoCache
	}
	name := inv.Option("counter_name")
	if name == "" {
		return false, nil
	}
	key := CounterKeyPrefix + name

	switch action {
	case CounterIncrease:
		_, err := h.cache.Incr(ctx, key, 1)
		return err == nil, err
	case CounterDecrease:
		v, err := h.cache.Incr(ctx, key, -1)
		if err != nil {
			return false, err
		}
		if allow, _ := strconv.ParseBool(inv.Option("allow_negative_values")); !allow && v < 0 {
			if err := h.cache.Set(ctx, key, "0", 0); err != nil {
				return false, err
			}
		}
		return true, nil
	case CounterReset:
		err := h.cache.Set(ctx, key, "0", 0)
		return err == nil, err
	}
	return false, nil
}

// ReadCounter lee un contador; uno inexistente vale 0.
func ReadCounter(ctx context.Context, c cache.Client, name string) (int64, error) {
	raw, err := c.Get(ctx, CounterKeyPrefix+name)
	if cache.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
