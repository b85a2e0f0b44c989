package event

import (
	"context"
	"errors"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// Acciones del handler Token.
const (
	TokenActionEnable           = "enable"
	TokenActionDisable          = "disable"
	TokenActionDelete           = "delete"
	TokenActionResetFailCounter = "reset_failcounter"
	TokenActionSetTokenInfo     = "set_tokeninfo"
)

var errNoTokenRepo = errors.New("token handler: no token repository")

// TokenHandler modifica el token del request.
type TokenHandler struct {
	conditional
	tokens repository.TokenRepository
}

func (h *TokenHandler) Kind() Kind { return KindToken }

func (h *TokenHandler) Actions() map[string]map[string]OptionSpec {
	return map[string]map[string]OptionSpec{
		TokenActionEnable:           {},
		TokenActionDisable:          {},
		TokenActionDelete:           {},
		TokenActionResetFailCounter: {},
		TokenActionSetTokenInfo: {
			"key":   {Type: "str", Required: true, Description: "clave de tokeninfo"},
			"value": {Type: "str", Description: "valor; admite tags {serial}, {user}, ..."},
		},
	}
}

func (h *TokenHandler) Do(ctx context.Context, action string, inv *Invocation) (bool, error) {
	if h.tokens == nil {
		return false, errNoTokenRepo
	}
	serial := inv.Serial()
	if serial == "" {
		logger.From(ctx).Info("token handler: no serial in request", logger.Action(action))
		return false, nil
	}

	var err error
	switch action {
	case TokenActionEnable:
		err = h.tokens.SetActive(ctx, serial, true)
	case TokenActionDisable:
		err = h.tokens.SetActive(ctx, serial, false)
	case TokenActionDelete:
		err = h.tokens.Delete(ctx, serial)
	case TokenActionResetFailCounter:
		err = h.tokens.ResetFailCount(ctx, serial)
	case TokenActionSetTokenInfo:
		key := inv.Option("key")
		if key == "" {
			return false, nil
		}
		err = h.tokens.SetInfo(ctx, serial, key, expandTags(inv.Option("value"), inv.Tags()))
	default:
		return false, nil
	}
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
