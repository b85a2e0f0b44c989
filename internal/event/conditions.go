package event

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

// Condiciones comunes a todos los handlers.
const (
	CondResultValue  = "result_value"
	CondResultStatus = "result_status"
	CondSerial       = "serial"
	CondTokenType    = "tokentype"
	CondRealm        = "realm"
	CondLoggedInUser = "logged_in_user"
	CondClientIP     = "client_ip"
)

// Conditions lista las condiciones soportadas.
var Conditions = []string{
	CondResultValue, CondResultStatus, CondSerial, CondTokenType,
	CondRealm, CondLoggedInUser, CondClientIP,
}

// conditional implementa CheckCondition para los handlers.
type conditional struct{}

// CheckCondition exige que todas las condiciones se cumplan. Una condición
// desconocida o inválida no se cumple.
func (conditional) CheckCondition(ctx context.Context, inv *Invocation) bool {
	for k, want := range inv.Definition.Conditions {
		ok, err := evalCondition(k, want, inv)
		if err != nil {
			logger.From(ctx).Warn("event condition invalid",
				logger.Handler(inv.Definition.HandlerModule),
				logger.String("condition", k), logger.Err(err))
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

func evalCondition(key, want string, inv *Invocation) (bool, error) {
	switch key {
	case CondResultValue:
		v, ok := inv.Response.Value()
		if !ok {
			return false, nil
		}
		return matchValue(v, want), nil
	case CondResultStatus:
		v, ok := inv.Response.Status()
		if !ok {
			return false, nil
		}
		return matchValue(v, want), nil
	case CondSerial:
		re, err := regexp.Compile(want)
		if err != nil {
			return false, err
		}
		s := inv.Serial()
		return s != "" && re.MatchString(s), nil
	case CondTokenType:
		return inList(inv.TokenType(), want, true), nil
	case CondRealm:
		return inv.Request != nil && inList(inv.Request.Realm, want, false), nil
	case CondLoggedInUser:
		return strings.EqualFold(inv.LoggedInRole(), strings.TrimSpace(want)), nil
	case CondClientIP:
		if inv.Request == nil {
			return false, nil
		}
		return matchIP(inv.Request.ClientIP, want)
	}
	return false, fmt.Errorf("unknown condition %q", key)
}

// matchValue compara booleanos sin importar mayúsculas ("True"/"false");
// el resto como string.
func matchValue(v any, want string) bool {
	if b, ok := v.(bool); ok {
		w, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(want)))
		return err == nil && w == b
	}
	return fmt.Sprint(v) == want
}

func inList(v, list string, fold bool) bool {
	if v == "" {
		return false
	}
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == v || (fold && strings.EqualFold(item, v)) {
			return true
		}
	}
	return false
}

// matchIP acepta una lista de IPs y rangos CIDR separados por coma.
func matchIP(ip, list string) (bool, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false, nil
	}
	addr = addr.Unmap()
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return false, err
			}
			if p.Contains(addr) {
				return true, nil
			}
			continue
		}
		a, err := netip.ParseAddr(item)
		if err != nil {
			return false, err
		}
		if a.Unmap() == addr {
			return true, nil
		}
	}
	return false, nil
}
