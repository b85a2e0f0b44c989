package event

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Acciones de los manglers.
const (
	MangleDelete = "delete"
	MangleSet    = "set"
)

var groupRef = regexp.MustCompile(`\{(\d)\}`)

// RequestMangler borra o reescribe parámetros del request (en PRE).
type RequestMangler struct {
	conditional
}

func (h *RequestMangler) Kind() Kind { return KindRequestMangler }

func (h *RequestMangler) Actions() map[string]map[string]OptionSpec {
	return map[string]map[string]OptionSpec{
		MangleDelete: {
			"parameter": {Type: "str", Required: true, Description: "parámetro a borrar"},
		},
		MangleSet: {
			"parameter":       {Type: "str", Required: true, Description: "parámetro a fijar"},
			"value":           {Type: "str", Required: true, Description: "valor; {0}, {1}... referencian grupos de match_pattern"},
			"match_parameter": {Type: "str", Description: "parámetro sobre el que se aplica match_pattern"},
			"match_pattern":   {Type: "str", Description: "regexp; si no matchea no se cambia nada"},
		},
	}
}

func (h *RequestMangler) Do(ctx context.Context, action string, inv *Invocation) (bool, error) {
	req := inv.Request
	param := inv.Option("parameter")
	if req == nil || param == "" {
		return false, nil
	}
	if req.Params == nil {
		req.Params = map[string]string{}
	}

	switch action {
	case MangleDelete:
		if _, ok := req.Params[param]; !ok {
			return false, nil
		}
		delete(req.Params, param)
		return true, nil
	case MangleSet:
		value := inv.Option("value")
		if mp := inv.Option("match_parameter"); mp != "" {
			re, err := regexp.Compile(inv.Option("match_pattern"))
			if err != nil {
				return false, err
			}
			groups := re.FindStringSubmatch(req.Params[mp])
			if groups == nil {
				return false, nil
			}
			value = groupRef.ReplaceAllStringFunc(value, func(m string) string {
				i, _ := strconv.Atoi(m[1 : len(m)-1])
				if i < len(groups) {
					return groups[i]
				}
				return ""
			})
		}
		req.Params[param] = value
		return true, nil
	}
	return false, nil
}

// ResponseMangler borra o reescribe claves del JSON de respuesta (en POST).
// La ruta es tipo "/detail/message".
type ResponseMangler struct {
	conditional
}

func (h *ResponseMangler) Kind() Kind { return KindResponseMangler }

func (h *ResponseMangler) Actions() map[string]map[string]OptionSpec {
	return map[string]map[string]OptionSpec{
		MangleDelete: {
			"JSON pointer": {Type: "str", Required: true, Description: "ruta a borrar, p.ej. /detail/message"},
		},
		MangleSet: {
			"JSON pointer": {Type: "str", Required: true, Description: "ruta a fijar"},
			"type":         {Type: "str", Description: "string | integer | bool"},
			"value":        {Type: "str", Description: "valor"},
		},
	}
}

func (h *ResponseMangler) Do(ctx context.Context, action string, inv *Invocation) (bool, error) {
	if inv.Response == nil || inv.Response.Body == nil {
		return false, nil
	}
	path := splitPointer(inv.Option("JSON pointer"))
	if len(path) == 0 {
		return false, nil
	}
	parent, ok := walk(inv.Response.Body, path[:len(path)-1], action == MangleSet)
	if !ok {
		return false, nil
	}
	last := path[len(path)-1]

	switch action {
	case MangleDelete:
		if _, ok := parent[last]; !ok {
			return false, nil
		}
		delete(parent, last)
		return true, nil
	case MangleSet:
		v, err := typedValue(inv.Option("type"), inv.Option("value"))
		if err != nil {
			return false, err
		}
		parent[last] = v
		return true, nil
	}
	return false, nil
}

func splitPointer(p string) []string {
	var out []string
	for _, s := range strings.Split(strings.Trim(p, "/"), "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// walk baja por mapas anidados; con create crea los que falten.
func walk(m map[string]any, path []string, create bool) (map[string]any, bool) {
	cur := m
	for _, k := range path {
		next, ok := cur[k].(map[string]any)
		if !ok {
			if !create || cur[k] != nil {
				return nil, false
			}
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
	return cur, true
}

func typedValue(typ, v string) (any, error) {
	switch typ {
	case "integer":
		return strconv.Atoi(v)
	case "bool":
		return strconv.ParseBool(v)
	}
	return v, nil
}
