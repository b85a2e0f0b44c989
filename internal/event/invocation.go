package event

import (
	"fmt"
	"strings"

	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
)

// Request es la vista del request que ven los handlers. RequestMangler puede
// modificar Params antes de que corra el body.
type Request struct {
	Method    string
	Path      string
	ClientIP  string
	User      string
	Realm     string
	Serial    string
	TokenType string
	// Admin es la identidad del administrador logueado ("" si es un usuario).
	Admin  string
	Params map[string]string
}

// Param retorna un parámetro o "".
func (r *Request) Param(k string) string {
	if r == nil || r.Params == nil {
		return ""
	}
	return r.Params[k]
}

// Response es el cuerpo JSON de la respuesta:
// {"result": {"status": ..., "value": ...}, "detail": {...}}.
// ResponseMangler lo modifica in-place en POST.
type Response struct {
	HTTPStatus int
	Body       map[string]any
}

// NewResponse arma la forma estándar.
func NewResponse(status bool, value any, detail map[string]any) *Response {
	body := map[string]any{
		"result": map[string]any{"status": status, "value": value},
	}
	if detail != nil {
		body["detail"] = detail
	}
	return &Response{HTTPStatus: 200, Body: body}
}

func (r *Response) result() map[string]any {
	if r == nil {
		return nil
	}
	m, _ := r.Body["result"].(map[string]any)
	return m
}

// Status retorna result.status.
func (r *Response) Status() (bool, bool) {
	v, ok := r.result()["status"].(bool)
	return v, ok
}

// Value retorna result.value.
func (r *Response) Value() (any, bool) {
	v, ok := r.result()["value"]
	return v, ok
}

// Detail retorna un campo de detail como string.
func (r *Response) Detail(k string) string {
	if r == nil {
		return ""
	}
	d, _ := r.Body["detail"].(map[string]any)
	if v, ok := d[k]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Invocation es el contexto de una ejecución de handler.
type Invocation struct {
	Event      string
	Position   string
	Definition repository.EventDefinition
	Request    *Request
	// Response es nil en PRE.
	Response *Response
}

// Option retorna una opción de la definición o "".
func (inv *Invocation) Option(k string) string {
	return inv.Definition.Options[k]
}

// Serial toma el serial del request o, si falta, del detail de la respuesta.
func (inv *Invocation) Serial() string {
	if s := inv.Request.Param("serial"); s != "" {
		return s
	}
	if inv.Request != nil && inv.Request.Serial != "" {
		return inv.Request.Serial
	}
	return inv.Response.Detail("serial")
}

// TokenType toma el tipo del request o del detail de la respuesta.
func (inv *Invocation) TokenType() string {
	if inv.Request != nil && inv.Request.TokenType != "" {
		return inv.Request.TokenType
	}
	return inv.Response.Detail("type")
}

// LoggedInRole es "admin" o "user".
func (inv *Invocation) LoggedInRole() string {
	if inv.Request != nil && inv.Request.Admin != "" {
		return "admin"
	}
	return "user"
}

// Tags son los valores reemplazables en mensajes y plantillas.
func (inv *Invocation) Tags() map[string]string {
	t := map[string]string{
		"event":          inv.Event,
		"serial":         inv.Serial(),
		"tokentype":      inv.TokenType(),
		"logged_in_role": inv.LoggedInRole(),
		"action":         inv.Definition.Action,
	}
	if r := inv.Request; r != nil {
		t["user"] = r.User
		t["realm"] = r.Realm
		t["client_ip"] = r.ClientIP
		t["admin"] = r.Admin
		t["url"] = r.Path
		t["method"] = r.Method
	}
	return t
}

// expandTags reemplaza {tag} por su valor.
func expandTags(s string, tags map[string]string) string {
	pairs := make([]string, 0, 2*len(tags))
	for k, v := range tags {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
