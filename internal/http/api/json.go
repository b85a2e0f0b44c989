package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/http/errors"
	mw "github.com/dropDatabas3/tokenguard/internal/http/middlewares"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeValue escribe la forma estándar con status true.
func writeValue(w http.ResponseWriter, value any) {
	resp := event.NewResponse(true, value, nil)
	writeJSON(w, resp.HTTPStatus, resp.Body)
}

func writeResponse(w http.ResponseWriter, resp *event.Response, err error) {
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	status := resp.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, resp.Body)
}

// readJSON decodifica el body; no falla por campos desconocidos.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errors.ErrInvalidJSON.WithCause(err)
	}
	return nil
}

// readParams junta query string y body (JSON plano o form) en un mapa de
// strings. El body pisa al query string.
func readParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	if r.Method == http.MethodGet || r.Method == http.MethodDelete || r.Body == nil {
		return out, nil
	}

	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.Contains(ct, "application/json") {
		var raw map[string]any
		if err := readJSON(w, r, &raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			out[k] = paramString(v)
		}
		return out, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		return nil, errors.ErrBadRequest.WithCause(err)
	}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}

func paramString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// eventRequest arma la vista del request para los handlers de eventos.
func eventRequest(r *http.Request, params map[string]string) *event.Request {
	req := &event.Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		ClientIP: mw.ClientIP(r),
		User:     params["user"],
		Realm:    params["realm"],
		Serial:   params["serial"],
		Admin:    mw.AdminName(r.Context()),
		Params:   params,
	}
	if c := mw.GetClaims(r.Context()); c != nil && !c.IsAdmin() {
		req.User, req.Realm = c.Subject, c.Realm
	}
	return req
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.ErrInvalidParameter.WithDetail("id must be a positive integer")
	}
	return id, nil
}

func intParam(params map[string]string, key string) (int, error) {
	v := strings.TrimSpace(params[key])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.ErrInvalidParameter.WithDetail(key + " must be an integer")
	}
	return n, nil
}
