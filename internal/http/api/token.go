package api

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/http/errors"
	"github.com/dropDatabas3/tokenguard/internal/otp"
	"github.com/dropDatabas3/tokenguard/internal/token"
)

// tokenInit: POST /token/init. El secreto vuelve en claro solo en esta respuesta.
func (a *API) tokenInit(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	a.wrap(w, r, EventTokenInit, eventRequest(r, params), func(ctx context.Context, req *event.Request) (*event.Response, error) {
		er, err := enrollRequest(req.Params)
		if err != nil {
			return nil, err
		}
		res, err := a.d.Tokens.Enroll(ctx, er)
		if err != nil {
			return nil, err
		}
		req.Serial, req.TokenType = res.Serial, er.Type

		detail := map[string]any{
			"serial": res.Serial,
			"otpkey": hex.EncodeToString(res.Secret),
		}
		if res.URL != "" {
			detail["googleurl"] = res.URL
		}
		return event.NewResponse(true, true, detail), nil
	})
}

func enrollRequest(p map[string]string) (token.EnrollRequest, error) {
	er := token.EnrollRequest{
		Serial:      p["serial"],
		Type:        strings.ToLower(strings.TrimSpace(p["type"])),
		Hashlib:     otp.Algorithm(strings.ToLower(p["hashlib"])),
		Description: p["description"],
		Realm:       p["realm"],
		Owner:       p["user"],
	}
	if er.Type == "" {
		er.Type = otp.TypeHOTP
	}
	if k := p["otpkey"]; k != "" {
		secret, err := hex.DecodeString(k)
		if err != nil {
			return er, errors.ErrInvalidParameter.WithDetail("otpkey must be hex")
		}
		er.Secret = secret
	}
	var err error
	if er.OTPLen, err = intParam(p, "otplen"); err != nil {
		return er, err
	}
	if er.TimeStep, err = intParam(p, "timeStep"); err != nil {
		return er, err
	}
	if er.MaxFail, err = intParam(p, "maxfail"); err != nil {
		return er, err
	}
	return er, nil
}

type tokenDTO struct {
	Serial      string            `json:"serial"`
	Type        string            `json:"tokentype"`
	Description string            `json:"description"`
	Active      bool              `json:"active"`
	Locked      bool              `json:"locked"`
	OTPLen      int               `json:"otplen"`
	Count       int64             `json:"count"`
	CountWindow int               `json:"count_window"`
	FailCount   int               `json:"failcount"`
	MaxFail     int               `json:"maxfail"`
	Realm       string            `json:"realm,omitempty"`
	Owner       string            `json:"user,omitempty"`
	Info        map[string]string `json:"info"`
}

func (a *API) tokenGet(w http.ResponseWriter, r *http.Request) {
	tok, err := a.d.Tokens.Get(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeValue(w, tokenDTO{
		Serial:      tok.Serial,
		Type:        tok.Type,
		Description: tok.Description,
		Active:      tok.Active,
		Locked:      tok.Locked(),
		OTPLen:      tok.OTPLen,
		Count:       tok.Count,
		CountWindow: tok.CountWindow,
		FailCount:   tok.FailCount,
		MaxFail:     tok.MaxFail,
		Realm:       tok.Realm,
		Owner:       tok.Owner,
		Info:        tok.Info,
	})
}
