package api

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/http/errors"
	"github.com/dropDatabas3/tokenguard/internal/token"
)

// validateCheck: POST /validate/check {serial, pass, transaction_id}.
// Un OTP incorrecto es status=true, value=false; solo fallas internas son error.
func (a *API) validateCheck(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	a.wrap(w, r, EventValidateCheck, eventRequest(r, params), func(ctx context.Context, req *event.Request) (*event.Response, error) {
		serial := req.Param("serial")
		pass, hasPass := req.Params["pass"]
		if serial == "" || !hasPass {
			return nil, errors.ErrMissingFields.WithDetail("serial and pass are required")
		}
		res, err := a.d.Tokens.Check(ctx, token.CheckRequest{
			Serial:        serial,
			Pass:          pass,
			TransactionID: req.Param("transaction_id"),
		})
		if err != nil {
			return nil, err
		}
		req.Serial, req.TokenType = res.Serial, res.TokenType

		detail := map[string]any{"message": res.Message, "serial": res.Serial, "type": res.TokenType}
		if res.Value {
			detail["message"] = "matching 1 tokens"
		}
		if res.TransactionID != "" {
			detail["transaction_id"] = res.TransactionID
		}
		return event.NewResponse(true, res.Value, detail), nil
	})
}

// triggerChallenge: POST /validate/triggerchallenge {serial}. value es la
// cantidad de challenges creados.
func (a *API) triggerChallenge(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	a.wrap(w, r, EventValidateTriggerChallenge, eventRequest(r, params), func(ctx context.Context, req *event.Request) (*event.Response, error) {
		serial := req.Param("serial")
		if serial == "" {
			return nil, errors.ErrMissingFields.WithDetail("serial is required")
		}
		tok, err := a.d.Tokens.Get(ctx, serial)
		if err != nil {
			return nil, err
		}
		req.TokenType = tok.Type

		txid, err := a.d.Tokens.TriggerChallenge(ctx, serial, req.Param("data"))
		if err != nil {
			return nil, err
		}
		return event.NewResponse(true, 1, map[string]any{
			"transaction_id": txid,
			"message":        "please enter otp",
			"serial":         tok.Serial,
			"type":           tok.Type,
		}), nil
	})
}
