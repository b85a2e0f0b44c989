// Package token implementa la validación de tokens sobre los codecs OTP,
// el store de challenges y el ledger de auditoría del request.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/challenge"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
	"github.com/dropDatabas3/tokenguard/internal/otp"
	"github.com/dropDatabas3/tokenguard/internal/security/secretbox"
)

// Claves del mapa info del token.
const (
	InfoHashlib       = "hashlib"
	InfoTimeStep      = "timeStep"
	InfoYubikeyUID    = "yubikey.uid"
	InfoYubikeyPrefix = "yubikey.prefix"
)

// MessageFailed es el único mensaje de falla visible hacia afuera.
const MessageFailed = "authentication failed"

var (
	// ErrTokenNotFound envuelve repository.ErrNotFound para tokens.
	ErrTokenNotFound = fmt.Errorf("token: %w", repository.ErrNotFound)
	// ErrTokenDisabled indica un token inactivo.
	ErrTokenDisabled = errors.New("token: disabled")
	// ErrUnknownType indica un tipo de token sin codec.
	ErrUnknownType = errors.New("token: unknown type")
)

// Options configura el Service.
type Options struct {
	HOTPWindow        int
	TOTPStep          int
	TOTPWindow        int
	MaxFail           int
	ChallengeValidity time.Duration
	// Issuer se usa en las URLs otpauth de enrolamiento.
	Issuer string
	Now    func() time.Time
}

func (o *Options) defaults() {
	if o.HOTPWindow <= 0 {
		o.HOTPWindow = 10
	}
	if o.TOTPStep <= 0 {
		o.TOTPStep = 30
	}
	if o.TOTPWindow <= 0 {
		o.TOTPWindow = 1
	}
	if o.MaxFail <= 0 {
		o.MaxFail = 10
	}
	if o.ChallengeValidity <= 0 {
		o.ChallengeValidity = 120 * time.Second
	}
	if o.Issuer == "" {
		o.Issuer = "tokenguard"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service valida y enrola tokens.
type Service struct {
	tokens     repository.TokenRepository
	challenges *challenge.Store
	box        *secretbox.Box
	opts       Options
}

// NewService crea el servicio.
func NewService(tokens repository.TokenRepository, challenges *challenge.Store, box *secretbox.Box, opts Options) *Service {
	opts.defaults()
	return &Service{tokens: tokens, challenges: challenges, box: box, opts: opts}
}

// CheckRequest es un intento de autenticación.
type CheckRequest struct {
	Serial        string
	Pass          string
	TransactionID string
}

// CheckResult es lo que ve el llamador. Outcome y Code quedan para logs
// y auditoría; Message siempre es genérico.
type CheckResult struct {
	Value         bool
	Serial        string
	TokenType     string
	TransactionID string
	Message       string

	Outcome otp.Outcome
	Code    int64
	Detail  string
}

func rejected(serial, detail string) *CheckResult {
	return &CheckResult{Serial: serial, Message: MessageFailed, Outcome: otp.NoMatch, Code: -1, Detail: detail}
}

// Check valida Pass contra el token. Las fallas de autenticación son
// resultados, no errores; error solo ante fallas de storage o cifrado.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	log := logger.From(ctx).With(logger.Component("token"), logger.Serial(req.Serial))
	res, err := s.check(ctx, req)
	if err != nil {
		log.Error("token check failed", logger.Err(err))
		s.audit(ctx, &CheckResult{Serial: req.Serial, Detail: err.Error()})
		return nil, err
	}
	metrics.OTPChecks.WithLabelValues(labelOr(res.TokenType, "unknown"), res.Outcome.String()).Inc()
	log.Info("token check",
		logger.TokenType(res.TokenType),
		logger.Outcome(res.Outcome.String()),
		logger.Counter(res.Code),
		logger.Bool("value", res.Value))
	s.audit(ctx, res)
	return res, nil
}

func (s *Service) check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	tok, err := s.tokens.Get(ctx, req.Serial)
	if repository.IsNotFound(err) {
		return rejected(req.Serial, "no token found"), nil
	}
	if err != nil {
		return nil, err
	}

	base := rejected(tok.Serial, "")
	base.TokenType = tok.Type
	base.TransactionID = req.TransactionID

	if !tok.Active {
		base.Detail = "token disabled"
		return base, nil
	}
	if tok.Locked() {
		base.Detail = "failcounter exceeded"
		return base, nil
	}

	now := s.opts.Now()
	if req.TransactionID != "" {
		ch, err := s.challenges.Get(ctx, req.TransactionID)
		if err != nil {
			return nil, err
		}
		if ch == nil || ch.Serial != tok.Serial || !ch.IsValid(now) {
			base.Detail = "challenge unknown or expired"
			return base, nil
		}
		if ch.OTPValid {
			base.Detail = "challenge already answered"
			return base, nil
		}
	}

	codec, ok := otp.Lookup(tok.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tok.Type)
	}
	secret, err := s.box.Open(tok.SecretEnc, tok.Serial)
	if err != nil {
		return nil, fmt.Errorf("token: decrypt secret: %w", err)
	}

	r := codec.Check(req.Pass, s.state(tok, secret, now))
	base.Outcome = r.Outcome
	base.Code = r.Code()

	if r.OK() {
		// El contador guardado es el próximo aceptable.
		err := s.tokens.UpdateCounter(ctx, tok.Serial, tok.Count, r.Counter+1)
		if repository.IsPreconditionFailed(err) {
			base.Outcome = otp.NoMatch
			base.Code = -1
			base.Detail = "counter changed concurrently"
			return base, s.fail(ctx, tok, req.TransactionID)
		}
		if err != nil {
			return nil, err
		}
		if err := s.tokens.ResetFailCount(ctx, tok.Serial); err != nil {
			return nil, err
		}
		if tok.Type == otp.TypeYubikey && tok.InfoValue(InfoYubikeyUID) == "" {
			if err := s.pinYubikey(ctx, tok.Serial, r); err != nil {
				return nil, err
			}
		}
		if req.TransactionID != "" {
			if err := s.challenges.RecordResponse(ctx, req.TransactionID, true, true); err != nil {
				return nil, err
			}
		}
		base.Value = true
		base.Message = "matching 1 tokens"
		base.Detail = "matching counter " + strconv.FormatInt(r.Counter, 10)
		return base, nil
	}

	base.Detail = "otp check " + r.Outcome.String()
	return base, s.fail(ctx, tok, req.TransactionID)
}

func (s *Service) fail(ctx context.Context, tok *repository.Token, transactionID string) error {
	if _, err := s.tokens.IncFailCount(ctx, tok.Serial); err != nil {
		return err
	}
	if transactionID != "" {
		return s.challenges.RecordResponse(ctx, transactionID, true, false)
	}
	return nil
}

func (s *Service) pinYubikey(ctx context.Context, serial string, r otp.Result) error {
	if err := s.tokens.SetInfo(ctx, serial, InfoYubikeyUID, r.UID); err != nil {
		return err
	}
	if r.Prefix != "" {
		return s.tokens.SetInfo(ctx, serial, InfoYubikeyPrefix, r.Prefix)
	}
	return nil
}

func (s *Service) state(tok *repository.Token, secret []byte, now time.Time) otp.State {
	st := otp.State{
		Secret:    secret,
		Counter:   tok.Count,
		Window:    tok.CountWindow,
		Digits:    tok.OTPLen,
		Algorithm: otp.Algorithm(tok.InfoValue(InfoHashlib)),
		PinnedUID: tok.InfoValue(InfoYubikeyUID),
		Now:       now,
	}
	switch tok.Type {
	case otp.TypeTOTP:
		st.Step = s.opts.TOTPStep
		if v, err := strconv.Atoi(tok.InfoValue(InfoTimeStep)); err == nil && v > 0 {
			st.Step = v
		}
		if st.Window <= 0 {
			st.Window = s.opts.TOTPWindow
		}
	case otp.TypeHOTP:
		if st.Window <= 0 {
			st.Window = s.opts.HOTPWindow
		}
	}
	return st
}

// audit vuelca el resultado en el ledger del request, si hay uno.
func (s *Service) audit(ctx context.Context, res *CheckResult) {
	l := audit.From(ctx)
	if l == nil {
		return
	}
	f := audit.Fields{
		audit.KeySerial:    res.Serial,
		audit.KeyTokenType: res.TokenType,
		audit.KeySuccess:   res.Value,
	}
	if res.Detail != "" {
		f[audit.KeyInfo] = res.Detail
	}
	l.Log(f)
	if res.Outcome != otp.Match && res.TokenType != "" {
		l.AddToLog(audit.Fields{audit.KeyActionDetail: "code " + strconv.FormatInt(res.Code, 10)}, true)
	}
}

// TriggerChallenge crea un challenge para el token y retorna el transaction id.
func (s *Service) TriggerChallenge(ctx context.Context, serial string, data any) (string, error) {
	tok, err := s.tokens.Get(ctx, serial)
	if repository.IsNotFound(err) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}
	if !tok.Active {
		return "", ErrTokenDisabled
	}
	txid, err := s.challenges.Create(ctx, tok.Serial, "please enter otp", data, s.opts.ChallengeValidity)
	if err != nil {
		return "", err
	}
	if l := audit.From(ctx); l != nil {
		l.Log(audit.Fields{
			audit.KeySerial:    tok.Serial,
			audit.KeyTokenType: tok.Type,
			audit.KeySuccess:   true,
			audit.KeyInfo:      "challenge triggered",
		})
	}
	return txid, nil
}

// Get expone el token (sin descifrar el secreto).
func (s *Service) Get(ctx context.Context, serial string) (*repository.Token, error) {
	tok, err := s.tokens.Get(ctx, serial)
	if repository.IsNotFound(err) {
		return nil, ErrTokenNotFound
	}
	return tok, err
}

func labelOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
