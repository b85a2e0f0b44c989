package token

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
	"github.com/dropDatabas3/tokenguard/internal/otp"
	"github.com/dropDatabas3/tokenguard/internal/validation"
)

var serialPrefix = map[string]string{
	otp.TypeHOTP:    "OATH",
	otp.TypeTOTP:    "TOTP",
	otp.TypeYubikey: "UBAM",
}

// EnrollRequest describe un token nuevo. Serial y Secret vacíos se generan.
type EnrollRequest struct {
	Serial      string
	Type        string
	Secret      []byte
	OTPLen      int
	Hashlib     otp.Algorithm
	TimeStep    int
	Description string
	Realm       string
	Owner       string
	MaxFail     int
}

// EnrollResult retorna el secreto en claro una sola vez.
type EnrollResult struct {
	Serial string
	Secret []byte
	// URL otpauth:// para hotp/totp; vacío para yubikey.
	URL string
}

// Enroll crea el token con el secreto cifrado.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	if _, ok := otp.Lookup(req.Type); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
	if req.Serial == "" {
		req.Serial = newSerial(req.Type)
	} else if !validation.ValidSerial(req.Serial) {
		return nil, fmt.Errorf("token: invalid serial %q: %w", req.Serial, repository.ErrInvalidInput)
	}
	if req.Realm != "" && !validation.ValidRealm(req.Realm) {
		return nil, fmt.Errorf("token: invalid realm %q: %w", req.Realm, repository.ErrInvalidInput)
	}
	if req.OTPLen <= 0 {
		req.OTPLen = 6
	}
	if req.Hashlib == "" {
		req.Hashlib = otp.SHA1
	}
	if req.MaxFail <= 0 {
		req.MaxFail = s.opts.MaxFail
	}

	res := &EnrollResult{Serial: req.Serial}
	info := map[string]string{InfoHashlib: string(req.Hashlib)}

	switch req.Type {
	case otp.TypeYubikey:
		if len(req.Secret) == 0 {
			req.Secret = make([]byte, 16)
			if _, err := io.ReadFull(rand.Reader, req.Secret); err != nil {
				return nil, err
			}
		}
		if len(req.Secret) != 16 {
			return nil, fmt.Errorf("token: yubikey AES key must be 16 bytes: %w", repository.ErrInvalidInput)
		}
		req.OTPLen = 32 + 12
	default:
		key, err := s.provisioningKey(req)
		if err != nil {
			return nil, err
		}
		secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(key.Secret())
		if err != nil {
			return nil, err
		}
		req.Secret = secret
		res.URL = key.URL()
		if req.Type == otp.TypeTOTP {
			step := req.TimeStep
			if step <= 0 {
				step = s.opts.TOTPStep
			}
			info[InfoTimeStep] = strconv.Itoa(step)
		}
	}
	res.Secret = req.Secret

	sealed, err := s.box.Seal(req.Secret, req.Serial)
	if err != nil {
		return nil, err
	}
	err = s.tokens.Create(ctx, &repository.Token{
		Serial:      req.Serial,
		Type:        req.Type,
		Description: req.Description,
		SecretEnc:   sealed,
		OTPLen:      req.OTPLen,
		MaxFail:     req.MaxFail,
		Active:      true,
		Realm:       req.Realm,
		Owner:       req.Owner,
		Info:        info,
		CreatedAt:   s.opts.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	logger.From(ctx).Info("token enrolled", logger.Serial(req.Serial), logger.TokenType(req.Type))
	if l := audit.From(ctx); l != nil {
		l.Log(audit.Fields{
			audit.KeySerial:    req.Serial,
			audit.KeyTokenType: req.Type,
			audit.KeyRealm:     req.Realm,
			audit.KeyUser:      req.Owner,
			audit.KeySuccess:   true,
		})
	}
	return res, nil
}

// provisioningKey arma la clave otpauth; si no hay secreto, la librería lo genera.
func (s *Service) provisioningKey(req EnrollRequest) (*potp.Key, error) {
	account := req.Owner
	if account == "" {
		account = req.Serial
	}
	alg := potp.AlgorithmSHA1
	switch req.Hashlib {
	case otp.SHA256:
		alg = potp.AlgorithmSHA256
	case otp.SHA512:
		alg = potp.AlgorithmSHA512
	}
	digits := potp.Digits(req.OTPLen)

	if req.Type == otp.TypeTOTP {
		step := req.TimeStep
		if step <= 0 {
			step = s.opts.TOTPStep
		}
		return totp.Generate(totp.GenerateOpts{
			Issuer:      s.opts.Issuer,
			AccountName: account,
			Period:      uint(step),
			SecretSize:  20,
			Secret:      req.Secret,
			Digits:      digits,
			Algorithm:   alg,
		})
	}
	return hotp.Generate(hotp.GenerateOpts{
		Issuer:      s.opts.Issuer,
		AccountName: account,
		SecretSize:  20,
		Secret:      req.Secret,
		Digits:      digits,
		Algorithm:   alg,
	})
}

func newSerial(tokenType string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return serialPrefix[tokenType] + strings.ToUpper(id[:8])
}
