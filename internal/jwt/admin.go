// Package jwt emite y valida los access tokens de administrador de la API.
package jwt

import (
	"errors"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Roles reconocidos.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrInvalidToken  = errors.New("invalid_jwt")
	ErrInvalidIssuer = errors.New("invalid_issuer")
	ErrNoSecret      = errors.New("jwt: signing secret not configured")
)

// AdminClaims son los claims del access token.
type AdminClaims struct {
	Role  string `json:"role"`
	Realm string `json:"realm,omitempty"`
	jwtv5.RegisteredClaims
}

// IsAdmin indica si el token tiene rol admin.
func (c *AdminClaims) IsAdmin() bool { return strings.EqualFold(c.Role, RoleAdmin) }

// Issuer firma y valida tokens HS256 con un secreto compartido.
type Issuer struct {
	Iss       string
	secret    []byte
	AccessTTL time.Duration
	// Leeway tolera desfasajes de reloj en exp/nbf.
	Leeway time.Duration
	now    func() time.Time
}

func NewIssuer(iss string, secret []byte) *Issuer {
	return &Issuer{
		Iss:       iss,
		secret:    secret,
		AccessTTL: 15 * time.Minute,
		Leeway:    30 * time.Second,
		now:       time.Now,
	}
}

// Issue emite un token para sub con el rol dado. ttl 0 usa AccessTTL.
func (i *Issuer) Issue(sub, role, realm string, ttl time.Duration) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = i.AccessTTL
	}
	now := i.now().UTC()
	exp := now.Add(ttl)
	claims := AdminClaims{
		Role:  role,
		Realm: realm,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   sub,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse valida firma, iss, exp y nbf y retorna los claims.
func (i *Issuer) Parse(token string) (*AdminClaims, error) {
	if len(i.secret) == 0 {
		return nil, ErrNoSecret
	}
	var claims AdminClaims
	tok, err := jwtv5.ParseWithClaims(token, &claims,
		func(*jwtv5.Token) (any, error) { return i.secret, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithLeeway(i.Leeway),
		jwtv5.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if i.Iss != "" && claims.Issuer != i.Iss {
		return nil, ErrInvalidIssuer
	}
	return &claims, nil
}
