package otp

import (
	"sort"
	"time"
)

// Tipos de token soportados.
const (
	TypeHOTP    = "hotp"
	TypeTOTP    = "totp"
	TypeYubikey = "yubikey"
)

// State es la foto del token que necesita un Codec.
type State struct {
	// Secret es la clave en claro (HMAC para hotp/totp, AES-128 para yubikey).
	Secret []byte
	// Counter es el próximo contador aceptable (último aceptado + 1).
	Counter int64
	// Window: cantidad de contadores (hotp) o pasos (totp) a tolerar.
	Window    int
	Digits    int
	Algorithm Algorithm
	// Step en segundos (totp).
	Step int
	// PinnedUID es el uid yubikey fijado en el primer uso ("" si no hay).
	PinnedUID string
	// Now es la hora de referencia (totp). Zero usa time.Now().
	Now time.Time
}

func (s State) digits() int {
	if s.Digits <= 0 {
		return 6
	}
	return s.Digits
}

func (s State) now() time.Time {
	if s.Now.IsZero() {
		return time.Now()
	}
	return s.Now
}

// Codec verifica un código presentado contra el estado del token.
type Codec interface {
	Type() string
	Check(value string, st State) Result
}

var codecs = map[string]Codec{
	TypeHOTP:    HOTP{},
	TypeTOTP:    TOTP{},
	TypeYubikey: Yubikey{},
}

// Lookup retorna el Codec de un tipo de token.
func Lookup(tokenType string) (Codec, bool) {
	c, ok := codecs[tokenType]
	return c, ok
}

// Types lista los tipos soportados, ordenados.
func Types() []string {
	out := make([]string, 0, len(codecs))
	for t := range codecs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
