package otp

import (
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// Algorithm es el hash HMAC de hotp/totp.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

func (a Algorithm) lib() otp.Algorithm {
	switch strings.ToLower(string(a)) {
	case string(SHA256):
		return otp.AlgorithmSHA256
	case string(SHA512):
		return otp.AlgorithmSHA512
	}
	return otp.AlgorithmSHA1
}

// Generate calcula el código RFC 4226 para un contador.
func Generate(secret []byte, counter int64, digits int, alg Algorithm) (string, error) {
	if counter < 0 {
		return "", fmt.Errorf("otp: negative counter %d", counter)
	}
	if digits <= 0 {
		digits = 6
	}
	b32 := base32.StdEncoding.EncodeToString(secret)
	return hotp.GenerateCodeCustom(b32, uint64(counter), hotp.ValidateOpts{
		Digits:    otp.Digits(digits),
		Algorithm: alg.lib(),
	})
}

// searchWindow busca value en [from, to] y retorna el primer contador que coincide.
func searchWindow(value string, st State, from, to int64) Result {
	for c := from; c <= to; c++ {
		if c < 0 {
			continue
		}
		code, err := Generate(st.Secret, c, st.digits(), st.Algorithm)
		if err != nil {
			return failed(MalformedInput)
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(value)) == 1 {
			return matched(c)
		}
	}
	return failed(NoMatch)
}

// HOTP verifica códigos basados en contador.
type HOTP struct{}

func (HOTP) Type() string { return TypeHOTP }

// Check busca value en [Counter, Counter+Window].
func (HOTP) Check(value string, st State) Result {
	value = strings.TrimSpace(value)
	if len(value) != st.digits() {
		return failed(NoMatch)
	}
	return searchWindow(value, st, st.Counter, st.Counter+int64(st.Window))
}
