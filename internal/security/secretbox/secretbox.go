// Package secretbox cifra los secretos de tokens en reposo.
//
// Formato: base64(nonce)|base64(ciphertext), con XChaCha20-Poly1305.
// El serial del token se usa como additional data, así un secreto
// copiado a otra fila no descifra.
package secretbox

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// EnvVar es la variable de entorno con la clave maestra (la lee config).
	EnvVar = "TOKENGUARD_SECRETBOX_KEY"

	sep = "|" // nonce|ciphertext (ambos en base64)
)

var errFormat = errors.New("secretbox: formato inválido, esperado base64(nonce)|base64(ciphertext)")

// Box cifra y descifra con una clave fija.
type Box struct {
	aead cipher.AEAD
}

// New crea un Box a partir de una clave en base64, hex o 32 bytes crudos.
func New(key string) (*Box, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return &Box{aead: aead}, nil
}

// ParseKey decodifica la clave probando base64 (std y raw), hex y bytes crudos.
// Los espacios alrededor sólo se recortan para las formas codificadas; una
// clave cruda se usa tal cual.
func ParseKey(key string) ([]byte, error) {
	enc := strings.TrimSpace(key)
	if b, err := base64.StdEncoding.DecodeString(enc); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(enc); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if len(enc) == 2*chacha20poly1305.KeySize {
		if b, err := hex.DecodeString(enc); err == nil {
			return b, nil
		}
	}
	if len(key) == chacha20poly1305.KeySize {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("secretbox: clave inválida (requiere %d bytes)", chacha20poly1305.KeySize)
}

// GenerateKey retorna una clave aleatoria en base64.
func GenerateKey() (string, error) {
	k := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

// Seal cifra plain ligado a ad (puede ser vacío).
func (b *Box) Seal(plain []byte, ad string) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, plain, []byte(ad))
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra un valor producido por Seal con el mismo ad.
func (b *Box) Open(sealed, ad string) ([]byte, error) {
	parts := strings.Split(sealed, sep)
	if len(parts) != 2 {
		return nil, errFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("secretbox: nonce inválido: esperado %d bytes, obtuvo %d", chacha20poly1305.NonceSizeX, len(nonce))
	}
	pt, err := b.aead.Open(nil, nonce, ct, []byte(ad))
	if err != nil {
		return nil, fmt.Errorf("secretbox: auth/decrypt: %w", err)
	}
	return pt, nil
}
