package audit

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Algoritmos de firma (prefijo del valor guardado "<alg>:<hex>").
const (
	AlgRSA     = "rsa"
	AlgECDSA   = "ecdsa"
	AlgEd25519 = "ed25519"
)

var (
	// ErrNoPrivateKey indica un Signer de solo verificación.
	ErrNoPrivateKey = errors.New("audit: signer has no private key")
	errBadPEM       = errors.New("audit: no PEM block found")
)

// Signer firma y verifica entradas con un par de claves PEM.
type Signer struct {
	priv crypto.Signer
	pub  crypto.PublicKey
	alg  string
}

// NewSigner parsea las claves. privPEM puede ser nil (solo verificación);
// si pubPEM es nil se deriva de la privada.
func NewSigner(privPEM, pubPEM []byte) (*Signer, error) {
	s := &Signer{}
	if len(privPEM) > 0 {
		priv, err := parsePrivateKey(privPEM)
		if err != nil {
			return nil, err
		}
		s.priv = priv
		s.pub = priv.Public()
	}
	if len(pubPEM) > 0 {
		pub, err := parsePublicKey(pubPEM)
		if err != nil {
			return nil, err
		}
		s.pub = pub
	}
	if s.pub == nil {
		return nil, errors.New("audit: signer needs a private or public key")
	}
	alg, err := algorithmOf(s.pub)
	if err != nil {
		return nil, err
	}
	s.alg = alg
	return s, nil
}

// LoadSigner lee las claves desde archivos. Rutas vacías se ignoran.
func LoadSigner(privFile, pubFile string) (*Signer, error) {
	var privPEM, pubPEM []byte
	var err error
	if privFile != "" {
		if privPEM, err = os.ReadFile(privFile); err != nil {
			return nil, fmt.Errorf("audit: read private key: %w", err)
		}
	}
	if pubFile != "" {
		if pubPEM, err = os.ReadFile(pubFile); err != nil {
			return nil, fmt.Errorf("audit: read public key: %w", err)
		}
	}
	return NewSigner(privPEM, pubPEM)
}

// Algorithm retorna el algoritmo de la clave.
func (s *Signer) Algorithm() string { return s.alg }

// Sign firma msg y retorna "<alg>:<hex>".
func (s *Signer) Sign(msg string) (string, error) {
	if s == nil || s.priv == nil {
		return "", ErrNoPrivateKey
	}
	var (
		sig []byte
		err error
	)
	switch k := s.priv.(type) {
	case ed25519.PrivateKey:
		sig = ed25519.Sign(k, []byte(msg))
	case *rsa.PrivateKey:
		digest := sha256.Sum256([]byte(msg))
		sig, err = rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest[:])
	case *ecdsa.PrivateKey:
		digest := sha256.Sum256([]byte(msg))
		sig, err = ecdsa.SignASN1(rand.Reader, k, digest[:])
	default:
		err = fmt.Errorf("audit: unsupported key type %T", s.priv)
	}
	if err != nil {
		return "", err
	}
	return s.alg + ":" + hex.EncodeToString(sig), nil
}

// Verify chequea la firma. Cualquier problema (formato, algoritmo, clave) es false.
func (s *Signer) Verify(msg, signature string) bool {
	if s == nil || s.pub == nil {
		return false
	}
	alg, hexSig, ok := strings.Cut(signature, ":")
	if !ok || alg != s.alg {
		return false
	}
	sig, err := hex.DecodeString(hexSig)
	if err != nil || len(sig) == 0 {
		return false
	}
	switch k := s.pub.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(k, []byte(msg), sig)
	case *rsa.PublicKey:
		digest := sha256.Sum256([]byte(msg))
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig) == nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256([]byte(msg))
		return ecdsa.VerifyASN1(k, digest[:], sig)
	}
	return false
}

// GenerateKeyPair crea un par nuevo en PEM (PKCS#8 / PKIX).
func GenerateKeyPair(alg string) (privPEM, pubPEM []byte, err error) {
	var priv crypto.Signer
	switch alg {
	case AlgRSA:
		priv, err = rsa.GenerateKey(rand.Reader, 2048)
	case AlgECDSA:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case AlgEd25519, "":
		_, priv, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, nil, fmt.Errorf("audit: unknown algorithm %q", alg)
	}
	if err != nil {
		return nil, nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return nil, nil, err
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}

func parsePrivateKey(b []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errBadPEM
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if s, ok := k.(crypto.Signer); ok {
			return s, nil
		}
		return nil, fmt.Errorf("audit: unsupported private key %T", k)
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	return nil, errors.New("audit: unsupported private key format")
}

func parsePublicKey(b []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errBadPEM
	}
	if k, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return k, nil
	}
	return nil, errors.New("audit: unsupported public key format")
}

func algorithmOf(pub crypto.PublicKey) (string, error) {
	switch pub.(type) {
	case ed25519.PublicKey:
		return AlgEd25519, nil
	case *rsa.PublicKey:
		return AlgRSA, nil
	case *ecdsa.PublicKey:
		return AlgECDSA, nil
	}
	return "", fmt.Errorf("audit: unsupported public key %T", pub)
}
