package otp

import (
	"crypto/aes"
	"encoding/binary"
	"encoding/hex"
)

const (
	yubikeyPayloadLen = 32 // modhex chars: 16 bytes cifrados
	yubikeyUIDLen     = 6
)

// Yubikey verifica OTPs yubikey en modo AES.
type Yubikey struct{}

func (Yubikey) Type() string { return TypeYubikey }

// Check valida prefijo+payload: modhex, AES, CRC, uid fijado y contador.
func (Yubikey) Check(value string, st State) Result {
	if len(value) < yubikeyPayloadLen {
		return failed(NoMatch)
	}
	prefix := value[:len(value)-yubikeyPayloadLen]
	enc, err := ModhexDecode(value[len(value)-yubikeyPayloadLen:])
	if err != nil {
		return failed(MalformedInput)
	}

	block, err := aes.NewCipher(st.Secret)
	if err != nil || block.BlockSize() != len(enc) {
		return failed(MalformedInput)
	}
	plain := make([]byte, len(enc))
	block.Decrypt(plain, enc)

	if CRC16(plain) != crcResidual {
		return failed(ChecksumFailure)
	}

	tok := parseYubikeyBlock(plain)
	if st.PinnedUID != "" && st.PinnedUID != tok.uid {
		return Result{Outcome: WrongToken, UID: tok.uid, Prefix: prefix}
	}
	if tok.counter() < st.Counter {
		return Result{Outcome: NoMatch, UID: tok.uid, Prefix: prefix}
	}
	return Result{Outcome: Match, Counter: tok.counter(), UID: tok.uid, Prefix: prefix}
}

// yubikeyBlock es el bloque de 16 bytes descifrado.
type yubikeyBlock struct {
	uid       string // 12 hex chars
	usage     uint16 // little-endian en el bloque
	timestamp uint32 // 24 bits
	session   uint8
	random    uint16
	crc       uint16
}

func parseYubikeyBlock(p []byte) yubikeyBlock {
	return yubikeyBlock{
		uid:       hex.EncodeToString(p[:yubikeyUIDLen]),
		usage:     binary.LittleEndian.Uint16(p[6:8]),
		timestamp: uint32(p[8]) | uint32(p[9])<<8 | uint32(p[10])<<16,
		session:   p[11],
		random:    binary.LittleEndian.Uint16(p[12:14]),
		crc:       binary.LittleEndian.Uint16(p[14:16]),
	}
}

// counter reensambla usage||session.
func (b yubikeyBlock) counter() int64 {
	return int64(b.usage)<<8 | int64(b.session)
}

// EncodeYubikey arma un OTP yubikey válido (usado por tests y el CLI de enrolamiento).
func EncodeYubikey(key []byte, prefix string, uid []byte, usage uint16, session uint8, timestamp uint32, random uint16) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plain := make([]byte, 16)
	copy(plain[:yubikeyUIDLen], uid)
	binary.LittleEndian.PutUint16(plain[6:8], usage)
	plain[8] = byte(timestamp)
	plain[9] = byte(timestamp >> 8)
	plain[10] = byte(timestamp >> 16)
	plain[11] = session
	binary.LittleEndian.PutUint16(plain[12:14], random)
	binary.LittleEndian.PutUint16(plain[14:16], ^CRC16(plain[:14]))

	enc := make([]byte, 16)
	block.Encrypt(enc, plain)
	return prefix + ModhexEncode(enc), nil
}
