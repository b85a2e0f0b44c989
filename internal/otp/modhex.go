package otp

import (
	"errors"
	"strings"
)

const modhexAlphabet = "cbdefghijklnrtuv"

var errModhex = errors.New("otp: invalid modhex")

// ModhexDecode decodifica modhex (alfabeto yubikey) a bytes.
func ModhexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errModhex
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		hi := strings.IndexByte(modhexAlphabet, s[i])
		lo := strings.IndexByte(modhexAlphabet, s[i+1])
		if hi < 0 || lo < 0 {
			return nil, errModhex
		}
		out[i/2] = byte(hi<<4 | lo)
	}
	return out, nil
}

// ModhexEncode codifica bytes en modhex.
func ModhexEncode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteByte(modhexAlphabet[c>>4])
		sb.WriteByte(modhexAlphabet[c&0x0f])
	}
	return sb.String()
}
