package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	box, err := New(base64.StdEncoding.EncodeToString(testKey()))
	require.NoError(t, err)

	msg := []byte("12345678901234567890")
	ct, err := box.Seal(msg, "OATH0001")
	require.NoError(t, err)

	pt, err := box.Open(ct, "OATH0001")
	require.NoError(t, err)
	assert.Equal(t, msg, pt)
}

func TestOpen_DetectsTamper(t *testing.T) {
	box, err := New(hex.EncodeToString(testKey()))
	require.NoError(t, err)

	ct, err := box.Seal([]byte("top secret"), "")
	require.NoError(t, err)
	parts := strings.Split(ct, "|")
	require.Len(t, parts, 2)

	bs, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	bs[0] ^= 0x01
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	_, err = box.Open(corrupted, "")
	assert.Error(t, err)
}

func TestOpen_WrongAdditionalData(t *testing.T) {
	box, err := New(string(testKey()))
	require.NoError(t, err)

	ct, err := box.Seal([]byte("secret"), "OATH0001")
	require.NoError(t, err)

	_, err = box.Open(ct, "OATH0002")
	assert.Error(t, err)
}

func TestParseKey_RawBytesKeepWhitespace(t *testing.T) {
	raw := testKey()
	raw[31] = ' '
	k, err := ParseKey(string(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, k)
}

func TestParseKey_TrimsEncoded(t *testing.T) {
	k, err := ParseKey("  " + base64.StdEncoding.EncodeToString(testKey()) + "\n")
	require.NoError(t, err)
	assert.Equal(t, testKey(), k)
}

func TestParseKey_Invalid(t *testing.T) {
	_, err := ParseKey("short")
	assert.Error(t, err)
}
