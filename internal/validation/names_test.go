package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSerial(t *testing.T) {
	for _, s := range []string{"OATH0001A2B3", "TOTP-lab.7", "UBAM:12", "x", strings.Repeat("a", 40)} {
		assert.True(t, ValidSerial(s), s)
	}
	for _, s := range []string{"", "-lead", "a b", "semi;colon", "pct%", strings.Repeat("a", 41)} {
		assert.False(t, ValidSerial(s), s)
	}
}

func TestValidRealm(t *testing.T) {
	for _, s := range []string{"a", "corp", "eu-west.prod", "r_1", strings.Repeat("a", 64)} {
		assert.True(t, ValidRealm(s), s)
	}
	for _, s := range []string{"", "Corp", "trail-", ".lead", "bad space", strings.Repeat("a", 65)} {
		assert.False(t, ValidRealm(s), s)
	}
}
