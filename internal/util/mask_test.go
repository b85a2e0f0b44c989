package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j…@e….com", MaskEmail(" John@Example.com "))
	assert.Equal(t, "a@b.io", MaskEmail("a@b.io"))
	assert.Equal(t, "***", MaskEmail("bob"))
	assert.Equal(t, "", MaskEmail(""))
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://tg:xxxxx@db:5432/tokenguard", MaskDSN("postgres://tg:hunter2@db:5432/tokenguard"))
	assert.Equal(t, "h…x", MaskDSN("host=db password=x"))
}
