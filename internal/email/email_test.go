package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	data := map[string]any{"serial": "HOTP0001", "user": "<alice>"}
	subject, text, html, err := Render("Token {{.serial}}", "Hola {{.user}}", "<b>{{.user}}</b>", data)
	require.NoError(t, err)
	assert.Equal(t, "Token HOTP0001", subject)
	assert.Equal(t, "Hola <alice>", text)
	assert.Equal(t, "<b>&lt;alice&gt;</b>", html)

	_, _, _, err = Render("{{.broken", "", "", data)
	assert.Error(t, err)
}

func TestDiagnoseSMTP(t *testing.T) {
	cases := map[string]string{
		"dial tcp 127.0.0.1:25: connection refused": "dial",
		"535 5.7.8 authentication failed":           "auth",
		"550 5.1.1 user unknown":                    "invalid_recipient",
		"421 try again later":                       "rate_limited",
		"something odd":                             "unknown",
	}
	for msg, code := range cases {
		assert.Equal(t, code, DiagnoseSMTP(errors.New(msg)).Code, msg)
	}
}

func TestSendNotConfigured(t *testing.T) {
	err := NewSMTPSender(Config{}).Send(context.Background(), "a@b.c", "s", "", "t")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
