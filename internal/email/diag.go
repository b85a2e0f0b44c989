package email

import (
	"errors"
	"net"
	"strings"
)

// SMTPDiag clasifica un error SMTP.
type SMTPDiag struct {
	Code      string // auth|tls|dial|timeout|rate_limited|invalid_recipient|rejected|network|unknown
	Temporary bool   // si conviene reintentar
}

// DiagnoseSMTP analiza un error SMTP por tipo y por texto.
func DiagnoseSMTP(err error) SMTPDiag {
	if err == nil {
		return SMTPDiag{Code: "unknown"}
	}
	s := strings.ToLower(err.Error())

	var ne net.Error
	isNet := errors.As(err, &ne)
	if (isNet && ne.Timeout()) || strings.Contains(s, "timeout") {
		return SMTPDiag{Code: "timeout", Temporary: true}
	}

	switch {
	case containsAny(s, "connection refused", "no such host", "dial tcp"):
		return SMTPDiag{Code: "dial", Temporary: true}
	case strings.Contains(s, "x509:"),
		strings.Contains(s, "tls") && containsAny(s, "handshake", "certificate"):
		return SMTPDiag{Code: "tls"}
	case containsAny(s, "5.7.8", "535", "username and password not accepted", "authentication failed"):
		return SMTPDiag{Code: "auth"}
	case containsAny(s, "4.7.0", "rate limit", "try again later", "temporarily unavailable", "451", "421"):
		return SMTPDiag{Code: "rate_limited", Temporary: true}
	case containsAny(s, "5.1.1", "user unknown", "mailbox not found"):
		return SMTPDiag{Code: "invalid_recipient"}
	case containsAny(s, "5.7.1", "message rejected", "policy", "dmarc", "spf"):
		return SMTPDiag{Code: "rejected"}
	case isNet:
		return SMTPDiag{Code: "network", Temporary: true}
	}
	return SMTPDiag{Code: "unknown"}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
