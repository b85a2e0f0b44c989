// Package util reúne helpers chicos sin dependencias del dominio.
package util

import (
	"net/url"
	"strings"
)

// MaskEmail deja la primera letra del usuario y del dominio: "j…@e….com".
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		return MaskSecret(s)
	}
	local, domain := s[:at], s[at+1:]
	if len(local) > 1 {
		local = local[:1] + "…"
	}
	labels := strings.Split(domain, ".")
	if len(labels[0]) > 1 {
		labels[0] = labels[0][:1] + "…"
	}
	return local + "@" + strings.Join(labels, ".")
}

// MaskSecret muestra sólo los extremos de valores de más de 3 caracteres.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 3:
		return "***"
	}
	return s[:1] + "…" + s[len(s)-1:]
}

// MaskDSN oculta la password de un DSN tipo URL. Si no parsea lo enmascara entero.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return MaskSecret(dsn)
	}
	return u.Redacted()
}
