// Package validation define el formato aceptado para identificadores que
// llegan por la API y terminan como filtros del log de auditoría.
package validation

import "regexp"

// Serial: empieza con alfanumérico, sigue [A-Za-z0-9_.:-], hasta 40 chars.
// Ej. válidos: OATH0001A2B3, TOTP-lab.7, UBAM:12. Inválidos: "", -x, "a b", "x;y".
var serialRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,39}$`)

// Realm: minúsculas, empieza y termina con [a-z0-9], medio [a-z0-9_.-], 1..64.
var realmRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_\.-]{0,62}[a-z0-9])?$`)

// ValidSerial reporta si s sirve como serial de token.
func ValidSerial(s string) bool {
	return serialRe.MatchString(s)
}

// ValidRealm reporta si s sirve como nombre de realm. Vacío no es válido;
// el caller decide si el realm es opcional.
func ValidRealm(s string) bool {
	return realmRe.MatchString(s)
}
