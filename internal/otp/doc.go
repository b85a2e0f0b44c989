// Package otp verifica códigos de un solo uso contra el estado de un token.
//
// Es cómputo puro: no hace I/O ni persiste nada. El llamador (internal/token)
// decide qué hacer con el Result (avanzar el contador, sumar fallos, fijar uid).
//
//	┌──────────┐   Check(value, State)   ┌────────┐
//	│ token    │ ──────────────────────▶ │ Codec  │ ──▶ Result{Outcome, Counter}
//	│ service  │                         └────────┘
//	└──────────┘
//
// Familias soportadas: hotp (RFC 4226), totp (RFC 6238) y yubikey (modo AES).
package otp
