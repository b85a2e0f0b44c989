// Package audit implementa el log de auditoría append-only y firmado.
//
// Cada request obtiene su propio Ledger (Factory.New): acumula campos con
// Log/AddToLog y los persiste con FinalizeLog, que firma y vacía el acumulador.
// Se puede finalizar varias veces en un mismo request (una fila por acción).
//
//	Log(fields) ─┐
//	Log(fields) ─┼─▶ accumulator ──FinalizeLog──▶ backend(s)
//	AddPolicy() ─┘                                 ├─ sql     (lectura + escritura)
//	                                               ├─ logger  (solo escritura)
//	                                               ├─ kafka   (solo escritura)
//	                                               └─ container (fan-out)
//
// La verificación no previene manipulaciones: las detecta. Search anota cada
// fila con sig_check (firma) y missing_line (vecinos id-1 e id+1 presentes).
package audit
