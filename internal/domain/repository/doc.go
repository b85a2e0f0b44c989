// Package repository define los contratos de persistencia del dominio.
//
// Las interfaces son independientes del almacenamiento (memoria, PostgreSQL).
// Las implementaciones viven en internal/store/memory e internal/store/pg.
//
//	┌──────────────────────────────────────────────────────┐
//	│   token / challenge / audit / event / scheduler      │
//	└──────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌──────────────────────────────────────────────────────┐
//	│            domain/repository (interfaces)            │
//	└──────────────────────────────────────────────────────┘
//	                        │
//	               ┌────────┴────────┐
//	               ▼                 ▼
//	        store/memory         store/pg
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - ErrNotFound cuando la fila no existe (salvo que se documente otra cosa).
//   - Los errores de dominio están en errors.go.
package repository
