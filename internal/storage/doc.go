// Package storage provides a minimal persistence layer used by the item
// registry.
//
// It currently supports:
//   - Item state writes (latest value per item, to survive restarts)
//   - Loading all persisted states at startup
package storage
