// Package storage provides the keyed record store that backs blazealert's
// durable state.
//
// Each record is an opaque byte value under a fixed string key (for example
// the alert feed or the push consent decision). Callers own the encoding.
//
// Drivers:
//   - "file": one JSON file per key, replaced atomically (tmp + rename)
//   - "sqlite": a single SQLite database (modernc.org/sqlite via sqlx)
//   - "memory": process-local map, lost on exit
package storage
