// Package storage provides the BBolt database interface for biolock.
//
// Database structure uses three buckets:
//   - config: KDF parameters (salt, iterations), password check, timestamps
//   - keys: key records wrapped with the store password, by alias
//   - ivs: initialization vectors by alias (durable IV ledger)
//
// The same layout serves the password protected key store file and the
// durable IV ledger file; each file only fills the buckets it needs.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
