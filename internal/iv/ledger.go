// Package iv keeps the initialization vector produced by the last
// encrypt-direction cipher for each key alias, so the paired decrypt cipher
// can be primed with the same value.
//
// The default MemoryLedger lives only as long as the process: ciphertext
// produced before a restart cannot be decrypted afterwards. BoltLedger keeps
// the values in a bbolt file and must be selected explicitly.
package iv

// IV is a raw initialization vector
type IV = []byte

// Ledger stores one IV per alias. Last write wins; entries never expire.
// Implementations are safe for concurrent use.
type Ledger interface {
	Store(alias string, iv IV) error
	Retrieve(alias string) (IV, bool, error)
	Exists(alias string) (bool, error)
}
