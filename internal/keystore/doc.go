// Package keystore is the gateway to the protected container holding
// symmetric keys.
//
// A single Store strategy is chosen at startup:
//   - keyring: key records live in the OS keyring (Secret Service, Keychain,
//     Credential Manager)
//   - file: key records live in a bbolt file, wrapped with AES-256-GCM under a
//     key derived from the store password
//
// Raw key material never leaves this package. Callers receive *Key, which
// builds block ciphers and derives subkeys on their behalf.
package keystore
