// Package crypto provides cryptographic operations for biolock.
//
// Session ciphers (Cipher, Provider):
//   - AES/CBC/PKCS7Padding with an HMAC-SHA256 tag over iv || ciphertext,
//     keyed by an HKDF subkey of the stored key
//   - AES/GCM/NoPadding with a 12-byte nonce used as the IV
//   - single use: DoFinal runs once and zeroes derived key state
//
// Key record wrapping for the password protected store (KDF, Encryptor):
//   - 32-byte key derived from the store password via PBKDF2-HMAC-SHA256
//   - AES-256-GCM with a random 12-byte nonce per record, alias as
//     associated data
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with wrapping operations
package crypto
