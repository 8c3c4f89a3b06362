// Package core gates symmetric encryption behind a sensor check.
//
// An Authenticator runs each request as an Attempt:
//   - AwaitingKeyMaterial: take the per-alias lock, get or create the key and
//     prime a fresh cipher (the IV ledger is written for encrypt, read for
//     decrypt). Failures here end the attempt with ErrorInitializationFailed
//     before the sensor is touched.
//   - AwaitingSensor: hand the session to the sensor and wait for its
//     callbacks. Help and not-recognized signals are delivered as Help; the
//     first error or success resolves the attempt.
//   - Resolved: on success the session cipher is unlocked and the Algorithm
//     applies it once. The default Base64 algorithm prints ciphertext as
//     standard base64.
//   - Cancelled: the context was cancelled. The session is discarded and late
//     callbacks are dropped; no result is delivered.
//
// Native sensor codes map onto the closed ErrorKind and HelpKind sets through
// ErrorKindFor and HelpKindFor. Unmapped codes fall back to ErrorUnknown and
// HelpFailure.
package core
