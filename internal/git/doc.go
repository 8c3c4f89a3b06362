// Package git checks that biolock's local files stay out of git.
//
// Checks performed for the file key store and the bbolt IV ledger:
//   - Whether the file is tracked by git (should not be)
//   - Whether the file is in .gitignore (should be)
package git
