package core

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/illarion/biolock/internal/crypto"
)

var ErrInvalidEncoding = errors.New("ciphertext is not valid base64")

// Algorithm converts between caller text and cipher bytes. Both methods get
// an unlocked cipher and call DoFinal on it at most once.
type Algorithm interface {
	Encrypt(c *crypto.Cipher, plaintext string) (string, error)
	Decrypt(c *crypto.Cipher, ciphertext string) (string, error)
}

// Base64 encrypts the UTF-8 bytes of the text and encodes the ciphertext as
// standard base64. It is the default Algorithm.
type Base64 struct{}

func (Base64) Encrypt(c *crypto.Cipher, plaintext string) (string, error) {
	input := []byte(plaintext)
	defer crypto.ClearBytes(input)

	ciphertext, err := c.DoFinal(input)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (Base64) Decrypt(c *crypto.Cipher, ciphertext string) (string, error) {
	input, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}

	plaintext, err := c.DoFinal(input)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(plaintext)

	return string(plaintext), nil
}
