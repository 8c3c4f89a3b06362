package crypto

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
)

const (
	macSize    = sha256.Size
	macPurpose = "biolock cbc-hmac-sha256"
)

var (
	ErrCipherConsumed = errors.New("cipher already used")
	ErrCipherLocked   = errors.New("cipher locked until the user authenticates")
)

// KeyMaterial is a store-backed key that can build ciphers without handing
// out its raw bytes.
type KeyMaterial interface {
	NewBlock() (cipher.Block, error)
	Subkey(purpose string, size int) ([]byte, error)
	Transformation() Transformation
	// UserAuthenticationRequired keys only yield locked ciphers
	UserAuthenticationRequired() bool
}

// Cipher is a primed, single-use cipher bound to one key, one mode and one IV.
//
// CBC output carries an HMAC-SHA256 tag over iv || ciphertext so that a
// ciphertext paired with the wrong IV is rejected instead of decrypting to
// garbage. GCM output is authenticated natively.
type Cipher struct {
	mu             sync.Mutex
	transformation Transformation
	mode           Mode
	block          cipher.Block
	macKey         []byte
	iv             []byte
	locked         bool
	consumed       bool
}

// NewCipher initializes a cipher. In the encrypt direction iv must be nil and
// a fresh one is generated; in the decrypt direction iv is required.
func NewCipher(key KeyMaterial, mode Mode, iv []byte) (*Cipher, error) {
	t := key.Transformation()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	block, err := key.NewBlock()
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}

	if mode.Encrypting() {
		if iv != nil {
			return nil, fmt.Errorf("caller supplied IV in %s mode", mode)
		}
		iv, err = GenerateRandom(t.IVSize())
		if err != nil {
			return nil, err
		}
	} else {
		if len(iv) != t.IVSize() {
			return nil, fmt.Errorf("IV must be %d bytes, got %d", t.IVSize(), len(iv))
		}
		iv = append([]byte(nil), iv...)
	}

	c := &Cipher{
		transformation: t,
		mode:           mode,
		block:          block,
		iv:             iv,
		locked:         key.UserAuthenticationRequired(),
	}

	if t.BlockMode == BlockModeCBC {
		c.macKey, err = key.Subkey(macPurpose, macSize)
		if err != nil {
			return nil, fmt.Errorf("failed to derive MAC key: %w", err)
		}
	}

	return c, nil
}

// IV returns a copy of the initialization vector the cipher was primed with
func (c *Cipher) IV() []byte {
	return append([]byte(nil), c.iv...)
}

// Mode returns the mode the cipher was initialized for
func (c *Cipher) Mode() Mode {
	return c.mode
}

// Transformation returns the cipher's transformation
func (c *Cipher) Transformation() Transformation {
	return c.transformation
}

// Unlock releases a cipher created locked
func (c *Cipher) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = false
}

// Locked reports whether DoFinal still waits for Unlock
func (c *Cipher) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// DoFinal applies the transform once. Any further call fails with
// ErrCipherConsumed. A locked cipher fails with ErrCipherLocked and stays
// usable.
func (c *Cipher) DoFinal(input []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consumed {
		return nil, ErrCipherConsumed
	}
	if c.locked {
		return nil, ErrCipherLocked
	}
	c.consumed = true
	defer c.destroy()

	switch {
	case c.transformation.BlockMode == BlockModeGCM && c.mode.Encrypting():
		return c.sealGCM(input)
	case c.transformation.BlockMode == BlockModeGCM:
		return c.openGCM(input)
	case c.mode.Encrypting():
		return c.encryptCBC(input), nil
	default:
		return c.decryptCBC(input)
	}
}

// Destroy zeroes key-derived state without using the cipher
func (c *Cipher) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumed = true
	c.destroy()
}

func (c *Cipher) destroy() {
	ClearBytes(c.macKey)
	c.block = nil
}

func (c *Cipher) encryptCBC(plaintext []byte) []byte {
	padded := PadPKCS7(plaintext, c.block.BlockSize())
	out := make([]byte, len(padded), len(padded)+macSize)
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	ClearBytes(padded)
	return append(out, c.tag(out)...)
}

func (c *Cipher) decryptCBC(input []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(input) < bs+macSize || (len(input)-macSize)%bs != 0 {
		return nil, ErrInvalidCiphertext
	}

	ciphertext, tag := input[:len(input)-macSize], input[len(input)-macSize:]
	if !hmac.Equal(tag, c.tag(ciphertext)) {
		return nil, ErrAuthFailed
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(padded, ciphertext)
	plaintext, err := UnpadPKCS7(padded, bs)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

func (c *Cipher) tag(ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(c.iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func (c *Cipher) sealGCM(plaintext []byte) ([]byte, error) {
	gcm, err := cipher.NewGCM(c.block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm.Seal(nil, c.iv, plaintext, nil), nil
}

func (c *Cipher) openGCM(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < TagSize {
		return nil, ErrInvalidCiphertext
	}
	gcm, err := cipher.NewGCM(c.block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, c.iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
