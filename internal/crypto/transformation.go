package crypto

import (
	"crypto/aes"
	"errors"
	"fmt"
)

const (
	AlgorithmAES = "AES"

	BlockModeCBC = "CBC"
	BlockModeGCM = "GCM"

	PaddingPKCS7 = "PKCS7Padding"
	PaddingNone  = "NoPadding"
)

var ErrUnsupportedTransformation = errors.New("unsupported transformation")

// Transformation names a cipher the way "AES/CBC/PKCS7Padding" does
type Transformation struct {
	Algorithm string
	BlockMode string
	Padding   string
}

func (t Transformation) String() string {
	return t.Algorithm + "/" + t.BlockMode + "/" + t.Padding
}

// Validate rejects combinations the cipher cannot build
func (t Transformation) Validate() error {
	switch {
	case t.Algorithm != AlgorithmAES:
	case t.BlockMode == BlockModeCBC && t.Padding == PaddingPKCS7:
		return nil
	case t.BlockMode == BlockModeGCM && t.Padding == PaddingNone:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedTransformation, t)
}

// IVSize returns the length of the IV the cipher generates
func (t Transformation) IVSize() int {
	if t.BlockMode == BlockModeGCM {
		return NonceSize
	}
	return aes.BlockSize
}
