package crypto

import (
	"bytes"
	"crypto/subtle"
	"errors"
)

var ErrInvalidPadding = errors.New("invalid padding")

// PadPKCS7 appends PKCS#7 padding up to a multiple of blockSize.
// A full block of padding is added when data is already aligned.
func PadPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// UnpadPKCS7 strips PKCS#7 padding
func UnpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, ErrInvalidPadding
	}

	want := bytes.Repeat([]byte{byte(n)}, n)
	if subtle.ConstantTimeCompare(data[len(data)-n:], want) != 1 {
		return nil, ErrInvalidPadding
	}
	return data[:len(data)-n], nil
}
