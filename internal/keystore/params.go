package keystore

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/illarion/biolock/internal/crypto"
)

// DefaultValidity is how long generated keys stay usable
const DefaultValidity = 20 * 365 * 24 * time.Hour

// Params configures key generation. Zero values are not meaningful; start
// from DefaultParams.
type Params struct {
	Alias                      string    `json:"alias" validate:"required"`
	Algorithm                  string    `json:"algorithm" validate:"required,oneof=AES"`
	KeySize                    int       `json:"key_size" validate:"keysize"`
	BlockMode                  string    `json:"block_mode" validate:"required,oneof=CBC GCM"`
	Padding                    string    `json:"padding" validate:"required,oneof=PKCS7Padding NoPadding"`
	UserAuthenticationRequired bool      `json:"user_authentication_required"`
	InvalidatedByEnrollment    bool      `json:"invalidated_by_enrollment"`
	Subject                    string    `json:"subject"`
	SerialNumber               int64     `json:"serial_number" validate:"gte=1"`
	NotBefore                  time.Time `json:"not_before" validate:"required"`
	NotAfter                   time.Time `json:"not_after" validate:"required,gtfield=NotBefore"`
}

// DefaultParams returns AES-256/CBC/PKCS7Padding params for alias
func DefaultParams(alias string) Params {
	now := time.Now()
	return Params{
		Alias:                      alias,
		Algorithm:                  crypto.AlgorithmAES,
		KeySize:                    256,
		BlockMode:                  crypto.BlockModeCBC,
		Padding:                    crypto.PaddingPKCS7,
		UserAuthenticationRequired: true,
		InvalidatedByEnrollment:    true,
		Subject:                    fmt.Sprintf("CN=%s CA Certificate", alias),
		SerialNumber:               1,
		NotBefore:                  now,
		NotAfter:                   now.Add(DefaultValidity),
	}
}

// Transformation returns the cipher transformation the params describe
func (p Params) Transformation() crypto.Transformation {
	return crypto.Transformation{
		Algorithm: p.Algorithm,
		BlockMode: p.BlockMode,
		Padding:   p.Padding,
	}
}

// Validate checks the params can produce a usable key
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("validation failed for key params: %w", err)
	}
	return p.Transformation().Validate()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("keysize", keySizeValidation); err != nil {
		panic(err)
	}
	return v
}

// keySizeValidation validates the key size in bits against the algorithm
func keySizeValidation(fl validator.FieldLevel) bool {
	algorithm := fl.Parent().FieldByName("Algorithm").String()
	keySize := fl.Field().Int()

	switch algorithm {
	case crypto.AlgorithmAES:
		return keySize == 128 || keySize == 192 || keySize == 256
	default:
		return false
	}
}
