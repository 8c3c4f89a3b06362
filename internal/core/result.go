package core

import (
	"fmt"

	"github.com/illarion/biolock/internal/sensor"
)

// Result is the outcome of an authentication attempt: Success, Error or Help.
type Result interface {
	result()
}

// Success carries the transformed text. Ciphertext is standard base64; an
// authentication-only attempt yields an empty Output.
type Success struct {
	Output string
}

// Error is a terminal failure. Code is the native sensor code, zero when the
// failure happened before or after the sensor.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Cause   error
}

// Help is a recoverable signal; the attempt is still running.
type Help struct {
	Kind    HelpKind
	Code    int
	Message string
}

func (Success) result() {}
func (Error) result()   {}
func (Help) result()    {}

func (e Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e Error) Unwrap() error {
	return e.Cause
}

type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorUnavailable
	ErrorUnableToProcess
	ErrorTimeout
	ErrorNotEnoughSpace
	ErrorCanceled
	ErrorLockout
	ErrorInitializationFailed
	ErrorDecryptionFailed
	ErrorEncryptionFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorUnavailable:
		return "unavailable"
	case ErrorUnableToProcess:
		return "unable to process"
	case ErrorTimeout:
		return "timeout"
	case ErrorNotEnoughSpace:
		return "not enough space"
	case ErrorCanceled:
		return "canceled"
	case ErrorLockout:
		return "lockout"
	case ErrorInitializationFailed:
		return "initialization failed"
	case ErrorDecryptionFailed:
		return "decryption failed"
	case ErrorEncryptionFailed:
		return "encryption failed"
	default:
		return "unknown"
	}
}

type HelpKind int

const (
	HelpFailure HelpKind = iota
	HelpGood
	HelpPartial
	HelpInsufficient
	HelpDirty
	HelpTooSlow
	HelpTooFast
)

func (k HelpKind) String() string {
	switch k {
	case HelpGood:
		return "good"
	case HelpPartial:
		return "partial"
	case HelpInsufficient:
		return "insufficient"
	case HelpDirty:
		return "dirty"
	case HelpTooSlow:
		return "too slow"
	case HelpTooFast:
		return "too fast"
	default:
		return "failure"
	}
}

// ErrorKindFor maps a native error code. Unmapped codes are ErrorUnknown.
func ErrorKindFor(code int) ErrorKind {
	switch code {
	case sensor.ErrorHWUnavailable:
		return ErrorUnavailable
	case sensor.ErrorUnableToProcess:
		return ErrorUnableToProcess
	case sensor.ErrorTimeout:
		return ErrorTimeout
	case sensor.ErrorNoSpace:
		return ErrorNotEnoughSpace
	case sensor.ErrorCanceled:
		return ErrorCanceled
	case sensor.ErrorLockout, sensor.ErrorLockoutPermanent:
		return ErrorLockout
	default:
		return ErrorUnknown
	}
}

// HelpKindFor maps a native acquired code. Unmapped codes are HelpFailure.
func HelpKindFor(code int) HelpKind {
	switch code {
	case sensor.AcquiredGood:
		return HelpGood
	case sensor.AcquiredPartial:
		return HelpPartial
	case sensor.AcquiredInsufficient:
		return HelpInsufficient
	case sensor.AcquiredImagerDirty:
		return HelpDirty
	case sensor.AcquiredTooSlow:
		return HelpTooSlow
	case sensor.AcquiredTooFast:
		return HelpTooFast
	default:
		return HelpFailure
	}
}
