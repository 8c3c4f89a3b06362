package core

import (
	"testing"

	"github.com/illarion/biolock/internal/sensor"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindFor(t *testing.T) {
	known := map[int]ErrorKind{
		sensor.ErrorHWUnavailable:    ErrorUnavailable,
		sensor.ErrorUnableToProcess:  ErrorUnableToProcess,
		sensor.ErrorTimeout:          ErrorTimeout,
		sensor.ErrorNoSpace:          ErrorNotEnoughSpace,
		sensor.ErrorCanceled:         ErrorCanceled,
		sensor.ErrorLockout:          ErrorLockout,
		sensor.ErrorLockoutPermanent: ErrorLockout,
	}

	for code := -10; code <= 100; code++ {
		want, ok := known[code]
		if !ok {
			want = ErrorUnknown
		}
		assert.Equal(t, want, ErrorKindFor(code), "code %d", code)
	}
}

func TestHelpKindFor(t *testing.T) {
	known := map[int]HelpKind{
		sensor.AcquiredGood:         HelpGood,
		sensor.AcquiredPartial:      HelpPartial,
		sensor.AcquiredInsufficient: HelpInsufficient,
		sensor.AcquiredImagerDirty:  HelpDirty,
		sensor.AcquiredTooSlow:      HelpTooSlow,
		sensor.AcquiredTooFast:      HelpTooFast,
	}

	for code := -10; code <= 100; code++ {
		want, ok := known[code]
		if !ok {
			want = HelpFailure
		}
		assert.Equal(t, want, HelpKindFor(code), "code %d", code)
	}
	assert.Equal(t, HelpFailure, HelpKindFor(sensor.NotRecognized))
}

func TestKindStrings(t *testing.T) {
	seen := map[string]bool{}
	for k := ErrorUnknown; k <= ErrorEncryptionFailed; k++ {
		assert.False(t, seen[k.String()], "duplicate name %q", k)
		seen[k.String()] = true
	}
	assert.Equal(t, "lockout", ErrorLockout.String())
	assert.Equal(t, "failure", HelpFailure.String())
	assert.Equal(t, "too slow", HelpTooSlow.String())
}

func TestErrorResult(t *testing.T) {
	e := Error{Kind: ErrorTimeout, Message: "Timed out"}
	assert.Equal(t, "timeout: Timed out", e.Error())
	assert.Equal(t, "lockout", Error{Kind: ErrorLockout}.Error())
	assert.Nil(t, e.Unwrap())
}
