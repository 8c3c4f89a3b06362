// Package sensor defines the authentication sensor the core waits on, the
// native status codes it reports, and a terminal PIN sensor for the CLI.
package sensor

import (
	"context"

	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/session"
)

// Callback receives the outcome of one authentication attempt. Help and
// NotRecognized may fire any number of times before a single OnSucceeded or
// OnError. Methods may be called from any goroutine.
type Callback interface {
	// OnSucceeded hands back the cipher the sensor unlocked
	OnSucceeded(c *crypto.Cipher)
	OnError(code int, message string)
	OnHelp(code int, message string)
	// OnNotRecognized reports a rejected sample; the attempt stays open
	OnNotRecognized()
}

// Sensor is an authentication device bound to crypto sessions.
type Sensor interface {
	IsHardwareDetected() bool
	HasEnrolled() bool
	// EnrollmentID identifies the current enrollment, empty when none
	EnrollmentID() string
	// Authenticate starts waiting for the user and returns immediately.
	// Cancelling ctx aborts the wait.
	Authenticate(ctx context.Context, s *session.Session, cb Callback)
}
