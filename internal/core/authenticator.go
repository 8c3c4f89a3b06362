package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/keys"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/illarion/biolock/internal/sensor"
	"github.com/illarion/biolock/internal/session"
)

var (
	ErrNoCipher       = errors.New("sensor returned no cipher")
	ErrCipherMismatch = errors.New("sensor returned a cipher from another session")
)

const notRecognizedMessage = "Not recognized"

// SessionFactory prepares the crypto session of an attempt. session.Factory
// is the production implementation.
type SessionFactory interface {
	// Lock blocks until the alias is free or ctx is done
	Lock(ctx context.Context, alias string) (release func(), err error)
	Create(ctx context.Context, alias string, mode crypto.Mode, enrollmentID string) (*session.Session, error)
}

var _ SessionFactory = (*session.Factory)(nil)

// Authenticator gates encryption and decryption for one alias behind the
// sensor
type Authenticator struct {
	alias     string
	factory   SessionFactory
	sensor    sensor.Sensor
	algorithm Algorithm
	logger    *slog.Logger
	onHelp    func(Help)
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithLogger sets the logger for attempt lifecycle events
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

// WithHelpHandler receives Help results while Encrypt, Decrypt or
// Authenticate wait for the terminal result
func WithHelpHandler(fn func(Help)) Option {
	return func(a *Authenticator) { a.onHelp = fn }
}

// WithAlgorithm replaces the Base64 text transform
func WithAlgorithm(alg Algorithm) Option {
	return func(a *Authenticator) { a.algorithm = alg }
}

// New creates an authenticator for alias
func New(alias string, factory SessionFactory, s sensor.Sensor, opts ...Option) *Authenticator {
	a := &Authenticator{
		alias:     alias,
		factory:   factory,
		sensor:    s,
		algorithm: Base64{},
		logger:    slog.New(slog.DiscardHandler),
		onHelp:    func(Help) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Alias returns the key alias the authenticator works on
func (a *Authenticator) Alias() string {
	return a.alias
}

// IsAvailable reports whether sensor hardware is present and enrolled
func (a *Authenticator) IsAvailable() bool {
	return a.sensor.IsHardwareDetected() && a.sensor.HasEnrolled()
}

// Encrypt waits for the sensor and returns text encrypted by the algorithm,
// base64 by default
func (a *Authenticator) Encrypt(ctx context.Context, text string) (Result, error) {
	return a.wait(ctx, crypto.ModeEncrypt, text)
}

// Decrypt waits for the sensor and returns the plaintext of a ciphertext
// produced by Encrypt
func (a *Authenticator) Decrypt(ctx context.Context, text string) (Result, error) {
	return a.wait(ctx, crypto.ModeDecrypt, text)
}

// Authenticate waits for the sensor without transforming anything
func (a *Authenticator) Authenticate(ctx context.Context) (Result, error) {
	return a.wait(ctx, crypto.ModeAuthenticate, "")
}

// wait runs one attempt to its terminal result. A cancelled attempt returns
// no result and the cancellation cause.
func (a *Authenticator) wait(ctx context.Context, mode crypto.Mode, text string) (Result, error) {
	at := a.Start(ctx, mode, text)
	defer at.Cancel()

	for r := range at.Results() {
		if h, ok := r.(Help); ok {
			a.onHelp(h)
			continue
		}
		return r, nil
	}
	return nil, at.Err()
}

// Start runs an attempt in the background. Attempts for the same alias run
// one at a time.
func (a *Authenticator) Start(ctx context.Context, mode crypto.Mode, text string) *Attempt {
	ctx, cancel := context.WithCancelCause(ctx)
	id := uuid.NewString()

	at := &Attempt{
		ID:      id,
		Alias:   a.alias,
		Mode:    mode,
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan Result),
		logger:  a.logger.With("attempt", id, "alias", a.alias, "mode", mode.String()),
	}

	go a.run(at, text)
	return at
}

func (a *Authenticator) run(at *Attempt, text string) {
	defer close(at.results)
	defer at.cancel(nil)
	ctx := at.ctx

	at.setState(StateAwaitingKeyMaterial)

	release, err := a.factory.Lock(ctx, at.Alias)
	if err != nil {
		at.setState(StateCancelled)
		return
	}
	defer release()

	s, err := a.factory.Create(ctx, at.Alias, at.Mode, a.sensor.EnrollmentID())
	if err != nil {
		if ctx.Err() != nil {
			at.setState(StateCancelled)
			return
		}
		at.logger.Warn("crypto session unavailable", "error", err)
		at.resolve(Error{
			Kind:    ErrorInitializationFailed,
			Message: preconditionMessage(err),
			Cause:   err,
		})
		return
	}
	defer s.Discard()

	cb := newCallback()
	defer close(cb.stopped)

	at.setState(StateAwaitingSensor)
	a.sensor.Authenticate(ctx, s, cb)

	for {
		select {
		case <-ctx.Done():
			at.setState(StateCancelled)
			return
		case e := <-cb.events:
			switch e.kind {
			case eventHelp:
				if !at.deliver(Help{Kind: HelpKindFor(e.code), Code: e.code, Message: e.message}) {
					return
				}
			case eventNotRecognized:
				if !at.deliver(Help{Kind: HelpFailure, Code: sensor.NotRecognized, Message: notRecognizedMessage}) {
					return
				}
			case eventError:
				at.resolve(Error{Kind: ErrorKindFor(e.code), Code: e.code, Message: e.message})
				return
			case eventSucceeded:
				at.resolve(a.transform(s, e.cipher, at.Mode, text))
				return
			}
		}
	}
}

// transform unlocks the session cipher the sensor released and applies the
// algorithm to text
func (a *Authenticator) transform(s *session.Session, c *crypto.Cipher, mode crypto.Mode, text string) Result {
	if mode == crypto.ModeAuthenticate {
		return Success{}
	}

	kind := ErrorEncryptionFailed
	if mode == crypto.ModeDecrypt {
		kind = ErrorDecryptionFailed
	}

	switch {
	case c == nil:
		return Error{Kind: kind, Message: ErrNoCipher.Error(), Cause: ErrNoCipher}
	case c != s.Cipher():
		return Error{Kind: kind, Message: ErrCipherMismatch.Error(), Cause: ErrCipherMismatch}
	}
	c.Unlock()

	var (
		output string
		err    error
	)
	if mode == crypto.ModeEncrypt {
		output, err = a.algorithm.Encrypt(c, text)
	} else {
		output, err = a.algorithm.Decrypt(c, text)
	}
	if err != nil {
		return Error{Kind: kind, Message: err.Error(), Cause: err}
	}
	return Success{Output: output}
}

func preconditionMessage(err error) string {
	switch {
	case errors.Is(err, crypto.ErrMissingIV):
		return "Nothing was encrypted with this key yet"
	case errors.Is(err, keys.ErrKeyInvalidated):
		return "Key was invalidated by a new enrollment"
	case errors.Is(err, keystore.ErrKeyExpired):
		return "Key has expired"
	case errors.Is(err, keystore.ErrKeyGenerationFailed):
		return "Key generation failed"
	case errors.Is(err, keystore.ErrStoreUnavailable):
		return "Key store unavailable"
	default:
		return fmt.Sprintf("Failed to prepare cipher: %v", err)
	}
}
