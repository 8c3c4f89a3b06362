package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/keyring"
	"github.com/illarion/biolock/internal/session"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const (
	enrollmentSecret = "enrollment"

	DefaultMinLength   = 4
	DefaultMaxAttempts = 5
	DefaultLockout     = 30 * time.Second
	DefaultTimeout     = time.Minute
)

var (
	ErrNotEnrolled = errors.New("no PIN enrolled")
	ErrPINTooShort = errors.New("PIN too short")
)

// Terminal is a sensor backed by a PIN typed on the controlling terminal.
// The enrollment (bcrypt hash, enrollment id, failure count and lockout) is
// kept in the OS keyring.
type Terminal struct {
	// MinLength is the shortest PIN accepted at enrollment and attempt time
	MinLength int
	// MaxAttempts consecutive mismatches lock the sensor; zero disables
	MaxAttempts int
	// Lockout is how long the sensor stays locked; zero locks it until the
	// next enrollment
	Lockout time.Duration
	// Timeout bounds a single attempt; zero waits forever
	Timeout time.Duration

	// ReadSecret reads one PIN without echo
	ReadSecret func(prompt string) ([]byte, error)
	// SaveTerminal captures the terminal mode before a read and returns the
	// function that puts it back. It runs when an attempt ends while a read
	// is still pending.
	SaveTerminal func() (restore func(), err error)
	// IsTerminal reports whether a terminal is attached
	IsTerminal func() bool

	Logger *slog.Logger

	now func() time.Time
	mu  sync.Mutex
}

type enrollment struct {
	ID          string    `json:"id"`
	Hash        []byte    `json:"hash"`
	Created     time.Time `json:"created"`
	Failures    int       `json:"failures"`
	LockedUntil time.Time `json:"locked_until,omitzero"`
	Locked      bool      `json:"locked,omitempty"`
}

// NewTerminal creates a terminal sensor reading from stdin with default
// limits
func NewTerminal() *Terminal {
	return &Terminal{
		MinLength:    DefaultMinLength,
		MaxAttempts:  DefaultMaxAttempts,
		Lockout:      DefaultLockout,
		Timeout:      DefaultTimeout,
		ReadSecret:   ReadSecret(os.Stderr),
		SaveTerminal: saveStdin,
		IsTerminal:   func() bool { return term.IsTerminal(int(syscall.Stdin)) },
		Logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}
}

func saveStdin() (func(), error) {
	fd := int(syscall.Stdin)
	state, err := term.GetState(fd)
	if err != nil {
		return nil, err
	}
	return func() { term.Restore(fd, state) }, nil
}

// ReadSecret returns a reader that prints prompt to w and reads a line from
// the terminal without echo
func ReadSecret(w io.Writer) func(string) ([]byte, error) {
	return func(prompt string) ([]byte, error) {
		fmt.Fprint(w, prompt)
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(w) // New line after input
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		return secret, nil
	}
}

// Enroll replaces any existing enrollment with pin and returns the new
// enrollment id. Keys bound to the previous enrollment become unusable.
func (t *Terminal) Enroll(pin []byte) (string, error) {
	if len(pin) < t.MinLength {
		return "", fmt.Errorf("%w: need at least %d characters", ErrPINTooShort, t.MinLength)
	}

	hash, err := bcrypt.GenerateFromPassword(pin, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := &enrollment{
		ID:      uuid.NewString(),
		Hash:    hash,
		Created: t.now().UTC(),
	}
	if err := t.save(e); err != nil {
		return "", err
	}

	t.Logger.Info("sensor enrolled", "enrollment", e.ID)
	return e.ID, nil
}

// Unenroll removes the enrollment
func (t *Terminal) Unenroll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := keyring.DeleteSecret(enrollmentSecret); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotEnrolled
		}
		return fmt.Errorf("failed to delete enrollment: %w", err)
	}
	return nil
}

// IsHardwareDetected reports whether a terminal is attached
func (t *Terminal) IsHardwareDetected() bool {
	return t.IsTerminal != nil && t.IsTerminal()
}

// HasEnrolled reports whether a PIN is enrolled
func (t *Terminal) HasEnrolled() bool {
	return t.EnrollmentID() != ""
}

// EnrollmentID returns the current enrollment id
func (t *Terminal) EnrollmentID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.load()
	if err != nil {
		return ""
	}
	return e.ID
}

// LockedOut reports whether the sensor is locked and until when. A zero
// until means the lockout lasts until the next enrollment.
func (t *Terminal) LockedOut() (locked bool, until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.load()
	switch {
	case err != nil:
		return false, time.Time{}
	case e.Locked:
		return true, time.Time{}
	case e.LockedUntil.After(t.now()):
		return true, e.LockedUntil
	}
	return false, time.Time{}
}

// Authenticate prompts for the PIN on a separate goroutine
func (t *Terminal) Authenticate(ctx context.Context, s *session.Session, cb Callback) {
	go t.authenticate(ctx, s, cb)
}

func (t *Terminal) authenticate(ctx context.Context, s *session.Session, cb Callback) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	for {
		if code, msg := t.checkLockout(); code != 0 {
			cb.OnError(code, msg)
			return
		}

		pin, err := t.read(ctx, fmt.Sprintf("PIN to %s %q: ", s.Mode, s.Alias))
		if err != nil {
			switch {
			case errors.Is(ctx.Err(), context.DeadlineExceeded):
				cb.OnError(ErrorTimeout, "Timed out waiting for PIN")
			case ctx.Err() != nil:
				cb.OnError(ErrorCanceled, "Operation canceled")
			default:
				cb.OnError(ErrorUnableToProcess, err.Error())
			}
			return
		}

		switch {
		case len(pin) == 0:
			cb.OnHelp(AcquiredInsufficient, "No PIN entered")
			continue
		case len(pin) < t.MinLength:
			crypto.ClearBytes(pin)
			cb.OnHelp(AcquiredPartial, "PIN too short")
			continue
		}

		ok, locked, err := t.verify(pin)
		crypto.ClearBytes(pin)
		switch {
		case err != nil:
			cb.OnError(ErrorUnableToProcess, err.Error())
			return
		case ok:
			cb.OnSucceeded(s.Cipher())
			return
		case locked:
			// next loop iteration reports the lockout
			continue
		default:
			cb.OnNotRecognized()
		}
	}
}

// checkLockout returns a non-zero code when the attempt cannot proceed
func (t *Terminal) checkLockout() (code int, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.load()
	switch {
	case errors.Is(err, ErrNotEnrolled):
		return ErrorNoBiometrics, "No PIN enrolled"
	case err != nil:
		return ErrorHWUnavailable, err.Error()
	case e.Locked:
		return ErrorLockoutPermanent, "Too many attempts. Enroll again to unlock"
	case e.LockedUntil.After(t.now()):
		return ErrorLockout, fmt.Sprintf("Too many attempts. Try again in %s", e.LockedUntil.Sub(t.now()).Round(time.Second))
	}
	return 0, ""
}

// verify checks pin against the enrollment and records the outcome
func (t *Terminal) verify(pin []byte) (ok bool, locked bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.load()
	if err != nil {
		return false, false, err
	}

	if bcrypt.CompareHashAndPassword(e.Hash, pin) == nil {
		if e.Failures == 0 {
			return true, false, nil
		}
		e.Failures = 0
		e.LockedUntil = time.Time{}
		return true, false, t.save(e)
	}

	e.Failures++
	if t.MaxAttempts > 0 && e.Failures >= t.MaxAttempts {
		e.Failures = 0
		if t.Lockout > 0 {
			e.LockedUntil = t.now().Add(t.Lockout).UTC()
		} else {
			e.Locked = true
		}
		locked = true
		t.Logger.Warn("sensor locked out", "enrollment", e.ID, "until", e.LockedUntil)
	}
	return false, locked, t.save(e)
}

// read waits for one PIN or for ctx. A pending terminal read cannot be
// interrupted, so on cancel it is left to finish on its own and the terminal
// mode it changed is restored here.
func (t *Terminal) read(ctx context.Context, prompt string) ([]byte, error) {
	type reply struct {
		pin []byte
		err error
	}

	restore := func() {}
	if t.SaveTerminal != nil {
		r, err := t.SaveTerminal()
		if err != nil {
			t.Logger.Debug("terminal state not saved", "error", err)
		} else {
			restore = r
		}
	}

	ch := make(chan reply, 1)
	go func() {
		pin, err := t.ReadSecret(prompt)
		ch <- reply{pin, err}
	}()

	select {
	case r := <-ch:
		return r.pin, r.err
	case <-ctx.Done():
		restore()
		return nil, ctx.Err()
	}
}

func (t *Terminal) load() (*enrollment, error) {
	data, err := keyring.GetSecret(enrollmentSecret)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to read enrollment: %w", err)
	}

	var e enrollment
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("failed to decode enrollment: %w", err)
	}
	return &e, nil
}

func (t *Terminal) save(e *enrollment) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode enrollment: %w", err)
	}
	if err := keyring.SetSecret(enrollmentSecret, string(data)); err != nil {
		return fmt.Errorf("failed to store enrollment: %w", err)
	}
	return nil
}
