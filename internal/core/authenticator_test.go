package core

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/iv"
	"github.com/illarion/biolock/internal/keys"
	"github.com/illarion/biolock/internal/keystore"
	"github.com/illarion/biolock/internal/sensor"
	"github.com/illarion/biolock/internal/sensor/sensortest"
	"github.com/illarion/biolock/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newFactory(t *testing.T) *session.Factory {
	t.Helper()
	keyring.MockInit()

	gw, err := keystore.Select(keystore.Options{Backend: keystore.BackendKeyring})
	require.NoError(t, err)
	return session.NewFactory(gw, iv.NewMemoryLedger())
}

func newAuthenticator(t *testing.T, s sensor.Sensor, opts ...Option) *Authenticator {
	t.Helper()
	return New("login", newFactory(t), s, opts...)
}

func encrypt(t *testing.T, a *Authenticator, text string) string {
	t.Helper()
	res, err := a.Encrypt(context.Background(), text)
	require.NoError(t, err)
	require.IsType(t, Success{}, res)
	return res.(Success).Output
}

func requireError(t *testing.T, res Result, kind ErrorKind) Error {
	t.Helper()
	require.IsType(t, Error{}, res)
	e := res.(Error)
	require.Equal(t, kind, e.Kind, e.Error())
	return e
}

func collect(t *testing.T, at *Attempt) []Result {
	t.Helper()
	var results []Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-at.Results():
			if !ok {
				return results
			}
			results = append(results, r)
		case <-timeout:
			t.Fatal("attempt did not finish")
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a := newAuthenticator(t, sensortest.New(sensortest.Succeed()))

	ciphertext := encrypt(t, a, "my password")
	assert.NotEqual(t, "my password", ciphertext)

	res, err := a.Decrypt(context.Background(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, Success{Output: "my password"}, res)
}

func TestSecondEncryptInvalidatesCiphertext(t *testing.T) {
	a := newAuthenticator(t, sensortest.New(sensortest.Succeed()))

	first := encrypt(t, a, "first secret")
	second := encrypt(t, a, "second secret")

	res, err := a.Decrypt(context.Background(), first)
	require.NoError(t, err)
	e := requireError(t, res, ErrorDecryptionFailed)
	assert.ErrorIs(t, e, crypto.ErrAuthFailed)

	res, err = a.Decrypt(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, Success{Output: "second secret"}, res)
}

func TestDecryptWithoutEncrypt(t *testing.T) {
	s := sensortest.New(sensortest.Succeed())
	a := newAuthenticator(t, s)

	res, err := a.Decrypt(context.Background(), "AAAA")
	require.NoError(t, err)

	e := requireError(t, res, ErrorInitializationFailed)
	assert.ErrorIs(t, e, crypto.ErrMissingIV)
	assert.Zero(t, s.Calls(), "sensor must not be touched")
}

func TestStoreUnavailable(t *testing.T) {
	s := sensortest.New(sensortest.Succeed())
	a := newAuthenticator(t, s)
	keyring.MockInitWithError(errors.New("keyring locked"))

	res, err := a.Encrypt(context.Background(), "my password")
	require.NoError(t, err)

	e := requireError(t, res, ErrorInitializationFailed)
	assert.ErrorIs(t, e, keystore.ErrStoreUnavailable)
	assert.Zero(t, s.Calls())
}

func TestKeyInvalidatedByReEnrollment(t *testing.T) {
	s := sensortest.New(sensortest.Succeed())
	a := newAuthenticator(t, s)

	ciphertext := encrypt(t, a, "my password")

	s.Enrollment = "enrollment-2"
	res, err := a.Decrypt(context.Background(), ciphertext)
	require.NoError(t, err)

	e := requireError(t, res, ErrorInitializationFailed)
	assert.ErrorIs(t, e, keys.ErrKeyInvalidated)
	assert.Equal(t, 1, s.Calls())
}

func TestLockout(t *testing.T) {
	a := newAuthenticator(t, sensortest.New(sensortest.Fail(sensor.ErrorLockout, "Too many attempts")))

	res, err := a.Encrypt(context.Background(), "my password")
	require.NoError(t, err)
	assert.Equal(t, Error{Kind: ErrorLockout, Code: sensor.ErrorLockout, Message: "Too many attempts"}, res)
}

func TestHelpForwardedBeforeSuccess(t *testing.T) {
	var help []Help
	s := sensortest.New(
		sensortest.Help(sensor.AcquiredPartial, "Partial fingerprint"),
		sensortest.NotRecognized(),
		sensortest.Help(42, "vendor hint"),
		sensortest.Succeed(),
	)
	a := newAuthenticator(t, s, WithHelpHandler(func(h Help) { help = append(help, h) }))

	ciphertext := encrypt(t, a, "my password")
	assert.NotEmpty(t, ciphertext)

	assert.Equal(t, []Help{
		{Kind: HelpPartial, Code: sensor.AcquiredPartial, Message: "Partial fingerprint"},
		{Kind: HelpFailure, Code: sensor.NotRecognized, Message: "Not recognized"},
		{Kind: HelpFailure, Code: 42, Message: "vendor hint"},
	}, help)
}

func TestAttemptStreamsHelp(t *testing.T) {
	s := sensortest.New(
		sensortest.Help(sensor.AcquiredTooFast, "Too fast"),
		sensortest.Fail(sensor.ErrorTimeout, "Timed out"),
	)
	a := newAuthenticator(t, s)

	at := a.Start(context.Background(), crypto.ModeAuthenticate, "")
	results := collect(t, at)

	require.Len(t, results, 2)
	assert.Equal(t, Help{Kind: HelpTooFast, Code: sensor.AcquiredTooFast, Message: "Too fast"}, results[0])
	requireError(t, results[1], ErrorTimeout)
	assert.Equal(t, StateResolved, at.State())
	assert.NoError(t, at.Err())
	assert.NotEmpty(t, at.ID)
}

func TestAuthenticateOnly(t *testing.T) {
	a := newAuthenticator(t, sensortest.New(sensortest.Succeed()))

	ciphertext := encrypt(t, a, "my password")

	res, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Success{}, res)

	// Authenticate primes an encrypt cipher, so it replaces the IV as well
	res, err = a.Decrypt(context.Background(), ciphertext)
	require.NoError(t, err)
	requireError(t, res, ErrorDecryptionFailed)
}

func TestCancelSuppressesLateCallbacks(t *testing.T) {
	s := sensortest.New(
		sensortest.WaitCancel(),
		sensortest.Succeed(),
		sensortest.Fail(sensor.ErrorLockout, "late"),
	)
	a := newAuthenticator(t, s)

	at := a.Start(context.Background(), crypto.ModeEncrypt, "my password")
	require.Eventually(t, func() bool { return at.State() == StateAwaitingSensor },
		time.Second, 5*time.Millisecond)

	at.Cancel()
	assert.Empty(t, collect(t, at))
	assert.Equal(t, StateCancelled, at.State())
	assert.ErrorIs(t, at.Err(), ErrCancelled)

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("late callbacks blocked the sensor")
	}

	// The session was discarded, not left usable
	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	_, err := sessions[0].Cipher().DoFinal([]byte("x"))
	assert.ErrorIs(t, err, crypto.ErrCipherConsumed)
}

func TestEncryptCancelledByContext(t *testing.T) {
	s := sensortest.New(sensortest.WaitCancel(), sensortest.Succeed())
	a := newAuthenticator(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := a.Encrypt(ctx, "my password")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDuplicateCallbacksIgnored(t *testing.T) {
	s := sensortest.New(
		sensortest.Succeed(),
		sensortest.Succeed(),
		sensortest.Fail(sensor.ErrorHWUnavailable, "gone"),
		sensortest.Help(sensor.AcquiredGood, "late help"),
	)
	a := newAuthenticator(t, s)

	at := a.Start(context.Background(), crypto.ModeEncrypt, "my password")
	results := collect(t, at)

	require.Len(t, results, 1)
	assert.IsType(t, Success{}, results[0])

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("duplicate callbacks blocked the sensor")
	}
}

func TestTransformFailures(t *testing.T) {
	t.Run("nil cipher", func(t *testing.T) {
		a := newAuthenticator(t, sensortest.New(sensortest.SucceedWith(nil)))

		res, err := a.Encrypt(context.Background(), "my password")
		require.NoError(t, err)
		e := requireError(t, res, ErrorEncryptionFailed)
		assert.ErrorIs(t, e, ErrNoCipher)
	})

	t.Run("invalid base64", func(t *testing.T) {
		s := sensortest.New(sensortest.Succeed())
		a := newAuthenticator(t, s)
		encrypt(t, a, "my password")

		res, err := a.Decrypt(context.Background(), "not base64!")
		require.NoError(t, err)
		e := requireError(t, res, ErrorDecryptionFailed)
		assert.ErrorIs(t, e, ErrInvalidEncoding)
	})

	t.Run("truncated ciphertext", func(t *testing.T) {
		a := newAuthenticator(t, sensortest.New(sensortest.Succeed()))
		encrypt(t, a, "my password")

		res, err := a.Decrypt(context.Background(), "AAAA")
		require.NoError(t, err)
		e := requireError(t, res, ErrorDecryptionFailed)
		assert.ErrorIs(t, e, crypto.ErrInvalidCiphertext)
	})
}

func TestCipherFromAnotherSessionRejected(t *testing.T) {
	s := sensortest.New(sensortest.Succeed())
	a := newAuthenticator(t, s)
	encrypt(t, a, "my password")

	enc := s.Sessions()[0].Cipher()
	s.Script(sensortest.SucceedWith(enc))

	res, err := a.Decrypt(context.Background(), "AAAA")
	require.NoError(t, err)
	e := requireError(t, res, ErrorDecryptionFailed)
	assert.ErrorIs(t, e, ErrCipherMismatch)
}

func TestAttemptsForSameAliasAreSerialized(t *testing.T) {
	gate := make(chan struct{})
	s := sensortest.New(sensortest.Wait(gate), sensortest.Succeed())
	a := newAuthenticator(t, s)

	first := a.Start(context.Background(), crypto.ModeAuthenticate, "")
	require.Eventually(t, func() bool { return first.State() == StateAwaitingSensor },
		time.Second, 5*time.Millisecond)

	second := a.Start(context.Background(), crypto.ModeAuthenticate, "")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateAwaitingKeyMaterial, second.State())
	assert.Equal(t, 1, s.Calls())

	close(gate)
	assert.Equal(t, []Result{Success{}}, collect(t, first))
	assert.Equal(t, []Result{Success{}}, collect(t, second))
	assert.Equal(t, 2, s.Calls())
}

func TestIsAvailable(t *testing.T) {
	tests := []struct {
		hardware bool
		enrolled bool
		want     bool
	}{
		{false, false, false},
		{true, false, false},
		{false, true, false},
		{true, true, true},
	}

	for _, tt := range tests {
		s := sensortest.New()
		s.Hardware = tt.hardware
		s.Enrolled = tt.enrolled
		a := newAuthenticator(t, s)
		assert.Equal(t, tt.want, a.IsAvailable(), "hardware=%v enrolled=%v", tt.hardware, tt.enrolled)
	}
}

func TestCancelWhileWaitingForAlias(t *testing.T) {
	f := newFactory(t)
	s := sensortest.New(sensortest.Succeed())
	a := New("login", f, s)

	release, err := f.Lock(context.Background(), "login")
	require.NoError(t, err)
	defer release()

	at := a.Start(context.Background(), crypto.ModeEncrypt, "my password")
	require.Eventually(t, func() bool { return at.State() == StateAwaitingKeyMaterial },
		time.Second, 5*time.Millisecond)

	at.Cancel()
	assert.Empty(t, collect(t, at))
	assert.Equal(t, StateCancelled, at.State())
	assert.ErrorIs(t, at.Err(), ErrCancelled)
	assert.Zero(t, s.Calls(), "sensor must not be touched")
}

func TestStateResolvedWhenResultArrives(t *testing.T) {
	a := newAuthenticator(t, sensortest.New(sensortest.Succeed()))

	at := a.Start(context.Background(), crypto.ModeAuthenticate, "")
	select {
	case r := <-at.Results():
		assert.Equal(t, Success{}, r)
		assert.Equal(t, StateResolved, at.State())
	case <-time.After(5 * time.Second):
		t.Fatal("attempt did not resolve")
	}
	assert.Empty(t, collect(t, at))
}

func TestSessionCipherLockedUntilSuccess(t *testing.T) {
	// The sensor tries the cipher before reporting success
	var early error
	peek := func(_ context.Context, s *session.Session, cb sensor.Callback) {
		_, early = s.Cipher().DoFinal([]byte("x"))
		cb.OnSucceeded(s.Cipher())
	}
	a := newAuthenticator(t, sensortest.New(peek))

	ciphertext := encrypt(t, a, "my password")
	assert.ErrorIs(t, early, crypto.ErrCipherLocked)
	assert.NotEmpty(t, ciphertext)
}

type hexAlgorithm struct{}

func (hexAlgorithm) Encrypt(c *crypto.Cipher, plaintext string) (string, error) {
	out, err := c.DoFinal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}

func (hexAlgorithm) Decrypt(c *crypto.Cipher, ciphertext string) (string, error) {
	in, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	out, err := c.DoFinal(in)
	return string(out), err
}

func TestWithAlgorithm(t *testing.T) {
	a := newAuthenticator(t, sensortest.New(sensortest.Succeed()), WithAlgorithm(hexAlgorithm{}))

	ciphertext := encrypt(t, a, "my password")
	_, err := hex.DecodeString(ciphertext)
	require.NoError(t, err, "output must be hex")

	res, err := a.Decrypt(context.Background(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, Success{Output: "my password"}, res)
}

type failingFactory struct {
	createErr error
}

func (failingFactory) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

func (f failingFactory) Create(context.Context, string, crypto.Mode, string) (*session.Session, error) {
	return nil, f.createErr
}

func TestCustomSessionFactory(t *testing.T) {
	s := sensortest.New(sensortest.Succeed())
	a := New("login", failingFactory{createErr: keystore.ErrStoreUnavailable}, s)

	res, err := a.Encrypt(context.Background(), "my password")
	require.NoError(t, err)
	e := requireError(t, res, ErrorInitializationFailed)
	assert.Equal(t, "Key store unavailable", e.Message)
	assert.Zero(t, s.Calls())
}
