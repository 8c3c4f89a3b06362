// Package sensortest provides a deterministic sensor for tests.
package sensortest

import (
	"context"
	"sync"

	"github.com/illarion/biolock/internal/crypto"
	"github.com/illarion/biolock/internal/sensor"
	"github.com/illarion/biolock/internal/session"
)

// Event is one step of a sensor script
type Event func(ctx context.Context, s *session.Session, cb sensor.Callback)

// Succeed unlocks the session's own cipher
func Succeed() Event {
	return func(_ context.Context, s *session.Session, cb sensor.Callback) {
		cb.OnSucceeded(s.Cipher())
	}
}

// SucceedWith reports success with an arbitrary cipher handle
func SucceedWith(c *crypto.Cipher) Event {
	return func(_ context.Context, _ *session.Session, cb sensor.Callback) {
		cb.OnSucceeded(c)
	}
}

// Fail reports an error code
func Fail(code int, message string) Event {
	return func(_ context.Context, _ *session.Session, cb sensor.Callback) {
		cb.OnError(code, message)
	}
}

// Help reports an acquired code
func Help(code int, message string) Event {
	return func(_ context.Context, _ *session.Session, cb sensor.Callback) {
		cb.OnHelp(code, message)
	}
}

// NotRecognized reports a rejected sample
func NotRecognized() Event {
	return func(_ context.Context, _ *session.Session, cb sensor.Callback) {
		cb.OnNotRecognized()
	}
}

// WaitCancel blocks the script until the attempt is cancelled. Events after
// it fire late, as a misbehaving driver would.
func WaitCancel() Event {
	return func(ctx context.Context, _ *session.Session, _ sensor.Callback) {
		<-ctx.Done()
	}
}

// Wait blocks the script until ch is closed
func Wait(ch <-chan struct{}) Event {
	return func(context.Context, *session.Session, sensor.Callback) {
		<-ch
	}
}

// Scripted is a sensor that plays a fixed list of events for every attempt.
type Scripted struct {
	Hardware   bool
	Enrolled   bool
	Enrollment string

	mu       sync.Mutex
	script   *script
	sessions []*session.Session
}

type script struct {
	events []Event
	done   chan struct{}
	once   sync.Once
}

func newScript(events []Event) *script {
	return &script{events: events, done: make(chan struct{})}
}

// New returns a present, enrolled sensor playing events
func New(events ...Event) *Scripted {
	return &Scripted{
		Hardware:   true,
		Enrolled:   true,
		Enrollment: "enrollment-1",
		script:     newScript(events),
	}
}

// Script replaces the events played by later attempts
func (s *Scripted) Script(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = newScript(events)
}

func (s *Scripted) IsHardwareDetected() bool { return s.Hardware }
func (s *Scripted) HasEnrolled() bool        { return s.Enrolled }

func (s *Scripted) EnrollmentID() string {
	if !s.Enrolled {
		return ""
	}
	return s.Enrollment
}

// Authenticate plays the script on a new goroutine
func (s *Scripted) Authenticate(ctx context.Context, sess *session.Session, cb sensor.Callback) {
	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	sc := s.script
	s.mu.Unlock()

	go func() {
		defer sc.once.Do(func() { close(sc.done) })
		for _, e := range sc.events {
			e(ctx, sess, cb)
		}
	}()
}

// Calls returns how many attempts reached the sensor
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns the sessions handed to the sensor
func (s *Scripted) Sessions() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*session.Session(nil), s.sessions...)
}

// Done is closed once the current script has played to the end for the
// first attempt that ran it
func (s *Scripted) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script.done
}
