package core

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/illarion/biolock/internal/crypto"
)

var ErrCancelled = errors.New("authentication attempt cancelled")

// State of an authentication attempt
type State int32

const (
	StateIdle State = iota
	StateAwaitingKeyMaterial
	StateAwaitingSensor
	StateResolved
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingKeyMaterial:
		return "awaiting key material"
	case StateAwaitingSensor:
		return "awaiting sensor"
	case StateResolved:
		return "resolved"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Attempt is one run of the authentication state machine. Results yields
// any number of Help values followed by at most one Success or Error, then
// closes. A cancelled attempt closes Results without a terminal result.
type Attempt struct {
	ID    string
	Alias string
	Mode  crypto.Mode

	ctx     context.Context
	cancel  context.CancelCauseFunc
	results chan Result
	state   atomic.Int32
	logger  *slog.Logger
}

// Results returns the channel results are delivered on. It must be drained
// or the attempt cancelled.
func (a *Attempt) Results() <-chan Result {
	return a.results
}

// Cancel abandons the attempt. A send already racing Cancel may still hand
// over that one result; nothing is sent after it.
func (a *Attempt) Cancel() {
	a.cancel(ErrCancelled)
}

// State returns the current state
func (a *Attempt) State() State {
	return State(a.state.Load())
}

// Err returns why the attempt was cancelled, nil otherwise. Only meaningful
// once Results is closed.
func (a *Attempt) Err() error {
	if a.State() != StateCancelled {
		return nil
	}
	if err := context.Cause(a.ctx); err != nil {
		return err
	}
	return ErrCancelled
}

func (a *Attempt) setState(s State) {
	prev := State(a.state.Swap(int32(s)))
	if prev != s {
		a.logger.Debug("attempt state changed", "from", prev.String(), "to", s.String())
	}
}

// send moves to next and hands r to the receiver unless the attempt has
// been cancelled. The state is set first so a receiver never observes a
// stale one.
func (a *Attempt) send(r Result, next State) bool {
	if a.ctx.Err() != nil {
		a.setState(StateCancelled)
		return false
	}
	a.setState(next)

	select {
	case a.results <- r:
		return true
	case <-a.ctx.Done():
		a.setState(StateCancelled)
		return false
	}
}

// deliver sends a non-terminal result
func (a *Attempt) deliver(r Result) bool {
	return a.send(r, StateAwaitingSensor)
}

// resolve delivers the terminal result
func (a *Attempt) resolve(r Result) {
	if !a.send(r, StateResolved) {
		return
	}

	switch r := r.(type) {
	case Success:
		a.logger.Info("attempt resolved", "result", "success")
	case Error:
		a.logger.Info("attempt resolved", "result", "error", "kind", r.Kind.String(), "code", r.Code)
	}
}

type eventKind int

const (
	eventSucceeded eventKind = iota
	eventError
	eventHelp
	eventNotRecognized
)

type event struct {
	kind    eventKind
	code    int
	message string
	cipher  *crypto.Cipher
}

// callback funnels sensor callbacks into the attempt loop. Once the loop has
// stopped, further callbacks are dropped.
type callback struct {
	events  chan event
	stopped chan struct{}
}

func newCallback() *callback {
	return &callback{
		events:  make(chan event),
		stopped: make(chan struct{}),
	}
}

func (c *callback) send(e event) {
	select {
	case c.events <- e:
	case <-c.stopped:
	}
}

func (c *callback) OnSucceeded(ci *crypto.Cipher) {
	c.send(event{kind: eventSucceeded, cipher: ci})
}

func (c *callback) OnError(code int, message string) {
	c.send(event{kind: eventError, code: code, message: message})
}

func (c *callback) OnHelp(code int, message string) {
	c.send(event{kind: eventHelp, code: code, message: message})
}

func (c *callback) OnNotRecognized() {
	c.send(event{kind: eventNotRecognized})
}
