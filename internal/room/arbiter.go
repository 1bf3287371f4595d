// Package room implements per-room turn-taking for agent speech.
//
// Every room with at least one bound agent gets an [Arbiter]. The arbiter
// owns the floor: at most one agent is audible in a room at any time. Speak
// requests queue FIFO and are dispatched by a single goroutine; a speaking
// turn that exceeds the room's time limit is cut off mid-utterance and the
// remainder is discarded.
package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxroom/voxroom/internal/event"
	"github.com/voxroom/voxroom/internal/fault"
)

// SpeakFunc performs one speaking turn: synthesize and stream audio into the
// room. It must stop promptly when ctx is cancelled and must not emit any
// audio after returning.
type SpeakFunc func(ctx context.Context) error

// EndCallback observes the end of a speaking turn. reason is one of the
// event.Reason values.
type EndCallback func(agentID, text, reason string)

const (
	defaultSpeakingLimit = 30 * time.Second
	defaultQueueCap      = 16
)

// Arbiter serializes speaking turns within one room.
type Arbiter struct {
	roomID        string
	speakingLimit time.Duration
	log           *slog.Logger

	onStart func(agentID, text string)
	onEnd   EndCallback

	mu       sync.Mutex
	queue    *turnQueue
	current  string             // agent holding the floor, "" when silent
	cancel   context.CancelFunc // cancels the current turn
	forced   bool               // current turn was force-stopped
	detached map[string]bool
	closed   bool

	wake chan struct{}
	done chan struct{}
}

// ArbiterOption customizes an Arbiter.
type ArbiterOption func(*Arbiter)

// WithQueueCap bounds the pending request queue.
func WithQueueCap(n int) ArbiterOption {
	return func(a *Arbiter) {
		if n > 0 {
			a.queue = newTurnQueue(n)
		}
	}
}

// WithSpeakingLimit caps how long a single turn may hold the floor.
func WithSpeakingLimit(d time.Duration) ArbiterOption {
	return func(a *Arbiter) {
		if d > 0 {
			a.speakingLimit = d
		}
	}
}

// WithStartCallback observes the start of every turn.
func WithStartCallback(fn func(agentID, text string)) ArbiterOption {
	return func(a *Arbiter) { a.onStart = fn }
}

// WithEndCallback observes the end of every turn.
func WithEndCallback(fn EndCallback) ArbiterOption {
	return func(a *Arbiter) { a.onEnd = fn }
}

// WithArbiterLogger sets the logger.
func WithArbiterLogger(log *slog.Logger) ArbiterOption {
	return func(a *Arbiter) {
		if log != nil {
			a.log = log
		}
	}
}

// NewArbiter creates and starts the arbiter for one room.
func NewArbiter(roomID string, opts ...ArbiterOption) *Arbiter {
	a := &Arbiter{
		roomID:        roomID,
		speakingLimit: defaultSpeakingLimit,
		log:           slog.Default(),
		queue:         newTurnQueue(defaultQueueCap),
		detached:      make(map[string]bool),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("room", roomID)
	go a.dispatch()
	return a
}

// RequestSpeak queues one speaking turn for the given agent. It returns a
// busy fault when the room's queue is full and never blocks on playback.
func (a *Arbiter) RequestSpeak(agentID, text string, speak SpeakFunc) error {
	if speak == nil {
		return fault.New(fault.KindInvalidArgument, "room: nil speak func")
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fault.Errorf(fault.KindNotFound, "room %s: arbiter closed", a.roomID)
	}
	delete(a.detached, agentID)
	err := a.queue.push(speakRequest{
		agentID:  agentID,
		text:     text,
		enqueued: time.Now(),
		speak:    speak,
	})
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.signal()
	return nil
}

// ForceStop cuts off the agent mid-utterance if it currently holds the
// floor and drops its queued turns. It reports whether the agent was
// speaking.
func (a *Arbiter) ForceStop(agentID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue.drop(agentID)
	if a.current != agentID || a.cancel == nil {
		return false
	}
	a.forced = true
	a.cancel()
	return true
}

// Detach removes an agent from the room's floor: queued turns are dropped,
// an in-flight turn is cancelled, and later stale requests are skipped.
func (a *Arbiter) Detach(agentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue.drop(agentID)
	a.detached[agentID] = true
	if a.current == agentID && a.cancel != nil {
		a.cancel()
	}
}

// CurrentSpeaker returns the agent holding the floor, or "".
func (a *Arbiter) CurrentSpeaker() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// QueueLen returns the number of pending turns.
func (a *Arbiter) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.len()
}

// Close stops the dispatcher, cancelling any in-flight turn and discarding
// the queue. Safe to call more than once.
func (a *Arbiter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	a.signal()
	<-a.done
}

func (a *Arbiter) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Arbiter) dispatch() {
	defer close(a.done)
	for {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return
		}
		req, ok := a.queue.pop()
		if ok && a.detached[req.agentID] {
			a.mu.Unlock()
			continue
		}
		if !ok {
			a.mu.Unlock()
			<-a.wake
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.speakingLimit)
		a.current = req.agentID
		a.cancel = cancel
		a.forced = false
		a.mu.Unlock()

		if a.onStart != nil {
			a.onStart(req.agentID, req.text)
		}
		start := time.Now()
		err := req.speak(ctx)

		a.mu.Lock()
		forced := a.forced
		closed := a.closed
		a.current = ""
		a.cancel = nil
		a.forced = false
		a.mu.Unlock()
		cancel()

		reason := turnReason(ctx, err, forced, closed)
		if reason == event.ReasonError {
			a.log.Warn("speaking turn failed", "agent", req.agentID, "error", err)
		} else {
			a.log.Debug("speaking turn ended",
				"agent", req.agentID, "reason", reason, "duration", time.Since(start))
		}
		if a.onEnd != nil {
			a.onEnd(req.agentID, req.text, reason)
		}
	}
}

// turnReason maps a finished turn onto its end reason. Hitting the speaking
// limit and an explicit stop both count as forced.
func turnReason(ctx context.Context, err error, forced, closed bool) string {
	switch {
	case forced, errors.Is(ctx.Err(), context.DeadlineExceeded):
		return event.ReasonForcedStop
	case closed, errors.Is(err, context.Canceled):
		return event.ReasonCancelled
	case err != nil:
		return event.ReasonError
	default:
		return event.ReasonCompleted
	}
}
