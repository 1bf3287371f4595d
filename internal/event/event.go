// Package event provides the typed in-process event stream that keeps
// observers in sync with the voxroom core.
//
// The [Emitter] fans every published [Event] out to all subscribers. Each
// subscriber owns a bounded channel; when a subscriber falls behind, the
// oldest undelivered event is dropped so that a slow observer can never stall
// the core. Events are emitted after the state change they describe has been
// committed.
package event

import (
	"sync"
	"time"
)

// Type enumerates every event the core emits.
type Type string

const (
	AgentCreated       Type = "agent.created"
	AgentDeleted       Type = "agent.deleted"
	AgentStatusChanged Type = "agent.status-changed"
	AgentUpdated       Type = "agent.updated"
	AgentSpeakingStart Type = "agent.speaking.start"
	AgentSpeakingEnd   Type = "agent.speaking.end"
	RoomJoined         Type = "room.joined"
	RoomLeft           Type = "room.left"
	ConversationMsg    Type = "conversation.message"
	TranscriptionUpd   Type = "transcription.update"
)

// Reason values carried by [AgentSpeakingEnd] events.
const (
	ReasonCompleted  = "completed"
	ReasonForcedStop = "forced-stop"
	ReasonCancelled  = "cancelled"
	ReasonError      = "error"
)

// Event is a single observer notification. Identity fields that do not apply
// to a given type are left empty.
type Event struct {
	Type    Type      `json:"type"`
	AgentID string    `json:"agent_id,omitempty"`
	RoomID  string    `json:"room_id,omitempty"`
	Text    string    `json:"text,omitempty"`
	Status  string    `json:"status,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	TS      time.Time `json:"ts"`
}

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 128

// Emitter fans events out to subscribers. All methods are safe for
// concurrent use. The zero value is not usable; call [NewEmitter].
type Emitter struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
	closed bool
}

// NewEmitter creates an Emitter whose subscribers buffer up to buffer events.
// buffer <= 0 selects the default of 128.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Emitter{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscription is a handle for one observer. Close the subscription (via
// [Emitter.Unsubscribe]) when done; the Events channel is closed then.
type Subscription struct {
	id      int
	C       <-chan Event
	emitter *Emitter
}

// Close detaches the subscription from its emitter.
func (s *Subscription) Close() {
	s.emitter.Unsubscribe(s.id)
}

// Subscribe registers a new observer and returns its subscription.
// Subscribing on a closed emitter returns a subscription whose channel is
// already closed.
func (e *Emitter) Subscribe() *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Event, e.buffer)
	if e.closed {
		close(ch)
		return &Subscription{id: -1, C: ch, emitter: e}
	}

	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	return &Subscription{id: id, C: ch, emitter: e}
}

// Unsubscribe removes the observer with the given id and closes its channel.
// Unknown ids are ignored.
func (e *Emitter) Unsubscribe(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.subs[id]
	if !ok {
		return
	}
	delete(e.subs, id)
	close(ch)
}

// Emit delivers ev to every subscriber. When a subscriber's buffer is full the
// oldest undelivered event is discarded to make room, so Emit never blocks.
func (e *Emitter) Emit(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	for _, ch := range e.subs {
		for {
			select {
			case ch <- ev:
			default:
				// Full — drop the oldest and retry once.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the emitter down and closes all subscriber channels.
// Emit becomes a no-op afterwards.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}
