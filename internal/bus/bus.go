// Package bus defines the topic-addressed publish/subscribe boundary that
// carries control commands into the voxroom core and fans events out to other
// processes.
//
// Delivery is at-least-once with no cross-topic ordering guarantee. Payloads
// are opaque bytes; the envelopes in this package define the small set of
// JSON shapes the core encodes and decodes. The bus is the inter-process
// surface only — in-process communication uses [internal/event].
//
// Two implementations ship with voxroom: [NATS] for production and [Inproc]
// as a test double with identical semantics.
package bus

import (
	"context"

	"github.com/voxroom/voxroom/internal/fault"
)

// Control topics consumed by the agent manager.
const (
	TopicAgentCreate        = "agent.create"
	TopicAgentDelete        = "agent.delete"
	TopicAgentJoinRoom      = "agent.join-room"
	TopicAgentLeaveRoom     = "agent.leave-room"
	TopicAgentSpeak         = "agent.speak"
	TopicAgentStopSpeak     = "agent.stop-speak"
	TopicTranscriptionFinal = "transcription.final"
)

// Event topics emitted by the agent manager.
const (
	TopicAgentCreated        = "agent.created"
	TopicAgentDeleted        = "agent.deleted"
	TopicAgentStatusChanged  = "agent.status-changed"
	TopicAgentSpeakingStart  = "agent.speaking.start"
	TopicAgentSpeakingEnd    = "agent.speaking.end"
	TopicConversationMessage = "conversation.message"
	TopicTranscriptionUpdate = "transcription.update"
	TopicRoomJoined          = "room.joined"
	TopicRoomLeft            = "room.left"
)

// ErrNotConnected is returned when the underlying transport is down.
var ErrNotConnected = fault.New(fault.KindTransportUnavailable, "bus: not connected")

// ErrBackpressure is returned by Publish when the outgoing buffer is full.
var ErrBackpressure = fault.New(fault.KindBusy, "bus: publish buffer full")

// Handler consumes one delivered message. Handlers run on the bus's delivery
// context; they must not block for long or hold core locks.
type Handler func(topic string, payload []byte)

// Subscription identifies an active topic subscription.
type Subscription interface {
	// Unsubscribe detaches the handler. Safe to call more than once.
	Unsubscribe() error
}

// Bus is the pub/sub transport boundary.
//
// Implementations must be safe for concurrent use.
type Bus interface {
	// Connect establishes the underlying transport connection.
	Connect(ctx context.Context) error

	// Publish enqueues payload for delivery on topic. It never blocks on the
	// network: messages are buffered up to a small bound, beyond which
	// [ErrBackpressure] is returned. Returns [ErrNotConnected] when the
	// transport is down.
	Publish(topic string, payload []byte) error

	// Subscribe registers handler for topic and returns the subscription
	// handle. Returns [ErrNotConnected] when the transport is down.
	Subscribe(topic string, handler Handler) (Subscription, error)

	// Close tears the connection down and detaches all subscriptions.
	Close() error
}
