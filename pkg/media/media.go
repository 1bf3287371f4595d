// Package media defines the boundary to the real-time media transport that
// hosts voice rooms. A RoomClient represents one participant connection: it
// joins a room, produces an outbound audio track, and consumes the room's
// mixed inbound audio.
//
// Transient transport failures are handled inside the client with bounded
// reconnection; callers only see [fault.KindMediaUnrecoverable] once the
// connection is beyond repair and the participant must be torn down.
package media

import (
	"context"

	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/pkg/types"
)

// State of a RoomClient connection.
type State int

const (
	// StateIdle is a client that has not joined a room yet.
	StateIdle State = iota
	// StateActive is a joined, healthy connection.
	StateActive
	// StateReconnecting is a joined client riding out a transient drop.
	StateReconnecting
	// StateClosed is terminal, reached by Close or after reconnection gives
	// up.
	StateClosed
)

// String returns the lowercase wire name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrUnrecoverable is returned once a client's connection cannot be repaired.
var ErrUnrecoverable = fault.New(fault.KindMediaUnrecoverable, "media: connection unrecoverable")

// Producer is an outbound audio track. Write delivers one Opus packet.
type Producer interface {
	// Write sends one encoded packet to the room.
	Write(packet []byte) error

	// Close stops the track. Safe to call more than once.
	Close() error
}

// Consumer is an inbound audio subscription. Packets delivers the room's
// Opus packets; the channel is closed when the consumer stops.
type Consumer interface {
	// Packets is the inbound packet stream.
	Packets() <-chan []byte

	// Close stops the subscription. Safe to call more than once.
	Close() error
}

// RoomClient is one participant connection to the media transport.
//
// Implementations must be safe for concurrent use.
type RoomClient interface {
	// Join enters the room as participantID. A client joins at most one
	// room; joining again without leaving fails.
	Join(ctx context.Context, roomID, participantID string) error

	// Leave exits the current room, stopping all producers and consumers.
	Leave(ctx context.Context) error

	// Produce opens an outbound audio track.
	Produce(ctx context.Context) (Producer, error)

	// Consume subscribes to the room's mixed inbound audio.
	Consume(ctx context.Context) (Consumer, error)

	// Participants lists who is currently in the joined room.
	Participants(ctx context.Context) ([]types.Participant, error)

	// State reports the connection state.
	State() State

	// Close tears the connection down. Terminal.
	Close() error
}
