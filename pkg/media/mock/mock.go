// Package mock provides an in-memory test double for media.RoomClient.
//
// The Client tracks join state and hands out loopback producers and
// consumers: packets written to a producer can be inspected by the test, and
// the test can inject inbound packets with PushPacket.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxroom/voxroom/pkg/media"
	"github.com/voxroom/voxroom/pkg/types"
)

// Client is a mock implementation of media.RoomClient.
type Client struct {
	mu sync.Mutex

	// JoinErr, LeaveErr, ProduceErr, ConsumeErr inject failures.
	JoinErr    error
	LeaveErr   error
	ProduceErr error
	ConsumeErr error

	// ParticipantList is returned by Participants.
	ParticipantList []types.Participant

	state         media.State
	roomID        string
	participantID string

	producers []*Producer
	consumers []*Consumer
}

// New creates an idle mock client.
func New() *Client {
	return &Client{state: media.StateIdle}
}

// Join implements media.RoomClient.
func (c *Client) Join(_ context.Context, roomID, participantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.JoinErr != nil {
		return c.JoinErr
	}
	if c.state == media.StateActive {
		return errors.New("mock: already joined")
	}
	if c.state == media.StateClosed {
		return media.ErrUnrecoverable
	}
	c.state = media.StateActive
	c.roomID = roomID
	c.participantID = participantID
	return nil
}

// Leave implements media.RoomClient.
func (c *Client) Leave(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LeaveErr != nil {
		return c.LeaveErr
	}
	if c.state != media.StateActive {
		return errors.New("mock: not joined")
	}
	c.state = media.StateIdle
	c.roomID = ""
	return nil
}

// Produce implements media.RoomClient.
func (c *Client) Produce(context.Context) (media.Producer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ProduceErr != nil {
		return nil, c.ProduceErr
	}
	if c.state != media.StateActive {
		return nil, errors.New("mock: not joined")
	}
	p := &Producer{}
	c.producers = append(c.producers, p)
	return p, nil
}

// Consume implements media.RoomClient.
func (c *Client) Consume(context.Context) (media.Consumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	if c.state != media.StateActive {
		return nil, errors.New("mock: not joined")
	}
	cons := &Consumer{packets: make(chan []byte, 256)}
	c.consumers = append(c.consumers, cons)
	return cons, nil
}

// Participants implements media.RoomClient.
func (c *Client) Participants(context.Context) ([]types.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Participant, len(c.ParticipantList))
	copy(out, c.ParticipantList)
	return out, nil
}

// State implements media.RoomClient.
func (c *Client) State() media.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close implements media.RoomClient.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == media.StateClosed {
		return nil
	}
	c.state = media.StateClosed
	for _, cons := range c.consumers {
		cons.Close()
	}
	return nil
}

// SetState forces the connection state; used to simulate transport failures.
func (c *Client) SetState(s media.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Room returns the joined room id, or "" when idle.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// PushPacket injects one inbound packet into every open consumer.
func (c *Client) PushPacket(packet []byte) {
	c.mu.Lock()
	consumers := make([]*Consumer, len(c.consumers))
	copy(consumers, c.consumers)
	c.mu.Unlock()
	for _, cons := range consumers {
		cons.push(packet)
	}
}

// Producers returns every producer handed out so far.
func (c *Client) Producers() []*Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Producer, len(c.producers))
	copy(out, c.producers)
	return out
}

// Producer is a loopback outbound track.
type Producer struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

// Write implements media.Producer.
func (p *Producer) Write(packet []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("mock: producer is closed")
	}
	buf := make([]byte, len(packet))
	copy(buf, packet)
	p.written = append(p.written, buf)
	return nil
}

// Close implements media.Producer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Written returns every packet written so far.
func (p *Producer) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

// Closed reports whether Close has been called.
func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Consumer is an injectable inbound track.
type Consumer struct {
	mu      sync.Mutex
	packets chan []byte
	closed  bool
}

// Packets implements media.Consumer.
func (cons *Consumer) Packets() <-chan []byte {
	return cons.packets
}

// Close implements media.Consumer.
func (cons *Consumer) Close() error {
	cons.mu.Lock()
	defer cons.mu.Unlock()
	if cons.closed {
		return nil
	}
	cons.closed = true
	close(cons.packets)
	return nil
}

func (cons *Consumer) push(packet []byte) {
	cons.mu.Lock()
	defer cons.mu.Unlock()
	if cons.closed {
		return
	}
	select {
	case cons.packets <- packet:
	default:
	}
}

// Ensure the mocks implement the interfaces at compile time.
var (
	_ media.RoomClient = (*Client)(nil)
	_ media.Producer   = (*Producer)(nil)
	_ media.Consumer   = (*Consumer)(nil)
)
