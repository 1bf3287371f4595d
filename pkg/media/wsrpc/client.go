// Package wsrpc implements media.RoomClient over a WebSocket JSON-RPC
// transport. Audio packets ride the same socket as control calls,
// base64-encoded inside notifications, which keeps the SFU protocol to a
// single connection per participant.
//
// The client supervises its own connection: a dropped socket triggers a
// bounded reconnect that re-joins the room and re-advertises every live
// producer and consumer. Only after the attempts are exhausted does the
// client fail over to [media.ErrUnrecoverable].
package wsrpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/pkg/media"
	"github.com/voxroom/voxroom/pkg/types"
)

// Wire method names.
const (
	methodJoin         = "room.join"
	methodLeave        = "room.leave"
	methodParticipants = "room.participants"
	methodProduce      = "track.produce"
	methodConsume      = "track.consume"
	methodTrackStop    = "track.stop"
	methodAudioSend    = "audio.send"
	methodAudioPacket  = "audio.packet"
)

const (
	defaultCallTimeout       = 10 * time.Second
	defaultReconnectAttempts = 5
	reconnectBaseDelay       = 250 * time.Millisecond
	consumerBuffer           = 256
)

// message is the single JSON frame shape: request, response, or
// notification, distinguished by which fields are set.
type message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("wsrpc: remote error %d: %s", e.Code, e.Message)
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithReconnectAttempts bounds the reconnect loop. Zero disables
// reconnection entirely; any drop is then unrecoverable.
func WithReconnectAttempts(n int) Option {
	return func(c *Client) {
		c.maxReconnects = n
	}
}

// WithCallTimeout bounds each RPC round trip.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = d
	}
}

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client implements media.RoomClient over a WebSocket JSON-RPC connection.
type Client struct {
	url           string
	callTimeout   time.Duration
	maxReconnects int
	log           *slog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	state         media.State
	roomID        string
	participantID string
	nextID        int64
	pending       map[int64]chan message
	producers     map[string]*producer
	consumers     map[string]*consumer
	readerCtx     context.Context
	readerCancel  context.CancelFunc
}

// New creates an unjoined client for the given SFU URL.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:           url,
		callTimeout:   defaultCallTimeout,
		maxReconnects: defaultReconnectAttempts,
		log:           slog.Default(),
		state:         media.StateIdle,
		pending:       make(map[int64]chan message),
		producers:     make(map[string]*producer),
		consumers:     make(map[string]*consumer),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Join implements media.RoomClient.
func (c *Client) Join(ctx context.Context, roomID, participantID string) error {
	c.mu.Lock()
	switch c.state {
	case media.StateClosed:
		c.mu.Unlock()
		return media.ErrUnrecoverable
	case media.StateActive, media.StateReconnecting:
		c.mu.Unlock()
		return fault.Errorf(fault.KindAlreadyExists, "wsrpc: already joined room %s", c.roomID)
	}
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fault.Wrap(fault.KindTransportUnavailable, fmt.Sprintf("wsrpc: dial %s", c.url), err)
	}

	readerCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.roomID = roomID
	c.participantID = participantID
	c.readerCtx = readerCtx
	c.readerCancel = cancel
	c.state = media.StateActive
	c.mu.Unlock()

	go c.readLoop(conn, readerCtx)

	if _, err := c.call(ctx, methodJoin, map[string]string{
		"room":        roomID,
		"participant": participantID,
	}); err != nil {
		c.teardown()
		return err
	}
	return nil
}

// Leave implements media.RoomClient.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.state != media.StateActive && c.state != media.StateReconnecting {
		c.mu.Unlock()
		return fault.New(fault.KindInvalidArgument, "wsrpc: not joined")
	}
	c.mu.Unlock()

	_, err := c.call(ctx, methodLeave, nil)
	c.teardown()
	return err
}

// Produce implements media.RoomClient.
func (c *Client) Produce(ctx context.Context) (media.Producer, error) {
	if err := c.requireActive(); err != nil {
		return nil, err
	}

	result, err := c.call(ctx, methodProduce, nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Track string `json:"track"`
	}
	if err := json.Unmarshal(result, &res); err != nil || res.Track == "" {
		return nil, fault.New(fault.KindTransportUnavailable, "wsrpc: produce: malformed result")
	}

	p := &producer{client: c, track: res.Track}
	c.mu.Lock()
	c.producers[res.Track] = p
	c.mu.Unlock()
	return p, nil
}

// Consume implements media.RoomClient.
func (c *Client) Consume(ctx context.Context) (media.Consumer, error) {
	if err := c.requireActive(); err != nil {
		return nil, err
	}

	result, err := c.call(ctx, methodConsume, nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Track string `json:"track"`
	}
	if err := json.Unmarshal(result, &res); err != nil || res.Track == "" {
		return nil, fault.New(fault.KindTransportUnavailable, "wsrpc: consume: malformed result")
	}

	cons := &consumer{client: c, track: res.Track, packets: make(chan []byte, consumerBuffer)}
	c.mu.Lock()
	c.consumers[res.Track] = cons
	c.mu.Unlock()
	return cons, nil
}

// Participants implements media.RoomClient.
func (c *Client) Participants(ctx context.Context) ([]types.Participant, error) {
	if err := c.requireActive(); err != nil {
		return nil, err
	}

	result, err := c.call(ctx, methodParticipants, nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Participants []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"participants"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fault.Wrap(fault.KindTransportUnavailable, "wsrpc: participants: malformed result", err)
	}

	out := make([]types.Participant, 0, len(res.Participants))
	for _, p := range res.Participants {
		kind := types.ParticipantHuman
		if p.Kind == string(types.ParticipantAgent) {
			kind = types.ParticipantAgent
		}
		out = append(out, types.Participant{ID: p.ID, Kind: kind})
	}
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
	c.teardown()
	return nil
}

// requireActive rejects calls unless the connection is healthy.
func (c *Client) requireActive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case media.StateActive:
		return nil
	case media.StateReconnecting:
		return fault.New(fault.KindTransportUnavailable, "wsrpc: reconnecting")
	case media.StateClosed:
		return media.ErrUnrecoverable
	default:
		return fault.New(fault.KindInvalidArgument, "wsrpc: not joined")
	}
}

// call performs one RPC round trip.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.state == media.StateClosed {
		c.mu.Unlock()
		return nil, media.ErrUnrecoverable
	}
	c.nextID++
	id := c.nextID
	ch := make(chan message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := message{ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("wsrpc: marshal params: %w", err)
		}
		req.Params = raw
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := c.write(ctx, req); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fault.Wrap(fault.KindTransportUnavailable, "wsrpc: "+method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fault.Wrap(fault.KindTransportUnavailable, "wsrpc: "+method, ctx.Err())
	}
}

// notify sends a one-way message with no response expected.
func (c *Client) notify(ctx context.Context, method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("wsrpc: marshal params: %w", err)
	}
	return c.write(ctx, message{Method: method, Params: raw})
}

func (c *Client) write(ctx context.Context, msg message) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state == media.StateClosed {
		return media.ErrUnrecoverable
	}
	if state == media.StateReconnecting {
		return fault.New(fault.KindTransportUnavailable, "wsrpc: reconnecting")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("wsrpc: marshal message: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fault.Wrap(fault.KindTransportUnavailable, "wsrpc: write", err)
	}
	return nil
}

// readLoop dispatches inbound frames until the socket drops, then hands off
// to the reconnect supervisor.
func (c *Client) readLoop(conn *websocket.Conn, ctx context.Context) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.onDisconnect(conn)
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("media client: malformed frame", "error", err)
			continue
		}

		if msg.ID != 0 && msg.Method == "" {
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		if msg.Method == methodAudioPacket {
			c.dispatchAudio(msg.Params)
		}
	}
}

// dispatchAudio routes one inbound packet to its consumer. A slow consumer
// loses the oldest packet rather than stalling the socket reader.
func (c *Client) dispatchAudio(params json.RawMessage) {
	var p struct {
		Track string `json:"track"`
		Data  string `json:"data"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	packet, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return
	}

	c.mu.Lock()
	cons, ok := c.consumers[p.Track]
	c.mu.Unlock()
	if !ok {
		return
	}

	cons.mu.Lock()
	defer cons.mu.Unlock()
	if cons.closed {
		return
	}
	for {
		select {
		case cons.packets <- packet:
			return
		default:
			select {
			case <-cons.packets:
			default:
			}
		}
	}
}

// onDisconnect runs the bounded reconnect loop for a dropped socket.
func (c *Client) onDisconnect(dropped *websocket.Conn) {
	c.mu.Lock()
	if c.state == media.StateClosed || c.conn != dropped {
		// Deliberate teardown, or an older socket's reader finishing late.
		c.mu.Unlock()
		return
	}
	c.state = media.StateReconnecting
	room, participant := c.roomID, c.participantID
	attempts := c.maxReconnects
	c.failPendingLocked()
	c.mu.Unlock()

	c.log.Warn("media client: connection dropped, reconnecting",
		"room", room, "attempts", attempts)

	for attempt := 1; attempt <= attempts; attempt++ {
		time.Sleep(reconnectBaseDelay * time.Duration(attempt))

		if c.State() == media.StateClosed {
			return
		}
		if err := c.redial(room, participant); err != nil {
			c.log.Warn("media client: reconnect failed",
				"attempt", attempt, "error", err)
			continue
		}
		c.log.Info("media client: reconnected", "room", room, "attempt", attempt)
		return
	}

	c.log.Error("media client: reconnect attempts exhausted", "room", room)
	c.teardown()
}

// redial dials a fresh socket, re-joins, and re-advertises live tracks.
func (c *Client) redial(room, participant string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}

	readerCtx, readerCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.state == media.StateClosed {
		c.mu.Unlock()
		readerCancel()
		conn.Close(websocket.StatusNormalClosure, "closed during reconnect")
		return errors.New("closed during reconnect")
	}
	if c.readerCancel != nil {
		c.readerCancel()
	}
	c.conn = conn
	c.readerCtx = readerCtx
	c.readerCancel = readerCancel
	c.state = media.StateActive
	producers := make([]*producer, 0, len(c.producers))
	for _, p := range c.producers {
		producers = append(producers, p)
	}
	consumers := make([]*consumer, 0, len(c.consumers))
	for _, cons := range c.consumers {
		consumers = append(consumers, cons)
	}
	c.mu.Unlock()

	go c.readLoop(conn, readerCtx)

	if _, err := c.call(ctx, methodJoin, map[string]string{
		"room":        room,
		"participant": participant,
	}); err != nil {
		return err
	}

	// Re-advertise tracks under their new server-side ids.
	for _, p := range producers {
		result, err := c.call(ctx, methodProduce, nil)
		if err != nil {
			return err
		}
		var res struct {
			Track string `json:"track"`
		}
		if err := json.Unmarshal(result, &res); err != nil {
			return err
		}
		c.retrack(p, res.Track)
	}
	for _, cons := range consumers {
		result, err := c.call(ctx, methodConsume, nil)
		if err != nil {
			return err
		}
		var res struct {
			Track string `json:"track"`
		}
		if err := json.Unmarshal(result, &res); err != nil {
			return err
		}
		c.reconsume(cons, res.Track)
	}
	return nil
}

func (c *Client) retrack(p *producer, track string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.producers, p.track)
	p.track = track
	c.producers[track] = p
}

func (c *Client) reconsume(cons *consumer, track string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.consumers, cons.track)
	cons.track = track
	c.consumers[track] = cons
}

// failPendingLocked aborts all in-flight calls. Caller holds c.mu.
func (c *Client) failPendingLocked() {
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- message{ID: id, Error: &rpcError{Code: -1, Message: "connection lost"}}
	}
}

// teardown moves the client to the terminal closed state.
func (c *Client) teardown() {
	c.mu.Lock()
	if c.state == media.StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = media.StateClosed
	conn := c.conn
	c.conn = nil
	if c.readerCancel != nil {
		c.readerCancel()
	}
	c.failPendingLocked()
	consumers := c.consumers
	c.consumers = make(map[string]*consumer)
	c.producers = make(map[string]*producer)
	c.mu.Unlock()

	for _, cons := range consumers {
		cons.closeChannel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
}

// producer is an outbound track handle.
type producer struct {
	client *Client
	mu     sync.Mutex
	track  string
	closed bool
}

// Write implements media.Producer.
func (p *producer) Write(packet []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("wsrpc: producer is closed")
	}
	track := p.track
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.client.callTimeout)
	defer cancel()
	return p.client.notify(ctx, methodAudioSend, map[string]string{
		"track": track,
		"data":  base64.StdEncoding.EncodeToString(packet),
	})
}

// Close implements media.Producer.
func (p *producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	track := p.track
	p.mu.Unlock()

	p.client.mu.Lock()
	delete(p.client.producers, track)
	p.client.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.client.callTimeout)
	defer cancel()
	_, err := p.client.call(ctx, methodTrackStop, map[string]string{"track": track})
	if errors.Is(err, media.ErrUnrecoverable) {
		// Track died with the connection; nothing to stop.
		return nil
	}
	return err
}

// consumer is an inbound track handle.
type consumer struct {
	client  *Client
	packets chan []byte

	mu     sync.Mutex
	track  string
	closed bool
}

// Packets implements media.Consumer.
func (cons *consumer) Packets() <-chan []byte {
	return cons.packets
}

// Close implements media.Consumer.
func (cons *consumer) Close() error {
	cons.mu.Lock()
	if cons.closed {
		cons.mu.Unlock()
		return nil
	}
	cons.closed = true
	track := cons.track
	cons.mu.Unlock()

	cons.client.mu.Lock()
	delete(cons.client.consumers, track)
	cons.client.mu.Unlock()
	close(cons.packets)

	ctx, cancel := context.WithTimeout(context.Background(), cons.client.callTimeout)
	defer cancel()
	_, err := cons.client.call(ctx, methodTrackStop, map[string]string{"track": track})
	if errors.Is(err, media.ErrUnrecoverable) {
		return nil
	}
	return err
}

// closeChannel closes the packet channel without a server round trip; used
// during teardown.
func (cons *consumer) closeChannel() {
	cons.mu.Lock()
	defer cons.mu.Unlock()
	if cons.closed {
		return
	}
	cons.closed = true
	close(cons.packets)
}

// Ensure Client implements media.RoomClient at compile time.
var _ media.RoomClient = (*Client)(nil)
