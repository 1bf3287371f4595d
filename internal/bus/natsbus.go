package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/voxroom/voxroom/internal/fault"
)

// outgoing is one buffered publish.
type outgoing struct {
	topic   string
	payload []byte
}

// NATS is the production [Bus] backed by a NATS connection. Publishes are
// decoupled from the network through a bounded queue drained by a single
// writer goroutine, so a slow broker surfaces as [ErrBackpressure] instead of
// blocking the core.
type NATS struct {
	url    string
	buffer int
	log    *slog.Logger

	mu     sync.Mutex
	conn   *nats.Conn
	sendCh chan outgoing
	done   chan struct{}
	closed bool
}

// NewNATS creates an unconnected NATS bus. buffer bounds the publish queue;
// values <= 0 select 64.
func NewNATS(url string, buffer int, log *slog.Logger) *NATS {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &NATS{url: url, buffer: buffer, log: log}
}

// Connect dials the broker and starts the publish drain loop.
func (n *NATS) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNotConnected
	}
	if n.conn != nil {
		return nil
	}

	conn, err := nats.Connect(n.url,
		nats.Name("voxroom"),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(c *nats.Conn) {
			n.log.Info("bus reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.log.Warn("bus disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return fault.Wrap(fault.KindTransportUnavailable, fmt.Sprintf("bus: connect %s", n.url), err)
	}

	n.conn = conn
	n.sendCh = make(chan outgoing, n.buffer)
	n.done = make(chan struct{})
	go n.drain(ctx)
	return nil
}

// drain is the single writer loop feeding buffered publishes to the broker.
func (n *NATS) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case msg, ok := <-n.sendCh:
			if !ok {
				return
			}
			if err := n.conn.Publish(msg.topic, msg.payload); err != nil {
				n.log.Warn("bus publish failed", "topic", msg.topic, "error", err)
			}
		}
	}
}

// Publish enqueues payload for topic without blocking on the network.
func (n *NATS) Publish(topic string, payload []byte) error {
	n.mu.Lock()
	ch := n.sendCh
	connected := n.conn != nil && !n.closed
	n.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	select {
	case ch <- outgoing{topic: topic, payload: payload}:
		return nil
	default:
		return ErrBackpressure
	}
}

// Subscribe registers handler for topic on the broker connection.
func (n *NATS) Subscribe(topic string, handler Handler) (Subscription, error) {
	n.mu.Lock()
	conn := n.conn
	connected := conn != nil && !n.closed
	n.mu.Unlock()

	if !connected {
		return nil, ErrNotConnected
	}

	sub, err := conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindTransportUnavailable, fmt.Sprintf("bus: subscribe %s", topic), err)
	}
	return &natsSubscription{sub: sub}, nil
}

// Close drains pending publishes and tears the connection down.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	if n.conn == nil {
		return nil
	}
	close(n.done)
	err := n.conn.Drain()
	n.conn = nil
	if err != nil {
		return fault.Wrap(fault.KindTransportUnavailable, "bus: drain", err)
	}
	return nil
}

type natsSubscription struct {
	sub  *nats.Subscription
	once sync.Once
	err  error
}

func (s *natsSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.sub.Unsubscribe()
	})
	return s.err
}
