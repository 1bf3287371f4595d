package bus

import (
	"context"
	"sync"
)

// Inproc is an in-memory [Bus] with the same semantics as [NATS]: buffered
// non-blocking publish, per-topic fan-out, at-least-once delivery within the
// process. It backs tests and single-binary deployments without a broker.
type Inproc struct {
	buffer int

	mu        sync.Mutex
	connected bool
	closed    bool
	subs      map[string]map[int]Handler
	nextID    int
	sendCh    chan outgoing
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewInproc creates an unconnected in-process bus. buffer bounds the publish
// queue; values <= 0 select 64.
func NewInproc(buffer int) *Inproc {
	if buffer <= 0 {
		buffer = 64
	}
	return &Inproc{
		buffer: buffer,
		subs:   make(map[string]map[int]Handler),
	}
}

// Connect starts the delivery loop.
func (b *Inproc) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrNotConnected
	}
	if b.connected {
		return nil
	}
	b.connected = true
	b.sendCh = make(chan outgoing, b.buffer)
	b.done = make(chan struct{})
	b.wg.Add(1)
	go b.deliver(ctx)
	return nil
}

func (b *Inproc) deliver(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			// Flush what is already queued before exiting.
			for {
				select {
				case msg := <-b.sendCh:
					b.dispatch(msg)
				default:
					return
				}
			}
		case msg := <-b.sendCh:
			b.dispatch(msg)
		}
	}
}

func (b *Inproc) dispatch(msg outgoing) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[msg.topic]))
	for _, h := range b.subs[msg.topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg.topic, msg.payload)
	}
}

// Publish enqueues payload for topic.
func (b *Inproc) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	ch := b.sendCh
	connected := b.connected && !b.closed
	b.mu.Unlock()

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

// Subscribe registers handler for topic.
func (b *Inproc) Subscribe(topic string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected || b.closed {
		return nil, ErrNotConnected
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = handler
	return &inprocSubscription{bus: b, topic: topic, id: id}, nil
}

// Close flushes queued publishes and detaches all subscriptions.
func (b *Inproc) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	started := b.connected
	if started {
		close(b.done)
	}
	b.mu.Unlock()

	if started {
		b.wg.Wait()
	}

	b.mu.Lock()
	b.subs = make(map[string]map[int]Handler)
	b.mu.Unlock()
	return nil
}

type inprocSubscription struct {
	bus   *Inproc
	topic string
	id    int
	once  sync.Once
}

func (s *inprocSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if hs, ok := s.bus.subs[s.topic]; ok {
			delete(hs, s.id)
		}
	})
	return nil
}
