package manager

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxroom/voxroom/internal/agent"
	"github.com/voxroom/voxroom/internal/event"
	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/internal/room"
	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/media"
	"github.com/voxroom/voxroom/pkg/provider/stt"
	"github.com/voxroom/voxroom/pkg/types"
)

// packetInterval paces outbound Opus packets at the room frame rate.
const packetInterval = audio.OpusFrameSizeMs * time.Millisecond

// binding is one agent's live presence in a room: the media client, both
// audio pipelines, and the recognition stream, plus the pump goroutines
// moving data between them.
type binding struct {
	roomID string
	client media.RoomClient
	prod   media.Producer
	cons   media.Consumer
	stream stt.Stream

	ingress *audio.Ingress
	egress  *audio.Egress
	stats   *audio.Stats

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// AttachOptions tunes one attach. The zero value is a plain attach.
type AttachOptions struct {
	// Language is the BCP-47 recognition language for this binding. Empty
	// selects the recognizer default.
	Language string

	// Greeting is queued as the agent's first utterance once the attach
	// succeeds. A queue failure is logged, not fatal.
	Greeting string
}

// Attach binds an agent into a room: join the media session, open producer,
// consumer, and recognition stream, and start the pipeline pumps. Setup is
// atomic; any failure rolls the whole binding back.
func (m *Manager) Attach(ctx context.Context, agentID, roomID string) error {
	return m.AttachWithOptions(ctx, agentID, roomID, AttachOptions{})
}

// AttachWithOptions is Attach with per-binding tuning.
func (m *Manager) AttachWithOptions(ctx context.Context, agentID, roomID string, opts AttachOptions) error {
	if roomID == "" {
		return fault.New(fault.KindInvalidArgument, "manager: room id must not be empty")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fault.New(fault.KindNotFound, "manager: closed")
	}
	mg, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return fault.Errorf(fault.KindNotFound, "manager: agent %s not found", agentID)
	}
	if mg.roomID == roomID {
		m.mu.Unlock()
		return fault.Errorf(fault.KindAlreadyExists, "manager: agent %s already attached to room %s", agentID, roomID)
	}
	if mg.roomID != "" {
		m.mu.Unlock()
		return fault.Errorf(fault.KindAlreadyExists, "manager: agent %s is attached to room %s", agentID, mg.roomID)
	}

	rs, created := m.rooms[roomID], false
	if rs == nil {
		rs = m.newRoomState(roomID)
		m.rooms[roomID] = rs
		created = true
	} else if len(rs.members) >= m.limits.RoomAgentCap {
		m.mu.Unlock()
		return fault.Errorf(fault.KindCapacityExceeded,
			"manager: room %s agent cap reached (%d)", roomID, m.limits.RoomAgentCap)
	}

	// Reserve the slot so concurrent attaches see the caps; the network
	// setup below runs unlocked against this reservation.
	mg.roomID = roomID
	rs.members[agentID] = mg
	m.mu.Unlock()

	b, err := m.bind(ctx, mg, rs, opts)
	if err != nil {
		m.mu.Lock()
		delete(rs.members, agentID)
		mg.roomID = ""
		empty := len(rs.members) == 0
		if empty {
			delete(m.rooms, roomID)
		}
		m.mu.Unlock()
		if empty {
			rs.arbiter.Close()
		}
		return err
	}

	m.mu.Lock()
	// The reservation may have been torn down by Close while we were binding.
	if m.closed || mg.roomID != roomID {
		m.mu.Unlock()
		b.close(ctx, m.log)
		return fault.New(fault.KindNotFound, "manager: closed during attach")
	}
	mg.binding = b
	m.mu.Unlock()

	mg.agent.SetStatus(agent.StatusListening)
	m.log.Info("agent attached", "agent", agentID, "room", roomID)
	m.emit(event.Event{Type: event.RoomJoined, AgentID: agentID, RoomID: roomID})
	if m.metrics != nil {
		m.metrics.ActiveBindings.Add(context.Background(), 1)
		if created {
			m.metrics.ActiveRooms.Add(context.Background(), 1)
		}
	}
	if opts.Greeting != "" {
		if err := m.RequestSpeak(agentID, opts.Greeting); err != nil {
			m.log.Warn("greeting dropped", "agent", agentID, "room", roomID, "error", err)
		}
	}
	return nil
}

// Detach removes an agent from its room, tearing the binding down and
// dropping its queued turns.
func (m *Manager) Detach(ctx context.Context, agentID string) error {
	m.mu.Lock()
	mg, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return fault.Errorf(fault.KindNotFound, "manager: agent %s not found", agentID)
	}
	roomID := mg.roomID
	if roomID == "" {
		m.mu.Unlock()
		return fault.Errorf(fault.KindNotFound, "manager: agent %s is not attached", agentID)
	}
	rs := m.rooms[roomID]
	b := mg.binding
	mg.binding = nil
	mg.roomID = ""
	delete(rs.members, agentID)
	empty := len(rs.members) == 0
	if empty {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()

	rs.arbiter.Detach(agentID)
	mg.agent.ClearSpeech()
	if b != nil {
		b.close(ctx, m.log)
	}
	if empty {
		rs.arbiter.Close()
	}

	mg.agent.SetStatus(agent.StatusIdle)
	m.log.Info("agent detached", "agent", agentID, "room", roomID)
	m.emit(event.Event{Type: event.RoomLeft, AgentID: agentID, RoomID: roomID})
	if m.metrics != nil {
		m.metrics.ActiveBindings.Add(context.Background(), -1)
		if empty {
			m.metrics.ActiveRooms.Add(context.Background(), -1)
		}
	}
	return nil
}

// newRoomState creates the arbiter and log for a room. Caller holds m.mu.
func (m *Manager) newRoomState(roomID string) *roomState {
	rs := &roomState{
		id:      roomID,
		log:     room.NewLog(m.limits.ConversationLogCap),
		members: make(map[string]*managed),
	}
	rs.arbiter = room.NewArbiter(roomID,
		room.WithQueueCap(m.limits.TurnQueueCap),
		room.WithSpeakingLimit(m.limits.SpeakingTimeLimit),
		room.WithStartCallback(m.onTurnStart(rs)),
		room.WithEndCallback(m.onTurnEnd(rs)),
		room.WithArbiterLogger(m.log),
	)
	return rs
}

// onTurnStart marks the speaker and logs the utterance.
func (m *Manager) onTurnStart(rs *roomState) func(agentID, text string) {
	return func(agentID, text string) {
		m.mu.Lock()
		rs.turnStart = time.Now()
		var a *agent.Agent
		if mg, ok := m.agents[agentID]; ok {
			a = mg.agent
		}
		m.mu.Unlock()

		if a != nil {
			a.SetStatus(agent.StatusSpeaking)
		}
		rs.log.Append(room.LogEntry{
			Origin:     agentID,
			Kind:       types.ParticipantAgent,
			Text:       text,
			Confidence: 1,
		})
		// The conversation entry goes out before the speaking notification so
		// observers always see what is said before they see who holds the floor.
		m.emit(event.Event{Type: event.ConversationMsg, AgentID: agentID, RoomID: rs.id, Text: text})
		m.emit(event.Event{Type: event.AgentSpeakingStart, AgentID: agentID, RoomID: rs.id, Text: text})
	}
}

// onTurnEnd restores the speaker to listening and records the outcome. A
// forced stop leaves a marker in the conversation log.
func (m *Manager) onTurnEnd(rs *roomState) room.EndCallback {
	return func(agentID, _, reason string) {
		m.mu.Lock()
		started := rs.turnStart
		var a *agent.Agent
		if mg, ok := m.agents[agentID]; ok && mg.roomID == rs.id {
			a = mg.agent
		}
		m.mu.Unlock()

		if a != nil {
			a.SetStatus(agent.StatusListening)
		}
		if reason == event.ReasonForcedStop {
			rs.log.Append(room.LogEntry{
				Origin:     agentID,
				Kind:       types.ParticipantAgent,
				Text:       "forced-stop",
				Confidence: 1,
			})
		}
		m.emit(event.Event{Type: event.AgentSpeakingEnd, AgentID: agentID, RoomID: rs.id, Reason: reason})
		if m.metrics != nil && !started.IsZero() {
			m.metrics.RecordUtterance(context.Background(), agentID, reason, time.Since(started).Seconds())
		}
	}
}

// bind performs the network half of an attach.
func (m *Manager) bind(ctx context.Context, mg *managed, rs *roomState, opts AttachOptions) (*binding, error) {
	if m.deps.DialMedia == nil {
		return nil, fault.New(fault.KindProviderUnavailable, "manager: no media dialer configured")
	}
	if m.deps.Recognizer == nil {
		return nil, fault.New(fault.KindProviderUnavailable, "manager: no recognizer configured")
	}

	client, err := m.deps.DialMedia(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransportUnavailable, "manager: dial media", err)
	}
	if err := client.Join(ctx, rs.id, mg.agent.ID()); err != nil {
		client.Close()
		return nil, err
	}
	prod, err := client.Produce(ctx)
	if err != nil {
		client.Leave(ctx)
		client.Close()
		return nil, err
	}
	cons, err := client.Consume(ctx)
	if err != nil {
		prod.Close()
		client.Leave(ctx)
		client.Close()
		return nil, err
	}

	stream, err := m.deps.Recognizer.OpenStream(ctx, stt.StreamConfig{
		SessionID:  rs.id + "-" + mg.agent.ID(),
		Language:   opts.Language,
		SampleRate: audio.STTFormat.SampleRate,
	})
	if err != nil {
		cons.Close()
		prod.Close()
		client.Leave(ctx)
		client.Close()
		return nil, err
	}

	stats := &audio.Stats{}
	ingress, err := audio.NewIngress(m.pipeline.IngressBucket, m.pipeline.VADThreshold, stats)
	if err == nil {
		var egress *audio.Egress
		egress, err = audio.NewEgress(stats)
		if err == nil {
			b := &binding{
				roomID:  rs.id,
				client:  client,
				prod:    prod,
				cons:    cons,
				stream:  stream,
				ingress: ingress,
				egress:  egress,
				stats:   stats,
			}
			m.startPumps(b, mg, rs)
			return b, nil
		}
		ingress.Close()
	}
	stream.Close()
	cons.Close()
	prod.Close()
	client.Leave(ctx)
	client.Close()
	return nil, err
}

// startPumps wires the four pipeline goroutines of a binding.
func (m *Manager) startPumps(b *binding, mg *managed, rs *roomState) {
	pctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.eg, _ = errgroup.WithContext(pctx)

	// Inbound packets into the ingress pipeline.
	b.eg.Go(func() error {
		for {
			select {
			case <-pctx.Done():
				return nil
			case packet, ok := <-b.cons.Packets():
				if !ok {
					return nil
				}
				if err := b.ingress.Push(packet); err != nil {
					m.log.Debug("ingress packet dropped", "room", b.roomID, "error", err)
				}
			}
		}
	})

	// Speech-gated buckets into the recognizer.
	b.eg.Go(func() error {
		for {
			select {
			case <-pctx.Done():
				return nil
			case bucket, ok := <-b.ingress.Out():
				if !ok {
					return nil
				}
				if !bucket.IsVoice {
					continue
				}
				if err := b.stream.SendAudio(bucket.PCM); err != nil {
					m.log.Warn("stt send failed", "room", b.roomID, "error", err)
				}
			}
		}
	})

	// Transcripts out of the recognizer. Exits when the stream closes.
	b.eg.Go(func() error {
		for tr := range b.stream.Results() {
			m.onTranscript(rs, tr)
		}
		return nil
	})

	// Outbound packets to the media producer, paced at the frame rate.
	b.eg.Go(func() error {
		ticker := time.NewTicker(packetInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pctx.Done():
				return nil
			case packet, ok := <-b.egress.Out():
				if !ok {
					return nil
				}
				select {
				case <-pctx.Done():
					return nil
				case <-ticker.C:
				}
				if err := b.prod.Write(packet); err != nil {
					m.onProducerFailure(rs, mg, err)
					if errors.Is(err, media.ErrUnrecoverable) {
						return nil
					}
				}
			}
		}
	})
}

// onProducerFailure implements the media-failure turn semantics: the current
// turn is cut off; an unrecoverable transport additionally tears the binding
// down.
func (m *Manager) onProducerFailure(rs *roomState, mg *managed, err error) {
	m.log.Warn("producer write failed", "room", rs.id, "agent", mg.agent.ID(), "error", err)
	if speaker := rs.arbiter.CurrentSpeaker(); speaker != "" {
		rs.arbiter.ForceStop(speaker)
	}
	if errors.Is(err, media.ErrUnrecoverable) {
		go func() {
			if derr := m.Detach(context.Background(), mg.agent.ID()); derr != nil {
				m.log.Warn("detach after media failure", "agent", mg.agent.ID(), "error", derr)
			}
		}()
	}
}

// close tears a binding down in pipeline order: stop the pumps, flush and
// close both pipelines and the recognition stream, then leave the room.
func (b *binding) close(ctx context.Context, log *slog.Logger) {
	if b.cancel != nil {
		b.cancel()
	}
	b.ingress.Close()
	if err := b.stream.Close(); err != nil {
		log.Debug("stt stream close", "room", b.roomID, "error", err)
	}
	b.egress.Close()
	b.cons.Close()
	b.prod.Close()
	if err := b.client.Leave(ctx); err != nil && !errors.Is(err, media.ErrUnrecoverable) {
		log.Debug("media leave", "room", b.roomID, "error", err)
	}
	b.client.Close()
	if b.eg != nil {
		b.eg.Wait()
	}
}
