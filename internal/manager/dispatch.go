package manager

import (
	"context"
	"strings"
	"time"

	"github.com/voxroom/voxroom/internal/agent"
	"github.com/voxroom/voxroom/internal/bus"
	"github.com/voxroom/voxroom/pkg/types"
)

// busOpTimeout bounds the operations a bus command triggers. Handlers run on
// the bus delivery goroutine; a hung media server must not pin it forever.
const busOpTimeout = 30 * time.Second

// AttachBus subscribes the manager to every control topic on b and starts
// mirroring events onto the matching event topics. Call DetachBus (or Close)
// to stop.
func (m *Manager) AttachBus(b bus.Bus) error {
	handlers := map[string]bus.Handler{
		bus.TopicAgentCreate:        m.handleCreate,
		bus.TopicAgentDelete:        m.handleDelete,
		bus.TopicAgentJoinRoom:      m.handleJoin,
		bus.TopicAgentLeaveRoom:     m.handleLeave,
		bus.TopicAgentSpeak:         m.handleSpeak,
		bus.TopicAgentStopSpeak:     m.handleStopSpeak,
		bus.TopicTranscriptionFinal: m.handleTranscriptionFinal,
	}

	m.busMu.Lock()
	defer m.busMu.Unlock()
	if m.busConn != nil {
		m.unsubscribeLocked()
	}

	subs := make([]bus.Subscription, 0, len(handlers))
	for topic, h := range handlers {
		sub, err := b.Subscribe(topic, h)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return err
		}
		subs = append(subs, sub)
	}

	m.busConn = b
	m.subs = subs
	m.log.Info("bus attached", "topics", len(subs))
	return nil
}

// DetachBus drops all control subscriptions and stops event mirroring. The
// bus connection itself stays open; it belongs to the caller.
func (m *Manager) DetachBus() {
	m.busMu.Lock()
	defer m.busMu.Unlock()
	if m.busConn == nil {
		return
	}
	m.unsubscribeLocked()
	m.busConn = nil
}

// unsubscribeLocked drops the subscriptions. Caller holds m.busMu.
func (m *Manager) unsubscribeLocked() {
	for _, s := range m.subs {
		s.Unsubscribe()
	}
	m.subs = nil
}

func (m *Manager) handleCreate(topic string, payload []byte) {
	msg, err := bus.DecodeCreateAgent(payload)
	if err != nil {
		m.log.Warn("bad bus command", "topic", topic, "error", err)
		return
	}
	if _, err := m.CreateAgent(msg.ID, agentConfig(msg)); err != nil {
		m.log.Warn("bus command failed", "topic", topic, "error", err)
	}
}

func (m *Manager) handleDelete(topic string, payload []byte) {
	msg, err := bus.DecodeDeleteAgent(payload)
	if err != nil {
		m.log.Warn("bad bus command", "topic", topic, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), busOpTimeout)
	defer cancel()
	if err := m.DeleteAgent(ctx, msg.ID); err != nil {
		m.log.Warn("bus command failed", "topic", topic, "error", err)
	}
}

func (m *Manager) handleJoin(topic string, payload []byte) {
	msg, err := bus.DecodeJoinRoom(payload)
	if err != nil {
		m.log.Warn("bad bus command", "topic", topic, "error", err)
		return
	}
	var opts AttachOptions
	if msg.Options != nil {
		opts = AttachOptions{Language: msg.Options.Language, Greeting: msg.Options.Greeting}
	}
	ctx, cancel := context.WithTimeout(context.Background(), busOpTimeout)
	defer cancel()
	if err := m.AttachWithOptions(ctx, msg.ID, msg.Room, opts); err != nil {
		m.log.Warn("bus command failed", "topic", topic, "error", err)
	}
}

func (m *Manager) handleLeave(topic string, payload []byte) {
	msg, err := bus.DecodeLeaveRoom(payload)
	if err != nil {
		m.log.Warn("bad bus command", "topic", topic, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), busOpTimeout)
	defer cancel()
	if err := m.Detach(ctx, msg.ID); err != nil {
		m.log.Warn("bus command failed", "topic", topic, "error", err)
	}
}

func (m *Manager) handleSpeak(topic string, payload []byte) {
	msg, err := bus.DecodeSpeak(payload)
	if err != nil {
		m.log.Warn("bad bus command", "topic", topic, "error", err)
		return
	}
	if err := m.RequestSpeak(msg.ID, msg.Text); err != nil {
		m.log.Warn("bus command failed", "topic", topic, "error", err)
	}
}

func (m *Manager) handleStopSpeak(topic string, payload []byte) {
	msg, err := bus.DecodeStopSpeak(payload)
	if err != nil {
		m.log.Warn("bad bus command", "topic", topic, "error", err)
		return
	}
	if _, err := m.CancelSpeak(msg.ID); err != nil {
		m.log.Warn("bus command failed", "topic", topic, "error", err)
	}
}

// handleTranscriptionFinal injects a final transcript produced outside the
// in-process pipeline, for deployments where recognition runs elsewhere.
func (m *Manager) handleTranscriptionFinal(topic string, payload []byte) {
	msg, err := bus.DecodeTranscriptionFinal(payload)
	if err != nil {
		m.log.Warn("bad bus command", "topic", topic, "error", err)
		return
	}

	roomID := msg.Session
	if i := strings.LastIndex(roomID, "-"); i > 0 {
		roomID = roomID[:i]
	}
	m.mu.Lock()
	rs := m.rooms[roomID]
	m.mu.Unlock()
	if rs == nil {
		m.log.Debug("transcript for unknown room", "session", msg.Session)
		return
	}

	m.onTranscript(rs, types.Transcript{
		SessionID:  msg.Session,
		Text:       msg.Text,
		Confidence: msg.Confidence,
		IsFinal:    true,
		Timestamp:  msg.TS,
	})
}

// agentConfig maps a bus create envelope onto the agent tuning.
func agentConfig(msg bus.CreateAgent) agent.Config {
	cfg := agent.Config{Persona: msg.Persona}
	if msg.Config == nil {
		return cfg
	}
	cfg.Model = msg.Config.Model
	cfg.Temperature = msg.Config.Temperature
	cfg.MaxReplyTokens = msg.Config.MaxReplyLength
	cfg.Voice = types.VoiceProfile{
		VoiceID: msg.Config.Voice,
		Rate:    msg.Config.VoiceRate,
		Pitch:   msg.Config.VoicePitch,
	}
	return cfg
}
