package manager

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/voxroom/voxroom/internal/agent"
	"github.com/voxroom/voxroom/internal/event"
	"github.com/voxroom/voxroom/internal/observe"
	"github.com/voxroom/voxroom/internal/room"
	"github.com/voxroom/voxroom/pkg/types"
)

// onTranscript handles one recognition result for a room. Partials only fan
// out to observers; finals are logged and may trigger a reply. Runs on the
// binding's results pump.
func (m *Manager) onTranscript(rs *roomState, tr types.Transcript) {
	if !tr.IsFinal {
		if tr.Text != "" {
			m.emit(event.Event{Type: event.TranscriptionUpd, RoomID: rs.id, Text: tr.Text})
		}
		return
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return
	}
	origin := tr.Origin
	if origin == "" {
		origin = "room"
	}

	rs.log.Append(room.LogEntry{
		Origin:     origin,
		Kind:       types.ParticipantHuman,
		Text:       text,
		Confidence: tr.Confidence,
	})
	if m.metrics != nil {
		m.metrics.RecordTranscript(context.Background(), rs.id)
	}

	// Low-confidence finals stay in the log but are dropped otherwise: no
	// conversation event goes out and no reply is triggered.
	if tr.Confidence > 0 && tr.Confidence < m.limits.ConfidenceFloor {
		m.log.Debug("transcript below confidence floor",
			"room", rs.id, "confidence", tr.Confidence)
		return
	}
	m.emit(event.Event{Type: event.ConversationMsg, RoomID: rs.id, Text: text})
	// Nobody replies over an agent that is already speaking.
	if rs.arbiter.CurrentSpeaker() != "" {
		return
	}

	mg := m.selectResponder(rs, text)
	if mg == nil {
		return
	}
	go m.respondAndSpeak(mg.agent, origin, text, rs)
}

// selectResponder asks the room's strategy which member should answer text.
func (m *Manager) selectResponder(rs *roomState, text string) *managed {
	m.mu.Lock()
	cands := make([]room.Candidate, 0, len(rs.members))
	for id, mg := range rs.members {
		cands = append(cands, room.Candidate{
			ID:        id,
			Name:      mg.agent.Name(),
			Listening: mg.agent.Status() == agent.StatusListening,
		})
	}
	m.mu.Unlock()
	sort.Slice(cands, func(i, j int) bool { return cands[i].ID < cands[j].ID })

	agentID, ok := m.strategy.Select(text, cands)
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return rs.members[agentID]
}

// respondAndSpeak generates a reply and queues it as a speaking turn. A
// backend failure or an empty reply declines the turn; the agent goes back to
// listening and the room stays silent.
func (m *Manager) respondAndSpeak(a *agent.Agent, origin, text string, rs *roomState) {
	a.SetStatus(agent.StatusThinking)

	ctx, span := observe.TurnSpan(context.Background(), rs.id, a.ID())
	defer span.End()
	start := time.Now()
	reply, err := a.TryRespond(ctx, origin, text)
	if m.metrics != nil {
		m.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil || reply == "" {
		a.SetStatus(agent.StatusListening)
		if err != nil {
			m.log.Warn("reply declined", "agent", a.ID(), "room", rs.id, "error", err)
			if m.metrics != nil {
				m.metrics.RecordProviderError(ctx, "llm", "generate")
			}
		}
		return
	}

	if err := m.RequestSpeak(a.ID(), reply); err != nil {
		a.SetStatus(agent.StatusListening)
		m.log.Warn("reply dropped", "agent", a.ID(), "room", rs.id, "error", err)
	}
}
