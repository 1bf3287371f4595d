package manager

import (
	"bytes"
	"context"
	"time"

	"github.com/voxroom/voxroom/internal/agent"
	"github.com/voxroom/voxroom/internal/config"
	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/internal/room"
	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/provider/tts"
)

// RequestSpeak queues text as one speaking turn for a bound agent. The turn
// plays when the room's arbiter grants the floor; a full queue fails with a
// busy fault.
func (m *Manager) RequestSpeak(agentID, text string) error {
	if text == "" {
		return fault.New(fault.KindInvalidArgument, "manager: speak text must not be empty")
	}

	m.mu.Lock()
	mg, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return fault.Errorf(fault.KindNotFound, "manager: agent %s not found", agentID)
	}
	if mg.roomID == "" || mg.binding == nil {
		m.mu.Unlock()
		return fault.Errorf(fault.KindNotFound, "manager: agent %s is not attached", agentID)
	}
	rs := m.rooms[mg.roomID]
	b := mg.binding
	m.mu.Unlock()

	// The agent's speech queue mirrors its pending arbiter turns; both caps
	// apply.
	if err := mg.agent.QueueSpeech(text); err != nil {
		return err
	}
	if err := rs.arbiter.RequestSpeak(agentID, text, m.speakFunc(mg.agent, b, text)); err != nil {
		mg.agent.NextSpeech()
		return err
	}
	return nil
}

// CancelSpeak cuts off the agent's current utterance and drops its queued
// turns. It reports whether the agent was speaking.
func (m *Manager) CancelSpeak(agentID string) (bool, error) {
	m.mu.Lock()
	mg, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return false, fault.Errorf(fault.KindNotFound, "manager: agent %s not found", agentID)
	}
	if mg.roomID == "" {
		m.mu.Unlock()
		return false, fault.Errorf(fault.KindNotFound, "manager: agent %s is not attached", agentID)
	}
	rs := m.rooms[mg.roomID]
	m.mu.Unlock()

	mg.agent.ClearSpeech()
	return rs.arbiter.ForceStop(agentID), nil
}

// speakFunc builds the playback closure for one queued turn: synthesize text
// in the agent's voice, then stream the PCM through the binding's egress in
// cancellable chunks.
func (m *Manager) speakFunc(a *agent.Agent, b *binding, text string) room.SpeakFunc {
	return func(ctx context.Context) error {
		defer a.NextSpeech()

		start := time.Now()
		clip, err := a.Synthesize(ctx, text)
		if m.metrics != nil {
			m.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
		}
		if err != nil {
			if m.metrics != nil {
				m.metrics.RecordProviderError(ctx, a.Config().Voice.Provider, "tts")
			}
			return err
		}

		pcm, format := clip.Data, clip.Format
		if clip.Encoding == tts.EncodingMP3 {
			pcm, format, err = audio.DecodeMP3(bytes.NewReader(clip.Data))
			if err != nil {
				return err
			}
		}
		err = streamPCM(ctx, b.egress, pcm, format, m.pipeline.EgressBufferBytes)
		if ctx.Err() != nil {
			// Cut off: whatever is still buffered must not reach the room.
			b.egress.Drain()
		}
		return err
	}
}

// streamPCM feeds pcm to the egress in slices of at most chunk bytes, checking
// for cancellation between slices so a forced stop cuts playback promptly.
func streamPCM(ctx context.Context, eg *audio.Egress, pcm []byte, format audio.Format, chunk int) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fault.Errorf(fault.KindInvalidArgument, "manager: bad clip format %d Hz / %d ch",
			format.SampleRate, format.Channels)
	}
	if chunk <= 0 {
		chunk = config.DefaultEgressBufferBytes
	}
	for off := 0; off < len(pcm); off += chunk {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		end := off + chunk
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := eg.WritePCM(pcm[off:end], format); err != nil {
			return err
		}
	}
	return nil
}
