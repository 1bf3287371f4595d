package bus

import (
	"encoding/json"
	"time"

	"github.com/voxroom/voxroom/internal/fault"
)

// CreateAgent is the payload of [TopicAgentCreate].
type CreateAgent struct {
	Persona string       `json:"persona"`
	ID      string       `json:"id,omitempty"`
	Config  *AgentConfig `json:"config,omitempty"`
}

// AgentConfig carries the optional provider tuning of a create request.
type AgentConfig struct {
	Model          string  `json:"model,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	MaxReplyLength int     `json:"max_reply_length,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	VoiceRate      float64 `json:"voice_rate,omitempty"`
	VoicePitch     float64 `json:"voice_pitch,omitempty"`
}

// DeleteAgent is the payload of [TopicAgentDelete].
type DeleteAgent struct {
	ID string `json:"id"`
}

// JoinRoom is the payload of [TopicAgentJoinRoom].
type JoinRoom struct {
	ID      string       `json:"id"`
	Room    string       `json:"room"`
	Options *JoinOptions `json:"options,omitempty"`
}

// JoinOptions carries the optional attach tuning of a join request.
type JoinOptions struct {
	// Language is the BCP-47 recognition language for this binding. Empty
	// selects the recognizer default.
	Language string `json:"language,omitempty"`

	// Greeting is spoken as the agent's first utterance after joining.
	Greeting string `json:"greeting,omitempty"`
}

// LeaveRoom is the payload of [TopicAgentLeaveRoom].
type LeaveRoom struct {
	ID string `json:"id"`
}

// Speak is the payload of [TopicAgentSpeak].
type Speak struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// StopSpeak is the payload of [TopicAgentStopSpeak].
type StopSpeak struct {
	ID string `json:"id"`
}

// TranscriptionFinal is the payload of [TopicTranscriptionFinal]. Session is
// "<room>-<suffix>"; the room id is everything before the last hyphen.
type TranscriptionFinal struct {
	Session    string    `json:"session"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	TS         time.Time `json:"ts"`
}

// DecodeCreateAgent parses and validates a [TopicAgentCreate] payload.
func DecodeCreateAgent(payload []byte) (CreateAgent, error) {
	var m CreateAgent
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fault.Wrap(fault.KindInvalidArgument, "bus: decode agent.create", err)
	}
	if m.Persona == "" {
		return m, fault.New(fault.KindInvalidArgument, "bus: agent.create: persona is required")
	}
	return m, nil
}

// DecodeDeleteAgent parses and validates a [TopicAgentDelete] payload.
func DecodeDeleteAgent(payload []byte) (DeleteAgent, error) {
	var m DeleteAgent
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fault.Wrap(fault.KindInvalidArgument, "bus: decode agent.delete", err)
	}
	if m.ID == "" {
		return m, fault.New(fault.KindInvalidArgument, "bus: agent.delete: id is required")
	}
	return m, nil
}

// DecodeJoinRoom parses and validates a [TopicAgentJoinRoom] payload.
func DecodeJoinRoom(payload []byte) (JoinRoom, error) {
	var m JoinRoom
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fault.Wrap(fault.KindInvalidArgument, "bus: decode agent.join-room", err)
	}
	if m.ID == "" || m.Room == "" {
		return m, fault.New(fault.KindInvalidArgument, "bus: agent.join-room: id and room are required")
	}
	return m, nil
}

// DecodeLeaveRoom parses and validates a [TopicAgentLeaveRoom] payload.
func DecodeLeaveRoom(payload []byte) (LeaveRoom, error) {
	var m LeaveRoom
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fault.Wrap(fault.KindInvalidArgument, "bus: decode agent.leave-room", err)
	}
	if m.ID == "" {
		return m, fault.New(fault.KindInvalidArgument, "bus: agent.leave-room: id is required")
	}
	return m, nil
}

// DecodeSpeak parses and validates a [TopicAgentSpeak] payload.
func DecodeSpeak(payload []byte) (Speak, error) {
	var m Speak
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fault.Wrap(fault.KindInvalidArgument, "bus: decode agent.speak", err)
	}
	if m.ID == "" {
		return m, fault.New(fault.KindInvalidArgument, "bus: agent.speak: id is required")
	}
	if m.Text == "" {
		return m, fault.New(fault.KindInvalidArgument, "bus: agent.speak: text is required")
	}
	return m, nil
}

// DecodeStopSpeak parses and validates a [TopicAgentStopSpeak] payload.
func DecodeStopSpeak(payload []byte) (StopSpeak, error) {
	var m StopSpeak
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fault.Wrap(fault.KindInvalidArgument, "bus: decode agent.stop-speak", err)
	}
	if m.ID == "" {
		return m, fault.New(fault.KindInvalidArgument, "bus: agent.stop-speak: id is required")
	}
	return m, nil
}

// DecodeTranscriptionFinal parses and validates a [TopicTranscriptionFinal]
// payload.
func DecodeTranscriptionFinal(payload []byte) (TranscriptionFinal, error) {
	var m TranscriptionFinal
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fault.Wrap(fault.KindInvalidArgument, "bus: decode transcription.final", err)
	}
	if m.Session == "" {
		return m, fault.New(fault.KindInvalidArgument, "bus: transcription.final: session is required")
	}
	return m, nil
}

// Encode marshals any envelope for publishing.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, "bus: encode envelope", err)
	}
	return data, nil
}
