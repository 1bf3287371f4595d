// Package types holds the small value types shared between the voxroom core
// and the provider adapter packages: transcripts, voice profiles, and media
// participants. It exists so that pkg/provider/* and internal/* can exchange
// data without importing each other.
package types

import "time"

// Transcript is a single speech-to-text result.
type Transcript struct {
	// SessionID identifies the STT stream (usually "<room>-<peer>") that
	// produced this result.
	SessionID string

	// Text is the recognised utterance.
	Text string

	// Confidence is the provider's confidence in Text, in [0.0, 1.0].
	Confidence float64

	// IsFinal is true for authoritative results. Interim results carry false
	// and must never trigger a response.
	IsFinal bool

	// Origin is the room participant the audio came from.
	Origin string

	// Timestamp is when the result was produced.
	Timestamp time.Time
}

// VoiceProfile selects and shapes a TTS voice.
type VoiceProfile struct {
	// Provider is the TTS provider name (e.g., "elevenlabs").
	Provider string

	// VoiceID is the provider-specific voice identifier.
	VoiceID string

	// Name is the human-readable voice name, when known.
	Name string

	// Rate adjusts speaking speed in the range [0.5, 2.0]. 0 means default.
	Rate float64

	// Pitch adjusts pitch in the range [-10, +10]. 0 means default.
	Pitch float64
}

// ParticipantKind classifies a media-room participant.
type ParticipantKind string

const (
	// ParticipantHuman is a human peer producing live audio.
	ParticipantHuman ParticipantKind = "human"

	// ParticipantAgent is a voxroom agent joined as a peer.
	ParticipantAgent ParticipantKind = "agent"
)

// Participant describes one peer in a media room.
type Participant struct {
	ID   string
	Kind ParticipantKind
}
