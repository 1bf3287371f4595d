package audio

import "math"

// EnergyVAD is a frame-level speech detector based on short-term RMS energy
// with hysteresis. It classifies a frame as speech once its normalized energy
// crosses the threshold and holds the speech state for a hangover window so
// short pauses inside an utterance do not split it.
//
// One detector per stream; not safe for concurrent use.
type EnergyVAD struct {
	// Threshold is the RMS energy above which a frame counts as speech,
	// expressed as a fraction of int16 full scale (0..1). Typical: 0.5.
	Threshold float64

	// HangoverFrames is how many consecutive sub-threshold frames are needed
	// before the detector flips back to silence. Zero selects 10 (200 ms of
	// 20 ms frames).
	HangoverFrames int

	speaking bool
	quiet    int
}

const defaultHangoverFrames = 10

// vadReferenceLevel is int16 full scale, so Threshold reads as a fraction of
// the loudest possible signal.
const vadReferenceLevel = 32768.0

// ProcessFrame classifies one frame of little-endian int16 PCM and returns
// whether the stream is currently in speech.
func (v *EnergyVAD) ProcessFrame(pcm []byte) bool {
	hangover := v.HangoverFrames
	if hangover <= 0 {
		hangover = defaultHangoverFrames
	}

	energy := rmsEnergy(pcm) / vadReferenceLevel
	if energy > 1 {
		energy = 1
	}

	if energy >= v.Threshold {
		v.speaking = true
		v.quiet = 0
		return true
	}

	if v.speaking {
		v.quiet++
		if v.quiet >= hangover {
			v.speaking = false
			v.quiet = 0
		}
	}
	return v.speaking
}

// Reset clears accumulated state. Use when the stream restarts.
func (v *EnergyVAD) Reset() {
	v.speaking = false
	v.quiet = 0
}

// rmsEnergy computes the root-mean-square amplitude of int16 PCM bytes.
func rmsEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum / float64(samples))
}
