package audio

import (
	"math"
	"testing"
)

// sine generates one frame of int16 PCM at the given amplitude.
func sine(samples int, amplitude float64) []byte {
	pcm := make([]int16, samples)
	for i := range pcm {
		pcm[i] = int16(amplitude * math.Sin(2*math.Pi*float64(i)/64))
	}
	return Int16sToBytes(pcm)
}

func TestEnergyVADSpeechDetection(t *testing.T) {
	t.Parallel()

	v := EnergyVAD{Threshold: 0.5, HangoverFrames: 2}

	if v.ProcessFrame(sine(960, 100)) {
		t.Error("near-silence classified as speech")
	}
	if !v.ProcessFrame(sine(960, 30000)) {
		t.Error("loud frame not classified as speech")
	}
}

func TestEnergyVADThresholdIsFractionOfFullScale(t *testing.T) {
	t.Parallel()

	v := EnergyVAD{Threshold: 0.5, HangoverFrames: 2}

	// RMS around a third of full scale must stay silence at threshold 0.5.
	if v.ProcessFrame(sine(960, 16000)) {
		t.Error("mid-level frame classified as speech at threshold 0.5")
	}
	v.Reset()
	if !v.ProcessFrame(sine(960, 30000)) {
		t.Error("frame above half of full scale not classified as speech")
	}
}

func TestEnergyVADHangover(t *testing.T) {
	t.Parallel()

	v := EnergyVAD{Threshold: 0.5, HangoverFrames: 3}

	if !v.ProcessFrame(sine(960, 30000)) {
		t.Fatal("loud frame not classified as speech")
	}

	// Two quiet frames inside the hangover window still count as speech.
	for i := 0; i < 2; i++ {
		if !v.ProcessFrame(sine(960, 100)) {
			t.Fatalf("quiet frame %d inside hangover dropped speech state", i)
		}
	}
	// The third quiet frame ends the segment.
	if v.ProcessFrame(sine(960, 100)) {
		t.Error("speech state held past the hangover window")
	}
}

func TestEnergyVADReset(t *testing.T) {
	t.Parallel()

	v := EnergyVAD{Threshold: 0.5, HangoverFrames: 10}
	v.ProcessFrame(sine(960, 30000))
	v.Reset()
	if v.ProcessFrame(sine(960, 100)) {
		t.Error("reset should clear the speech state")
	}
}

func TestEnergyVADEmptyFrame(t *testing.T) {
	t.Parallel()

	v := EnergyVAD{Threshold: 0.5}
	if v.ProcessFrame(nil) {
		t.Error("empty frame classified as speech")
	}
}
