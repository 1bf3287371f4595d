package audio

// PCM layout conversion between the two formats the pipeline deals in: room
// playback audio (48 kHz mono, stereo when it came out of an MP3 decode) and
// recognizer input (16 kHz mono). All PCM is little-endian int16.

// ToRoom converts a frame to the room playback format.
func ToRoom(f Frame) Frame { return Reformat(f, RoomFormat) }

// ToSTT converts a frame to the recognizer input format.
func ToSTT(f Frame) Frame { return Reformat(f, STTFormat) }

// Reformat converts f to the target rate and channel count. A matching source
// is passed through without copying. Torn PCM (odd byte count) yields an
// empty frame in the target format. Stereo is downmixed before resampling so
// the interpolation runs over half the samples.
func Reformat(f Frame, target Format) Frame {
	out := Frame{SampleRate: target.SampleRate, Channels: target.Channels, Timestamp: f.Timestamp}
	if len(f.Data)%2 != 0 {
		return out
	}
	if f.SampleRate == target.SampleRate && f.Channels == target.Channels {
		out.Data = f.Data
		return out
	}

	pcm, channels := f.Data, f.Channels
	if channels == 2 && target.Channels == 1 {
		pcm, channels = downmix(pcm), 1
	}
	pcm = resample16(pcm, channels, f.SampleRate, target.SampleRate)
	if channels == 1 && target.Channels == 2 {
		pcm = upmix(pcm)
	}
	out.Data = pcm
	return out
}

// downmix averages interleaved stereo into mono. The average of two int16
// values always fits in int16.
func downmix(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// upmix duplicates each mono sample into an L+R pair.
func upmix(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		s := sampleAt(pcm, i)
		putSample(out, i*2, s)
		putSample(out, i*2+1, s)
	}
	return out
}

// resample16 linearly interpolates interleaved int16 PCM with the given
// channel count from srcRate to dstRate. Matching rates pass through.
func resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || channels <= 0 {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*2*channels)
	ratio := float64(srcRate) / float64(dstRate)
	for i := 0; i < dstFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		for ch := 0; ch < channels; ch++ {
			s0 := sampleAt(pcm, idx*channels+ch)
			s1 := s0
			if idx+1 < srcFrames {
				s1 = sampleAt(pcm, (idx+1)*channels+ch)
			}
			putSample(out, i*channels+ch, int16(float64(s0)*(1-frac)+float64(s1)*frac))
		}
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
}

func putSample(pcm []byte, i int, s int16) {
	pcm[2*i] = byte(s)
	pcm[2*i+1] = byte(s >> 8)
}
