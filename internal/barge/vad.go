package barge

import (
	"github.com/chadiek/voicebot/internal/audio"
)

// Detector is the cheap energy check used for barge-in. It keeps no state
// between calls so it can run mid-synthesis without touching any
// recognition buffer.
type Detector struct {
	threshold float64
}

func NewDetector(threshold float64) Detector {
	if threshold <= 0 {
		threshold = DefaultConfig().Threshold
	}
	return Detector{threshold: threshold}
}

// Threshold is the normalized RMS the detector compares against.
func (d Detector) Threshold() float64 { return d.threshold }

// HasSpeech reports whether the s16le chunk carries more energy than the threshold.
// Empty and odd single-byte chunks are silence.
func (d Detector) HasSpeech(chunk []byte) bool {
	if len(chunk) < audio.BytesPerSample {
		return false
	}
	return audio.RMSBytes(chunk) > d.threshold
}

// IsSilent is the inverse check used on the tail of a recognition buffer.
func (d Detector) IsSilent(pcm []byte) bool {
	return audio.RMSBytes(pcm) < d.threshold
}
