// Package audio holds the PCM and WAV plumbing shared by the recognizer,
// synthesizer and mixer. All PCM is 16-bit signed little-endian mono.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// SampleRate is the wire rate for caller audio and synthesized replies.
const SampleRate = 16000

// BytesPerSample for s16le.
const BytesPerSample = 2

// Int16s decodes s16le bytes. A trailing odd byte is ignored.
func Int16s(pcm []byte) []int16 {
	n := len(pcm) / BytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return out
}

// Bytes encodes samples as s16le.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32s decodes s16le bytes into samples normalized to [-1, 1).
func Float32s(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:i*2+2]))) / 32768.0
	}
	return out
}

// FromFloat32s converts normalized samples back to s16le, clamping out of range values.
func FromFloat32s(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, f := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Clamp16(float64(f)*32768.0)))
	}
	return out
}

// RMS returns the root-mean-square of samples normalized by full scale, so
// the result lies in [0, 1]. Empty input is silence.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}

// RMSBytes is RMS over s16le bytes without allocating a sample slice.
func RMSBytes(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		f := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += f * f
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}

// Clamp16 saturates v into the int16 range.
func Clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}

// ByteLen is the s16le mono length of d at sampleRate.
func ByteLen(d time.Duration, sampleRate int) int {
	return int(int64(sampleRate)*int64(d)/int64(time.Second)) * BytesPerSample
}

// Duration is the playback length of s16le mono pcm at sampleRate.
func Duration(pcmLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := pcmLen / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Silence returns a WAV clip of d zero samples.
func Silence(d time.Duration, sampleRate int) []byte {
	if d < 0 {
		d = 0
	}
	return EncodeWAV(make([]byte, ByteLen(d, sampleRate)), sampleRate)
}
