package telephony

import "github.com/chadiek/voicebot/internal/audio"

// PhoneRate is the G.711 sample rate of a phone media stream.
const PhoneRate = 8000

const (
	muBias = 0x84
	muClip = 32635
)

// EncodeMuLaw compresses 16-bit samples to G.711 μ-law bytes.
func EncodeMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = muLawByte(s)
	}
	return out
}

// DecodeMuLaw expands G.711 μ-law bytes to 16-bit samples.
func DecodeMuLaw(b []byte) []int16 {
	out := make([]int16, len(b))
	for i, v := range b {
		out[i] = muLawSample(v)
	}
	return out
}

func muLawByte(s int16) byte {
	v := int(s)
	var sign byte
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muClip {
		v = muClip
	}
	v += muBias
	exp := 7
	for mask := 0x4000; v&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := (v >> (exp + 3)) & 0x0F
	return ^(sign | byte(exp<<4) | byte(mant))
}

func muLawSample(b byte) int16 {
	b = ^b
	exp := int(b>>4) & 0x07
	mant := int(b & 0x0F)
	v := ((mant << 3) + muBias) << exp
	v -= muBias
	if b&0x80 != 0 {
		return int16(-v)
	}
	return int16(v)
}

// Resample converts mono samples between rates by linear interpolation.
func Resample(in []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	n := len(in) * to / from
	out := make([]int16, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		a := float64(in[j])
		b := a
		if j+1 < len(in) {
			b = float64(in[j+1])
		}
		out[i] = audio.Clamp16(a + (b-a)*frac)
	}
	return out
}

// PhoneToPCM decodes an inbound μ-law payload into PCM16 LE at rate.
func PhoneToPCM(payload []byte, rate int) []byte {
	return audio.Bytes(Resample(DecodeMuLaw(payload), PhoneRate, rate))
}

// PCMToPhone encodes PCM16 LE at rate into an outbound μ-law payload.
func PCMToPhone(pcm []byte, rate int) []byte {
	return EncodeMuLaw(Resample(audio.Int16s(pcm), rate, PhoneRate))
}
