package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrNotWAV            = errors.New("audio: not a RIFF/WAVE container")
	ErrUnsupportedFormat = errors.New("audio: only 16-bit PCM WAV is supported")
)

// Format describes a WAV stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

const wavHeaderSize = 44

// EncodeWAV wraps mono s16le pcm in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	return EncodeWAVFormat(pcm, Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16})
}

// EncodeWAVFormat wraps pcm using f for the fmt chunk.
func EncodeWAVFormat(pcm []byte, f Format) []byte {
	blockAlign := f.Channels * f.BitsPerSample / 8
	byteRate := f.SampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV walks the RIFF chunks and returns the fmt description and the
// raw data chunk. Only uncompressed 16-bit PCM is accepted. A data chunk
// whose declared size overruns the buffer is truncated to what is present.
func DecodeWAV(b []byte) (Format, []byte, error) {
	var f Format
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return f, nil, ErrNotWAV
	}
	var (
		haveFmt bool
		data    []byte
	)
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		end := body + size
		if size < 0 || end > len(b) {
			end = len(b)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return f, nil, fmt.Errorf("audio: short fmt chunk (%d bytes)", end-body)
			}
			if tag := binary.LittleEndian.Uint16(b[body : body+2]); tag != 1 {
				return f, nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			haveFmt = true
		case "data":
			data = b[body:end]
		}
		// chunks are word aligned
		off = end + (size & 1)
		if data != nil && haveFmt {
			break
		}
	}
	if !haveFmt || data == nil {
		return f, nil, ErrNotWAV
	}
	if f.BitsPerSample != 16 || f.Channels < 1 {
		return f, nil, fmt.Errorf("%w: %d-bit %d-channel", ErrUnsupportedFormat, f.BitsPerSample, f.Channels)
	}
	return f, data, nil
}

// MonoPCM returns the first channel of a decoded 16-bit WAV as s16le bytes.
func MonoPCM(f Format, data []byte) []byte {
	if f.Channels <= 1 {
		return data
	}
	frame := f.Channels * BytesPerSample
	out := make([]byte, 0, len(data)/f.Channels)
	for i := 0; i+frame <= len(data); i += frame {
		out = append(out, data[i], data[i+1])
	}
	return out
}
