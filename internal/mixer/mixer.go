// Package mixer lays a looping background ambience under synthesized speech.
package mixer

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/logging"
)

// None disables mixing. NoneAlias is accepted for the same purpose.
const (
	None      = "none"
	NoneAlias = "keine"
)

// Catalog lists the ambience keys offered to callers, in display order.
var Catalog = []string{"office", "practice", "quiet", None}

// Generated is the key of the pink-noise track used when no files are found.
const Generated = "standard"

// DefaultLevel keeps the ambience present but well below the voice.
const DefaultLevel = 0.08

// Mixer holds decoded ambience tracks. The cache is filled once by
// LoadDir and only read afterwards, so Mix is safe for concurrent use.
type Mixer struct {
	tracks map[string][]int16
	order  []string
}

// New returns a mixer with an empty cache. Mix is then the identity.
func New() *Mixer {
	return &Mixer{tracks: map[string][]int16{}}
}

// LoadDir caches every *.wav in dir by file stem. Unreadable or malformed
// files are logged and skipped. If nothing usable is found a generated
// pink-noise track is cached instead.
func LoadDir(dir string, sampleRate int) *Mixer {
	m := New()
	paths, _ := filepath.Glob(filepath.Join(dir, "*.wav"))
	sort.Strings(paths)
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			logging.Warnw("ambience unreadable", "path", p, "err", err)
			continue
		}
		f, data, err := audio.DecodeWAV(b)
		if err != nil {
			logging.Warnw("ambience skipped", "path", p, "err", err)
			continue
		}
		if f.SampleRate != sampleRate {
			logging.Warnw("ambience sample rate differs from output", "path", p, "rate", f.SampleRate, "want", sampleRate)
		}
		key := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		m.add(key, audio.Int16s(audio.MonoPCM(f, data)))
	}
	if len(m.order) == 0 {
		m.add(Generated, PinkNoise(10*time.Second, sampleRate, 800))
		logging.Infow("no ambience files found, using generated track", "dir", dir)
	}
	logging.Infow("ambience loaded", "tracks", m.order)
	return m
}

func (m *Mixer) add(key string, samples []int16) {
	if len(samples) == 0 {
		logging.Warnw("ambience track empty", "key", key)
		return
	}
	if _, ok := m.tracks[key]; !ok {
		m.order = append(m.order, key)
	}
	m.tracks[key] = samples
}

// Available reports, for every catalog key and every loaded track, whether
// a track would be mixed for it.
func (m *Mixer) Available() map[string]bool {
	out := make(map[string]bool, len(Catalog)+len(m.order))
	for _, k := range Catalog {
		_, ok := m.tracks[k]
		out[k] = ok
	}
	out[None] = true
	for _, k := range m.order {
		out[k] = true
	}
	return out
}

func (m *Mixer) track(key string) []int16 {
	if key == "" || key == None || key == NoneAlias || len(m.order) == 0 {
		return nil
	}
	if t, ok := m.tracks[key]; ok {
		return t
	}
	return m.tracks[m.order[0]]
}

// Mix adds the ambience selected by key, scaled by level, under the speech
// WAV and returns a new WAV in the speech's format. Speech is returned unchanged when key selects
// no ambience, the cache is empty or speech cannot be decoded. Mix never
// panics.
func (m *Mixer) Mix(speech []byte, key string, level float64) (out []byte) {
	amb := m.track(key)
	if amb == nil {
		return speech
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw("ambience mix failed", "key", key, "panic", r)
			out = speech
		}
	}()
	f, data, err := audio.DecodeWAV(speech)
	if err != nil {
		logging.Warnw("speech not mixable, returning unmixed", "err", err)
		return speech
	}
	voice := audio.Int16s(data)
	if len(voice) == 0 {
		return speech
	}
	level = math.Max(0, math.Min(1, level))
	// Every channel of a frame gets the same ambience sample.
	mixed := make([]int16, len(voice))
	for i, s := range voice {
		frame := i / f.Channels
		mixed[i] = audio.Clamp16(float64(s) + float64(amb[frame%len(amb)])*level)
	}
	return audio.EncodeWAVFormat(audio.Bytes(mixed), f)
}

// PinkNoise returns d of smoothed white noise whose peak is scaled to peak.
func PinkNoise(d time.Duration, sampleRate int, peak float64) []int16 {
	n := audio.ByteLen(d, sampleRate) / audio.BytesPerSample
	if n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewPCG(1, 2))
	const window = 64
	var (
		ring   [window]float64
		sum    float64
		smooth = make([]float64, n)
		max    float64
	)
	for i := range smooth {
		w := rng.NormFloat64()
		sum += w - ring[i%window]
		ring[i%window] = w
		smooth[i] = sum / window
		if a := math.Abs(smooth[i]); a > max {
			max = a
		}
	}
	out := make([]int16, n)
	if max == 0 {
		return out
	}
	for i, v := range smooth {
		out[i] = audio.Clamp16(v / max * peak)
	}
	return out
}
