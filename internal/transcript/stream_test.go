package transcript

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/voicebot/internal/barge"
)

func pcmSine(sr int, hz float64, durMs int, amp float64) []byte {
	n := sr * durMs / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(amp * math.Sin(2*math.Pi*hz*float64(i)/float64(sr)))
		binary.LittleEndian.PutUint16(out[i*2:(i+1)*2], uint16(v))
	}
	return out
}

func silence(durMs int) []byte { return make([]byte, 16000*durMs/1000*2) }

type fakeRecognizer struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	samples []int
	langs   []string
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, samples []float32, language string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.samples = append(f.samples, len(samples))
	f.langs = append(f.langs, language)
	return Result{Text: f.text, Language: "en"}, f.err
}

func newTestStream(rec Recognizer) *Stream {
	return NewStream(rec, barge.NewDetector(0.3), DefaultStreamConfig())
}

func TestStream_BelowMinimumNeverTranscribes(t *testing.T) {
	rec := &fakeRecognizer{text: "hallo"}
	s := newTestStream(rec)
	for i := 0; i < 9; i++ {
		text, ran := s.Feed(context.Background(), silence(100))
		assert.False(t, ran)
		assert.Empty(t, text)
	}
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, 9*3200, s.Buffered())
}

func TestStream_TrailingSilenceTriggers(t *testing.T) {
	rec := &fakeRecognizer{text: "Ich brauche ein Rezept"}
	s := newTestStream(rec)

	_, ran := s.Feed(context.Background(), pcmSine(16000, 220, 900, 20000))
	assert.False(t, ran)
	text, ran := s.Feed(context.Background(), silence(300))
	require.True(t, ran)
	assert.Equal(t, "Ich brauche ein Rezept", text)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 16000*1200/1000, rec.samples[0])
	assert.Equal(t, []string{"de"}, rec.langs)
	assert.Zero(t, s.Buffered())
}

func TestStream_LoudTailKeepsBuffering(t *testing.T) {
	rec := &fakeRecognizer{text: "x"}
	s := newTestStream(rec)
	_, ran := s.Feed(context.Background(), pcmSine(16000, 220, 2000, 20000))
	assert.False(t, ran)
	assert.Equal(t, 0, rec.calls)
}

func TestStream_CapForcesTranscription(t *testing.T) {
	rec := &fakeRecognizer{text: "endlos"}
	s := newTestStream(rec)
	var got string
	var ran bool
	fed := 0
	for !ran && fed < 12000 {
		got, ran = s.Feed(context.Background(), pcmSine(16000, 220, 500, 20000))
		fed += 500
	}
	require.True(t, ran)
	assert.Equal(t, 10000, fed)
	assert.Equal(t, "endlos", got)
	assert.Zero(t, s.Buffered())
}

func TestStream_RecognizerErrorDropsSegment(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("backend down")}
	s := newTestStream(rec)
	text, ran := s.Feed(context.Background(), silence(1000))
	assert.True(t, ran)
	assert.Empty(t, text)
	assert.Zero(t, s.Buffered())
}

func TestStream_NilRecognizerClearsWithoutText(t *testing.T) {
	s := newTestStream(nil)
	text, ran := s.Feed(context.Background(), silence(1000))
	assert.True(t, ran)
	assert.Empty(t, text)
}

func TestStream_TakeNeverCallsRecognizer(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	rec := recognizerFunc(func(ctx context.Context, samples []float32, language string) (Result, error) {
		<-block
		return Result{Text: "spät"}, nil
	})
	s := newTestStream(rec)

	assert.Nil(t, s.Take(silence(500)))
	segment := s.Take(silence(600))
	require.Len(t, segment, 16000*2*11/10)
	assert.Zero(t, s.Buffered())

	assert.Empty(t, s.Recognize(context.Background(), nil))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan string, 1)
	go func() {
		r := newTestStream(recognizerFunc(func(ctx context.Context, samples []float32, language string) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}))
		done <- r.Recognize(ctx, segment)
	}()
	select {
	case text := <-done:
		assert.Empty(t, text)
	case <-time.After(time.Second):
		t.Fatal("Recognize ignored its context")
	}
}

func TestStream_ResetAndHasSpeechIndependent(t *testing.T) {
	s := newTestStream(&fakeRecognizer{})
	s.Feed(context.Background(), silence(500))
	require.NotZero(t, s.Buffered())

	loud := pcmSine(16000, 220, 40, 25000)
	assert.True(t, s.HasSpeech(loud))
	assert.False(t, s.HasSpeech(silence(40)))
	assert.Equal(t, 16000, s.Buffered(), "HasSpeech must not touch the buffer")

	s.Reset()
	assert.Zero(t, s.Buffered())
}

func TestQueue_LimitsConcurrency(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	slow := recognizerFunc(func(ctx context.Context, samples []float32, language string) (Result, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return Result{Text: "ok"}, nil
	})
	q := NewQueue(slow, 1)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Transcribe(context.Background(), nil, "de")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = q.sem.Acquire(context.Background(), 1)
	_, err := q.Transcribe(ctx, nil, "de")
	q.sem.Release(1)
	assert.ErrorIs(t, err, context.Canceled)
}

type recognizerFunc func(ctx context.Context, samples []float32, language string) (Result, error)

func (f recognizerFunc) Transcribe(ctx context.Context, samples []float32, language string) (Result, error) {
	return f(ctx, samples, language)
}
