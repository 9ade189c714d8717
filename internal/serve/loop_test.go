package serve

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/visionstream/internal/stream"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// countingSource records which streams the loop read frames from.
type countingSource struct {
	*stream.Manager

	mu     sync.Mutex
	latest map[stream.StreamType]int
}

func newSource(t *testing.T, cfg stream.Config) *countingSource {
	return &countingSource{
		Manager: stream.New(stream.WithDefaults(cfg)),
		latest:  make(map[stream.StreamType]int),
	}
}

func (s *countingSource) Latest(st stream.StreamType) (*stream.Frame, bool) {
	s.mu.Lock()
	s.latest[st]++
	s.mu.Unlock()
	return s.Manager.Latest(st)
}

func (s *countingSource) reads(st stream.StreamType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[st]
}

type recorder struct {
	mu      sync.Mutex
	packets []Packet
	err     error
}

func (r *recorder) Transmit(p Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.packets = append(r.packets, p)
	return nil
}

func (r *recorder) sent(st stream.StreamType) []Packet {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Packet
	for _, p := range r.packets {
		if p.Type == st {
			out = append(out, p)
		}
	}
	return out
}

type fakeEncoder struct {
	mu    sync.Mutex
	calls int
	fail  int
}

func (e *fakeEncoder) Encode(img *stream.ImageFrame, res stream.Resolution) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail > 0 {
		e.fail--
		return nil, errors.New("encoder busy")
	}
	return append([]byte(res), img.Pix[0]), nil
}

func (e *fakeEncoder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func gray(fill byte) stream.ImageFrame {
	return stream.ImageFrame{Width: 1, Height: 1, Format: stream.Gray8, Pix: []byte{fill}}
}

func enabled(fps int) stream.Config {
	return stream.Config{Enabled: true, FPS: fps, Resolution: stream.Native}
}

func startLoop(t *testing.T, src Source, tx Transmitter, enc Encoder) *Loop {
	loop := NewLoop(src, tx, enc, WithIdlePoll(10*time.Millisecond))
	require.NoError(t, loop.Start())
	t.Cleanup(func() { loop.Stop() })
	return loop
}

func TestLoopStartStop(t *testing.T) {
	loop := NewLoop(newSource(t, enabled(10)), new(recorder), new(fakeEncoder))
	require.NoError(t, loop.Start())
	assert.Equal(t, ErrAlreadyRunning, loop.Start())
	assert.NoError(t, loop.Stop())
	assert.NoError(t, loop.Stop())

	// Can be started again.
	require.NoError(t, loop.Start())
	assert.NoError(t, loop.Stop())
}

func TestLoopRepeatsImageFrames(t *testing.T) {
	src := newSource(t, enabled(100))
	tx := new(recorder)
	enc := new(fakeEncoder)
	require.NoError(t, src.UpdateRaw(gray(7)))

	loop := startLoop(t, src, tx, enc)
	assert.Eventually(t, func() bool { return len(tx.sent(stream.Raw)) >= 3 }, waitFor, tick)
	loop.Stop()

	sent := tx.sent(stream.Raw)
	assert.False(t, sent[0].Repeat)
	for _, p := range sent {
		assert.Equal(t, uint64(1), p.Seq)
		assert.Equal(t, []byte("native\x07"), p.Data)
	}
	assert.True(t, sent[len(sent)-1].Repeat)

	// Repeats reuse the encoding.
	assert.Equal(t, 1, enc.count())
	assert.Equal(t, Serving, loop.State(stream.Raw))
}

func TestLoopSendsEncodedFramesOnce(t *testing.T) {
	src := newSource(t, enabled(100))
	tx := new(recorder)
	require.NoError(t, src.UpdateEncoded(stream.EncodedFrame{Data: []byte{0, 0, 1, 0x65, 0x88}, PTS: 10}))

	startLoop(t, src, tx, new(fakeEncoder))
	assert.Eventually(t, func() bool { return len(tx.sent(stream.EncodedRaw)) == 1 }, waitFor, tick)

	// Several ticks pass without a new frame.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, tx.sent(stream.EncodedRaw), 1)

	require.NoError(t, src.UpdateEncoded(stream.EncodedFrame{Data: []byte{0, 0, 1, 0x41, 0x9a}, PTS: 20}))
	assert.Eventually(t, func() bool { return len(tx.sent(stream.EncodedRaw)) == 2 }, waitFor, tick)

	sent := tx.sent(stream.EncodedRaw)
	assert.True(t, sent[0].Keyframe)
	assert.Equal(t, int64(10), sent[0].PTS)
	assert.False(t, sent[1].Keyframe)
	assert.Equal(t, int64(20), sent[1].PTS)
}

func TestLoopSkipsDisabledStreams(t *testing.T) {
	src := newSource(t, stream.Config{Enabled: false, FPS: 100, Resolution: stream.Native})
	tx := new(recorder)
	enc := new(fakeEncoder)
	require.NoError(t, src.UpdateRaw(gray(1)))

	loop := startLoop(t, src, tx, enc)
	time.Sleep(50 * time.Millisecond)

	for _, st := range stream.Types {
		assert.Zero(t, src.reads(st), st.String())
		assert.Equal(t, Disabled, loop.State(st))
	}
	assert.Zero(t, enc.count())
	assert.Empty(t, tx.sent(stream.Raw))
}

func TestLoopReenableResendsEncodedFrame(t *testing.T) {
	src := newSource(t, enabled(100))
	tx := new(recorder)
	require.NoError(t, src.UpdateEncoded(stream.EncodedFrame{Data: []byte{0, 0, 1, 0x65, 0x88}, PTS: 1}))

	loop := startLoop(t, src, tx, new(fakeEncoder))
	assert.Eventually(t, func() bool { return len(tx.sent(stream.EncodedRaw)) == 1 }, waitFor, tick)

	_, err := src.SetStreamParams(stream.EncodedRaw, stream.Params{}.WithEnabled(false))
	require.NoError(t, err)
	loop.Wake()
	assert.Eventually(t, func() bool { return loop.State(stream.EncodedRaw) == Disabled }, waitFor, tick)

	_, err = src.SetStreamParams(stream.EncodedRaw, stream.Params{}.WithEnabled(true))
	require.NoError(t, err)
	loop.Wake()
	assert.Eventually(t, func() bool { return len(tx.sent(stream.EncodedRaw)) == 2 }, waitFor, tick)
	assert.Equal(t, uint64(1), tx.sent(stream.EncodedRaw)[1].Seq)
}

func TestLoopIdleUntilFirstFrame(t *testing.T) {
	src := newSource(t, enabled(100))
	tx := new(recorder)

	loop := startLoop(t, src, tx, new(fakeEncoder))
	assert.Eventually(t, func() bool { return loop.State(stream.Result) == Idle }, waitFor, tick)
	assert.Empty(t, tx.sent(stream.Result))

	require.NoError(t, src.UpdateResult(gray(3)))
	assert.Eventually(t, func() bool { return loop.State(stream.Result) == Serving }, waitFor, tick)
	assert.NotEmpty(t, tx.sent(stream.Result))
}

func TestLoopSurvivesErrors(t *testing.T) {
	src := newSource(t, enabled(100))
	tx := &recorder{err: errors.New("no route to viewer")}
	enc := &fakeEncoder{fail: 2}
	require.NoError(t, src.UpdateRaw(gray(5)))

	startLoop(t, src, tx, enc)
	assert.Eventually(t, func() bool { return enc.count() > 3 }, waitFor, tick)

	tx.mu.Lock()
	tx.err = nil
	tx.mu.Unlock()
	assert.Eventually(t, func() bool { return len(tx.sent(stream.Raw)) > 0 }, waitFor, tick)
}

func TestLoopWakeAppliesNewRate(t *testing.T) {
	src := newSource(t, enabled(1))
	tx := new(recorder)
	require.NoError(t, src.UpdateRaw(gray(1)))

	loop := startLoop(t, src, tx, new(fakeEncoder))
	assert.Eventually(t, func() bool { return len(tx.sent(stream.Raw)) == 1 }, waitFor, tick)

	_, err := src.SetStreamParams(stream.Raw, stream.Params{}.WithFPS(100))
	require.NoError(t, err)
	loop.Wake()
	assert.Eventually(t, func() bool { return len(tx.sent(stream.Raw)) >= 5 }, waitFor, tick)
}

func TestLoopCapsRate(t *testing.T) {
	// Unvalidated defaults; an interval of zero would spin.
	src := newSource(t, enabled(2000000000))
	tx := new(recorder)
	require.NoError(t, src.UpdateRaw(gray(1)))

	loop := startLoop(t, src, tx, new(fakeEncoder))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, loop.Stop())

	// 200ms at MaxFPS is about 24 reads.
	assert.Less(t, src.reads(stream.Raw), 100)
	assert.Less(t, len(tx.sent(stream.Raw)), 100)
	assert.NotEmpty(t, tx.sent(stream.Raw))
}

func TestLoopEncodesAtConfiguredResolution(t *testing.T) {
	src := newSource(t, enabled(100))
	tx := new(recorder)
	_, err := src.SetStreamParams(stream.Result, stream.Params{}.WithResolution("720p"))
	require.NoError(t, err)
	require.NoError(t, src.UpdateResult(gray(2)))

	startLoop(t, src, tx, new(fakeEncoder))
	assert.Eventually(t, func() bool { return len(tx.sent(stream.Result)) > 0 }, waitFor, tick)

	p := tx.sent(stream.Result)[0]
	assert.Equal(t, stream.R720p, p.Resolution)
	assert.Equal(t, []byte("720p\x02"), p.Data)
}
