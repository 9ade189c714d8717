// Package serve runs the single goroutine that paces every enabled stream at
// its configured frame rate and hands frames to the transmitter.
package serve

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanikai/visionstream/internal/logging"
	"github.com/lanikai/visionstream/internal/stream"
)

var log = logging.DefaultLogger.WithTag("serve")

var ErrAlreadyRunning = errors.New("serving loop already running")

// Source is where the loop reads configuration and frames from. Implemented
// by *stream.Manager.
type Source interface {
	Config(st stream.StreamType) stream.Config
	Latest(st stream.StreamType) (*stream.Frame, bool)
}

// Encoder compresses image frames at the configured resolution.
type Encoder interface {
	Encode(img *stream.ImageFrame, res stream.Resolution) ([]byte, error)
}

// Transmitter delivers packets to viewers. Transmit is called from the loop
// goroutine only, at most once per stream per cycle.
type Transmitter interface {
	Transmit(p Packet) error
}

// Packet is one frame of one stream, ready to send.
type Packet struct {
	Type       stream.StreamType
	Seq        uint64
	Resolution stream.Resolution

	// Presentation timestamp of encoded frames. Image frames use the time the
	// frame was received, in microseconds.
	PTS int64

	Keyframe bool

	// Set when an image frame is sent again because nothing newer arrived.
	Repeat bool

	Data []byte
}

type State int32

const (
	Disabled State = iota
	// Enabled, but no frame has been received yet.
	Idle
	Serving
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Idle:
		return "idle"
	case Serving:
		return "serving"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const defaultIdlePoll = 100 * time.Millisecond

type LoopOption func(*Loop)

// WithIdlePoll bounds how long the loop sleeps when no stream is due, which is
// also how long a configuration change takes to be noticed without Wake.
func WithIdlePoll(d time.Duration) LoopOption {
	return func(l *Loop) {
		l.idlePoll = d
	}
}

// Loop serves all stream types from a single goroutine.
type Loop struct {
	src Source
	tx  Transmitter
	enc Encoder

	idlePoll time.Duration
	wake     chan struct{}

	// Owned by the loop goroutine while it runs.
	lanes [len(stream.Types)]lane

	// Closed when Stop() is requested, to trigger run loop exit.
	quit chan struct{}

	// Closed when run loop actually terminates.
	terminated chan struct{}

	sync.Mutex
}

type lane struct {
	nextDue time.Time

	// Seq of the last frame transmitted. Zero after the stream was disabled,
	// so that re-enabling sends the current frame again.
	lastSent uint64

	// Encoding of the last transmitted image frame, reused for repeats.
	lastData []byte
	lastRes  stream.Resolution

	state atomic.Int32
}

func NewLoop(src Source, tx Transmitter, enc Encoder, opts ...LoopOption) *Loop {
	l := &Loop{
		src:      src,
		tx:       tx,
		enc:      enc,
		idlePoll: defaultIdlePoll,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start spawns the serving goroutine.
func (l *Loop) Start() error {
	l.Lock()
	defer l.Unlock()

	if l.quit != nil || l.terminated != nil {
		return ErrAlreadyRunning
	}
	for i := range l.lanes {
		l.lanes[i].reset()
	}
	l.quit = make(chan struct{})
	l.terminated = make(chan struct{})

	go func(quit <-chan struct{}, terminated chan<- struct{}) {
		log.Debug("Starting serving loop")
		l.run(quit)
		// Close terminated channel to unblock Stop().
		close(terminated)
	}(l.quit, l.terminated)
	return nil
}

// Stop terminates the serving goroutine and waits for it to exit. Stopping a
// loop that is not running does nothing.
func (l *Loop) Stop() error {
	l.Lock()
	defer l.Unlock()

	if l.quit == nil {
		return nil
	}
	log.Debug("Stopping serving loop")
	close(l.quit)
	<-l.terminated

	l.quit = nil
	l.terminated = nil
	return nil
}

// Wake makes the loop re-read the configuration immediately.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// State reports what the loop is doing with stream st.
func (l *Loop) State(st stream.StreamType) State {
	return State(l.lanes[st].state.Load())
}

func (l *Loop) run(quit <-chan struct{}) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		timer.Reset(l.cycle(time.Now()))

		select {
		case <-quit:
			return
		case <-l.wake:
		case <-timer.C:
		}
	}
}

// cycle serves every stream that is due and returns how long to sleep until
// the next one is.
func (l *Loop) cycle(now time.Time) time.Duration {
	wait := l.idlePoll
	for _, st := range stream.Types {
		ln := &l.lanes[st]
		cfg := l.src.Config(st)

		if !cfg.Enabled {
			if ln.setState(Disabled) {
				log.Info("%v stream disabled", st)
			}
			ln.reset()
			continue
		}

		fps := cfg.FPS
		if fps <= 0 {
			fps = stream.DefaultFPS
		} else if fps > stream.MaxFPS {
			fps = stream.MaxFPS
		}
		interval := time.Second / time.Duration(fps)

		// A lower fps may have just been raised.
		if ln.nextDue.Sub(now) > interval {
			ln.nextDue = now.Add(interval)
		}

		if !now.Before(ln.nextDue) {
			if ln.setState(l.serve(st, cfg, ln)) {
				log.Info("%v stream %v", st, ln.State())
			}

			ln.nextDue = ln.nextDue.Add(interval)
			if ln.nextDue.Before(now) {
				// Fell behind, or first tick.
				ln.nextDue = now.Add(interval)
			}
		}

		if d := ln.nextDue.Sub(now); d < wait {
			wait = d
		}
	}
	return wait
}

// serve transmits the current frame of stream st, if there is one to send.
func (l *Loop) serve(st stream.StreamType, cfg stream.Config, ln *lane) State {
	f, ok := l.src.Latest(st)
	if !ok {
		return Idle
	}

	p := Packet{
		Type:       st,
		Seq:        f.Seq,
		Resolution: cfg.Resolution,
	}

	if st.IsEncoded() {
		// Repeating a P-frame would corrupt the decoder's reference picture.
		if f.Seq == ln.lastSent {
			return Serving
		}
		p.PTS = f.Encoded.PTS
		p.Keyframe = f.Keyframe
		p.Data = f.Encoded.Data
	} else {
		p.PTS = f.Received.UnixMicro()
		p.Keyframe = true
		p.Repeat = f.Seq == ln.lastSent
		if p.Repeat && ln.lastRes == cfg.Resolution && ln.lastData != nil {
			p.Data = ln.lastData
		} else {
			data, err := l.enc.Encode(f.Image, cfg.Resolution)
			if err != nil {
				log.Warn("Failed to encode %v frame %d: %v", st, f.Seq, err)
				return Serving
			}
			p.Data = data
		}
	}

	if err := l.tx.Transmit(p); err != nil {
		log.Warn("Failed to transmit %v frame %d: %v", st, f.Seq, err)
		return Serving
	}

	ln.lastSent = f.Seq
	if !st.IsEncoded() {
		ln.lastData, ln.lastRes = p.Data, cfg.Resolution
	}
	log.Trace(7, "Sent %v frame %d (%d bytes, repeat=%t)", st, p.Seq, len(p.Data), p.Repeat)
	return Serving
}

func (ln *lane) reset() {
	ln.nextDue = time.Time{}
	ln.lastSent = 0
	ln.lastData = nil
	ln.lastRes = ""
}

// setState records s and reports whether it changed.
func (ln *lane) setState(s State) bool {
	return State(ln.state.Swap(int32(s))) != s
}

func (ln *lane) State() State {
	return State(ln.state.Load())
}
