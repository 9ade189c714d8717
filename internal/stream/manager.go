package stream

import (
	"sync"
	"time"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/visionstream/internal/logging"
	"github.com/lanikai/visionstream/internal/media/h264"
)

var log = logging.DefaultLogger.WithTag("stream")

// SnapshotSink persists a single frame, returning where it was written.
type SnapshotSink interface {
	Save(f *Frame) (string, error)
}

// Manager owns the configuration and the latest frame of every stream. It is
// the only thing producers and the serving loop talk to; both may call it
// concurrently from any number of goroutines.
type Manager struct {
	table *Table
	lanes [numStreamTypes]lane

	// Startup configuration, resolved into table by New.
	defaults  Config
	overrides map[StreamType]Config

	sink                    SnapshotSink
	clearOnResolutionChange bool
	onChange                func(StreamType)
	now                     func() time.Time
}

// lane is the per-stream ingest state. Its mutex serializes frame pushes with
// configuration changes of the same stream, so every frame is tagged with the
// resolution epoch it was produced under.
type lane struct {
	slot Slot

	seq   uint64
	epoch uint64

	// Encoded stream only.
	lastPTS       int64
	havePTS       bool
	width, height int

	accepted uint64
	rejected uint64

	sync.Mutex
}

// Stats are running counters for one stream.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Dropped  uint64 `json:"dropped"`
	Seq      uint64 `json:"seq"`
	Epoch    uint64 `json:"epoch"`
	LastPTS  int64  `json:"lastPts,omitempty"`
}

type Option func(*Manager)

// WithDefaults sets the startup configuration of every stream.
func WithDefaults(cfg Config) Option {
	return func(m *Manager) {
		m.defaults = cfg
	}
}

// WithStreamConfig overrides the startup configuration of one stream,
// regardless of where WithDefaults appears. Unknown types are ignored.
func WithStreamConfig(st StreamType, cfg Config) Option {
	return func(m *Manager) {
		if !st.valid() {
			log.Warn("Ignoring configuration of unknown stream type %d", st)
			return
		}
		if m.overrides == nil {
			m.overrides = make(map[StreamType]Config)
		}
		m.overrides[st] = cfg
	}
}

func WithSnapshotSink(sink SnapshotSink) Option {
	return func(m *Manager) {
		m.sink = sink
	}
}

// WithClearOnResolutionChange controls whether a resolution change empties the
// stream's slot, so that no frame from the previous resolution is served while
// the producers restart. Enabled by default.
func WithClearOnResolutionChange(enabled bool) Option {
	return func(m *Manager) {
		m.clearOnResolutionChange = enabled
	}
}

// WithChangeHook registers a function called after every successful
// configuration change, outside of any lock.
func WithChangeHook(fn func(StreamType)) Option {
	return func(m *Manager) {
		m.onChange = fn
	}
}

func withClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func New(opts ...Option) *Manager {
	m := &Manager{
		defaults:                DefaultConfig(),
		clearOnResolutionChange: true,
		now:                     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.table = NewTable(m.defaults)
	for st, cfg := range m.overrides {
		m.table.records[st].cfg = cfg
	}
	return m
}

// UpdateRaw stores the latest unprocessed camera image.
func (m *Manager) UpdateRaw(img ImageFrame) error {
	return m.updateImage(Raw, img)
}

// UpdateResult stores the latest image with inference overlays.
func (m *Manager) UpdateResult(img ImageFrame) error {
	return m.updateImage(Result, img)
}

func (m *Manager) updateImage(st StreamType, img ImageFrame) error {
	l := &m.lanes[st]
	l.Lock()
	defer l.Unlock()

	if len(img.Pix) == 0 {
		l.rejected++
		return errors.Errorf("%v stream: %w", st, ErrEmptyFrame)
	}

	l.seq++
	l.accepted++
	l.slot.Put(&Frame{
		Type:     st,
		Image:    &img,
		Seq:      l.seq,
		Epoch:    l.epoch,
		Received: m.now(),
	})
	log.Trace(7, "%v frame %d: %dx%d %v", st, l.seq, img.Width, img.Height, img.Format)
	return nil
}

// UpdateEncoded stores the latest H.264 access unit. Its timestamp must be
// strictly greater than that of the previously accepted frame; otherwise the
// frame is discarded and the previous one stays current.
func (m *Manager) UpdateEncoded(ef EncodedFrame) error {
	const st = EncodedRaw

	// Parse outside the lock; the data is not shared yet.
	info := h264.Inspect(ef.Data)

	l := &m.lanes[st]
	l.Lock()
	defer l.Unlock()

	if len(ef.Data) == 0 {
		l.rejected++
		return errors.Errorf("%v stream: %w", st, ErrEmptyFrame)
	}
	if l.havePTS && ef.PTS <= l.lastPTS {
		l.rejected++
		log.Debug("Discarding %v frame: pts %d <= %d", st, ef.PTS, l.lastPTS)
		return errors.Errorf("%v stream: pts %d after %d: %w", st, ef.PTS, l.lastPTS, ErrNonMonotonicTimestamp)
	}

	if info.HasSPS && (info.Width != l.width || info.Height != l.height) {
		log.Info("%v stream: %dx%d", st, info.Width, info.Height)
		l.width, l.height = info.Width, info.Height
	}

	l.lastPTS, l.havePTS = ef.PTS, true
	l.seq++
	l.accepted++
	l.slot.Put(&Frame{
		Type:     st,
		Encoded:  &ef,
		Seq:      l.seq,
		Epoch:    l.epoch,
		Received: m.now(),
		Keyframe: info.Keyframe,
		Width:    l.width,
		Height:   l.height,
	})
	log.Trace(7, "%v frame %d: pts=%d size=%d idr=%t", st, l.seq, ef.PTS, len(ef.Data), info.Keyframe)
	return nil
}

// SetStreamParams applies the fields present in p to stream st, all or nothing.
// restartRequired is true when p carries a resolution: the caller must restart
// the producers at the new resolution, the manager does not.
func (m *Manager) SetStreamParams(st StreamType, p Params) (restartRequired bool, err error) {
	if !st.valid() {
		return false, ErrUnknownStreamType
	}

	l := &m.lanes[st]
	l.Lock()
	before := m.table.Get(st)
	restartRequired, err = m.table.Apply(st, p)
	if err != nil {
		l.Unlock()
		log.Warn("Rejected %v stream update: %v", st, err)
		return false, err
	}
	after := m.table.Get(st)
	if after.Resolution != before.Resolution {
		l.epoch++
		if m.clearOnResolutionChange {
			l.slot.Clear()
		}
		if st == EncodedRaw {
			// The restarted encoder starts a new timeline.
			l.havePTS = false
		}
	}
	l.Unlock()

	if after != before {
		log.Info("%v stream: %+v -> %+v", st, before, after)
	}
	if m.onChange != nil {
		m.onChange(st)
	}
	return restartRequired, nil
}

// GetResolution returns the configured resolution of stream st.
func (m *Manager) GetResolution(st StreamType) Resolution {
	return m.table.Resolution(st)
}

// IsValidResolution reports whether s is a resolution SetStreamParams accepts.
func (m *Manager) IsValidResolution(s string) bool {
	return IsValidResolution(s)
}

// Config returns the current configuration of stream st.
func (m *Manager) Config(st StreamType) Config {
	return m.table.Get(st)
}

// Latest returns the most recent frame of stream st, if any. Meant for the
// serving loop: it marks the frame as consumed for drop accounting.
func (m *Manager) Latest(st StreamType) (*Frame, bool) {
	if !st.valid() {
		return nil, false
	}
	return m.lanes[st].slot.Latest()
}

// TakeSnapshot hands the current frame of stream st to the snapshot sink and
// returns where it was stored. If no frame was ever received it returns
// ErrNoFrameAvailable without calling the sink.
func (m *Manager) TakeSnapshot(st StreamType) (string, error) {
	if !st.valid() {
		return "", ErrUnknownStreamType
	}
	f, ok := m.lanes[st].slot.Peek()
	if !ok {
		log.Info("Snapshot of %v stream: nothing to capture", st)
		return "", errors.Errorf("%v stream: %w", st, ErrNoFrameAvailable)
	}
	if m.sink == nil {
		return "", ErrNoSnapshotSink
	}

	location, err := m.sink.Save(f)
	if err != nil {
		return "", errors.Errorf("%v snapshot: %w", st, err)
	}
	log.Info("Snapshot of %v frame %d saved to %s", st, f.Seq, location)
	return location, nil
}

// Stats returns the counters of stream st.
func (m *Manager) Stats(st StreamType) Stats {
	l := &m.lanes[st]
	l.Lock()
	defer l.Unlock()

	return Stats{
		Accepted: l.accepted,
		Rejected: l.rejected,
		Dropped:  l.slot.Drops(),
		Seq:      l.seq,
		Epoch:    l.epoch,
		LastPTS:  l.lastPTS,
	}
}
