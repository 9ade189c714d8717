package stream

import (
	"sync"

	errors "golang.org/x/xerrors"
)

// Table stores the validated configuration of every stream type. Each record
// has its own lock; updating one stream never waits on another.
type Table struct {
	records [numStreamTypes]record
}

type record struct {
	cfg Config
	sync.RWMutex
}

// NewTable returns a table with every stream set to cfg.
func NewTable(cfg Config) *Table {
	t := new(Table)
	for i := range t.records {
		t.records[i].cfg = cfg
	}
	return t
}

// Get returns a copy of the configuration of stream type st.
func (t *Table) Get(st StreamType) Config {
	r := &t.records[st]
	r.RLock()
	defer r.RUnlock()
	return r.cfg
}

// Resolution returns the configured resolution of stream type st.
func (t *Table) Resolution(st StreamType) Resolution {
	return t.Get(st).Resolution
}

// Apply validates every field present in p and then applies all of them
// together. If any field is invalid the configuration is left untouched.
// restart is true when a resolution was applied: the producers must be
// restarted at the new resolution for the change to take effect.
func (t *Table) Apply(st StreamType, p Params) (restart bool, err error) {
	if !st.valid() {
		return false, ErrUnknownStreamType
	}
	if err := p.Validate(); err != nil {
		return false, errors.Errorf("%v stream: %w", st, err)
	}

	r := &t.records[st]
	r.Lock()
	defer r.Unlock()

	r.cfg = r.cfg.Merge(p)
	return p.Resolution != nil, nil
}

// Validate checks every field present in p.
func (p Params) Validate() error {
	if p.Resolution != nil && !IsValidResolution(*p.Resolution) {
		return errors.Errorf("%q: %w", *p.Resolution, ErrInvalidResolution)
	}
	if p.FPS != nil && (*p.FPS <= 0 || *p.FPS > MaxFPS) {
		return errors.Errorf("%d: %w", *p.FPS, ErrInvalidFPS)
	}
	return nil
}

// Validate checks a complete configuration, e.g. one read from a file.
func (c Config) Validate() error {
	return Params{
		Resolution: (*string)(&c.Resolution),
		FPS:        &c.FPS,
	}.Validate()
}
