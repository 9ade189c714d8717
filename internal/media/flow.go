package media

import (
	"sync"
)

// Flow fans payloads out to any number of subscribers. Slow subscribers lose
// their oldest pending payload rather than stalling the writer.
type Flow struct {
	// Start is called when the first subscriber is added.
	Start func()

	// Stop is called when the last subscriber is removed.
	Stop func()

	subscribers []*subscription

	sync.Mutex
}

type subscription struct {
	ch     chan []byte
	missed int
}

func (f *Flow) Subscribe(capacity int) <-chan []byte {
	f.Lock()
	defer f.Unlock()

	if capacity == 0 {
		panic("media.Flow: subscriber capacity must be nonzero")
	}

	s := &subscription{ch: make(chan []byte, capacity)}
	f.subscribers = append(f.subscribers, s)
	if f.Start != nil && len(f.subscribers) == 1 {
		f.Start()
	}
	return s.ch
}

// Unsubscribe removes and closes s. It returns the number of payloads s
// missed.
func (f *Flow) Unsubscribe(s <-chan []byte) int {
	f.Lock()
	defer f.Unlock()

	missed := 0
	found := false

	// See https://github.com/golang/go/wiki/SliceTricks
	for i, sub := range f.subscribers {
		if s == sub.ch {
			subs := f.subscribers
			close(sub.ch)
			missed = sub.missed
			subs[len(subs)-1], subs[i] = nil, subs[len(subs)-1]
			f.subscribers = subs[:len(subs)-1]
			found = true
			break
		}
	}

	if found && f.Stop != nil && len(f.subscribers) == 0 {
		go f.Stop()
	}
	return missed
}

// Subscribers returns the current number of subscribers.
func (f *Flow) Subscribers() int {
	f.Lock()
	defer f.Unlock()
	return len(f.subscribers)
}

func (f *Flow) Write(p []byte) (n int, err error) {
	f.Lock()
	defer f.Unlock()

	for _, sub := range f.subscribers {
		select {
		case sub.ch <- p:
			continue
		default:
		}

		// Drop oldest payload, add newest.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- p:
		default:
		}
		sub.missed++
		log.Trace(3, "media.Flow: subscriber missed a payload (%d total)", sub.missed)
	}

	return len(p), nil
}

func (f *Flow) Close() error {
	f.Lock()
	defer f.Unlock()

	for _, sub := range f.subscribers {
		close(sub.ch)
	}
	f.subscribers = nil
	return nil
}
