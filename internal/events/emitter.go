package events

import (
	"io"
	"sync"
)

// Emitter receives progress events in the order they happen.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

type httpFlusher interface{ Flush() }
type errFlusher interface{ Flush() error }

// LineEmitter writes each event as one line and flushes after it, so a
// streaming consumer sees events as they occur.
type LineEmitter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewLineEmitter returns an emitter writing to w.
func NewLineEmitter(w io.Writer) *LineEmitter {
	return &LineEmitter{w: w}
}

// Emit implements Emitter. After the first write error further events are dropped.
func (l *LineEmitter) Emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return
	}
	if _, err := io.WriteString(l.w, Format(e)+"\n"); err != nil {
		l.err = err
		return
	}
	switch f := l.w.(type) {
	case httpFlusher:
		f.Flush()
	case errFlusher:
		if err := f.Flush(); err != nil {
			l.err = err
		}
	}
}

// Err returns the first write error, if any.
func (l *LineEmitter) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Lines returns the recorded events in wire form.
func (r *Recorder) Lines() []string {
	evs := r.Events()
	lines := make([]string, len(evs))
	for i, e := range evs {
		lines[i] = Format(e)
	}
	return lines
}

// Last returns the final event and whether there was one.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Multi fans each event out to every emitter in order.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(e Event) {
		for _, em := range emitters {
			if em != nil {
				em.Emit(e)
			}
		}
	})
}
