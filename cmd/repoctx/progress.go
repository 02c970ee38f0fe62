package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/fyrsmithlabs/repoctx/internal/events"
)

// progressEmitter drives a progress bar from a run's events. The bar starts
// once the file count is announced and ticks on every fetched or failed file.
type progressEmitter struct {
	mu  sync.Mutex
	w   io.Writer
	bar *pb.ProgressBar
}

func newProgressEmitter(w io.Writer) *progressEmitter {
	return &progressEmitter{w: w}
}

func (p *progressEmitter) Emit(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case events.Status:
		var n int
		if p.bar == nil {
			if _, err := fmt.Sscanf(e.Message, "Found %d code files.", &n); err == nil {
				p.bar = pb.Full.New(n).SetWriter(p.w).Start()
			}
		}
	case events.Progress, events.Warning:
		if p.bar != nil {
			p.bar.Increment()
		}
	case events.Done, events.Error:
		if p.bar != nil {
			p.bar.Finish()
		}
	}
}
