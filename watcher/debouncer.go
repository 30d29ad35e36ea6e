package watcher

import (
	"sync"
	"time"
)

// Change represents one batched file system change.
type Change struct {
	Path string
	Op   Op
}

// Op represents the type of file system operation.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	}
	return "unknown"
}

// Debouncer collects changes and emits them as one batch after a quiet
// period. Multiple changes to the same path within the window collapse into
// the latest one, so an editor save burst produces a single staleness report.
type Debouncer struct {
	interval time.Duration
	pending  map[string]Change
	mu       sync.Mutex
	timer    *time.Timer
	output   chan []Change
}

// NewDebouncer creates a debouncer with the specified quiet interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		pending:  make(map[string]Change),
		output:   make(chan []Change, 16),
	}
}

// Output returns the channel that receives change batches.
func (d *Debouncer) Output() <-chan []Change {
	return d.output
}

// Add records a change in the current window, restarting the quiet timer.
func (d *Debouncer) Add(path string, op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[path] = Change{Path: path, Op: op}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return
	}

	batch := make([]Change, 0, len(d.pending))
	for _, change := range d.pending {
		batch = append(batch, change)
	}

	d.pending = make(map[string]Change)
	d.output <- batch
}
