package progress

import "log/slog"

// Sample is one progress observation from a transfer leg.
type Sample struct {
	Label   string
	Current int64
	Total   int64
}

// Sampler decouples progress sampling frequency from display frequency.
// Transfer I/O publishes samples without blocking; a single drain goroutine
// consumes them on its own schedule and drives the reporter. When the buffer
// fills, the oldest sample is dropped; only the newest observation matters
// for display.
type Sampler struct {
	ch   chan Sample
	done chan struct{}
}

// NewSampler creates a sampler with the given buffer size.
func NewSampler(buffer int) *Sampler {
	if buffer <= 0 {
		buffer = 64
	}
	return &Sampler{
		ch:   make(chan Sample, buffer),
		done: make(chan struct{}),
	}
}

// Publish enqueues a sample without blocking the transfer. Safe for use as a
// transfer.ProgressFunc.
func (s *Sampler) Publish(label string, current, total int64) {
	sample := Sample{Label: label, Current: current, Total: total}
	select {
	case s.ch <- sample:
		return
	default:
	}

	// Buffer full: drop the oldest sample to make room for the newest.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- sample:
	default:
		slog.Debug("Progress sample dropped", "label", label)
	}
}

// Drain consumes samples until Close is called, invoking fn for each. It
// must run in its own goroutine; Close blocks until it returns.
func (s *Sampler) Drain(fn func(Sample)) {
	defer close(s.done)
	for sample := range s.ch {
		fn(sample)
	}
}

// Close stops the sampler and waits for the drain goroutine to process the
// remaining samples. Publish must not be called after Close.
func (s *Sampler) Close() {
	close(s.ch)
	<-s.done
}
