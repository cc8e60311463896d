package transfer

import "time"

// ProgressFunc receives the bytes sent so far and the total size.
type ProgressFunc func(sent, total uint64)

const progressFlushTimeout = time.Second

// progressReporter hands updates to fn on its own goroutine so a slow
// consumer never stalls the send loop. Intermediate updates may be dropped in
// favour of newer ones.
type progressReporter struct {
	fn   ProgressFunc
	ch   chan [2]uint64
	done chan struct{}
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	if fn == nil {
		return nil
	}

	p := &progressReporter{
		fn:   fn,
		ch:   make(chan [2]uint64, 1),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *progressReporter) run() {
	defer close(p.done)
	for v := range p.ch {
		p.fn(v[0], v[1])
	}
}

func (p *progressReporter) report(sent, total uint64) {
	if p == nil {
		return
	}

	v := [2]uint64{sent, total}
	select {
	case p.ch <- v:
		return
	default:
	}

	// replace the stale pending update
	select {
	case <-p.ch:
	default:
	}
	select {
	case p.ch <- v:
	default:
	}
}

// close lets the last update through, waiting at most progressFlushTimeout.
func (p *progressReporter) close() {
	if p == nil {
		return
	}
	close(p.ch)

	select {
	case <-p.done:
	case <-time.After(progressFlushTimeout):
	}
}
