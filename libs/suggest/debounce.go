package suggest

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period before a query is ranked.
const DefaultDelay = 300 * time.Millisecond

// Debouncer runs only the last of a burst of submissions, after the burst has
// been quiet for the delay. Each submission gets a generation number; a run
// whose generation was superseded while it computed should drop its result.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	stopped bool
}

// Token identifies one submission.
type Token struct {
	d   *Debouncer
	gen uint64
}

// NewDebouncer returns a debouncer with the given delay. delay <= 0 uses
// DefaultDelay.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay}
}

// Do schedules fn and supersedes any pending or running submission.
func (d *Debouncer) Do(fn func(Token)) Token {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	tok := Token{d: d, gen: d.gen}
	if d.stopped {
		return tok
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		if tok.Current() {
			fn(tok)
		}
	})
	return tok
}

// Current reports whether no later submission has been made.
func (t Token) Current() bool {
	if t.d == nil {
		return false
	}
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	return !t.d.stopped && t.d.gen == t.gen
}

// Stop cancels the pending submission and invalidates all tokens.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
