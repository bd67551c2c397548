// Package dedup suppresses repeats of the same key inside a time window.
// The gateway uses it to coalesce status requests that several dashboards
// issue for the same light at their own refresh cadence.
package dedup

import (
	"sync"
	"time"
)

type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time // key -> window end
	now  func() time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	if max <= 0 {
		max = 4096
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time), now: time.Now}
}

// ShouldProcess reports whether key is outside its suppression window and,
// if so, opens a new window for it. A nil Deduper lets everything through.
func (d *Deduper) ShouldProcess(key string) bool {
	if d == nil || key == "" {
		return true
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if until, ok := d.seen[key]; ok && now.Before(until) {
		return false
	}
	d.seen[key] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		d.sweep(now)
	}
	return true
}

// Forget closes the window for key so the next call is processed.
func (d *Deduper) Forget(key string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

func (d *Deduper) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// sweep drops expired windows; if every window is still open the oldest
// ones go first. Caller holds mu.
func (d *Deduper) sweep(now time.Time) {
	for k, until := range d.seen {
		if !now.Before(until) {
			delete(d.seen, k)
		}
	}
	for len(d.seen) > d.max {
		var oldest string
		var oldestUntil time.Time
		for k, until := range d.seen {
			if oldest == "" || until.Before(oldestUntil) {
				oldest, oldestUntil = k, until
			}
		}
		delete(d.seen, oldest)
	}
}
