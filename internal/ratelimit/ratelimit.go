package ratelimit

import (
	"sync"
	"time"
)

// Config defines the per-key submission budget.
type Config struct {
	Max    int           // accepted submissions allowed inside the window
	Window time.Duration // sliding window length
}

// window holds the accepted timestamps for a single key, newest last.
type window struct {
	stamps []time.Time
}

// Limiter is an in-memory sliding-window rate limiter keyed by an opaque
// string (here: the submitter fingerprint joined with the tenant ID). State
// is not persisted; a restart silently resets all windows.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	cfg     Config
	now     func() time.Time
}

func New(cfg Config) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		cfg:     cfg,
		now:     time.Now,
	}
	go l.cleanup()
	return l
}

// TryAcquire records an accepted submission for key if the window has room.
func (l *Limiter) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[key]
	if w == nil {
		w = &window{}
		l.windows[key] = w
	}
	w.trim(now.Add(-l.cfg.Window))
	if len(w.stamps) >= l.cfg.Max {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// RemainingCooldown reports how long until the oldest timestamp in the
// window falls out, i.e. when the next submission could succeed. Zero means
// the key is not currently limited.
func (l *Limiter) RemainingCooldown(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[key]
	if w == nil {
		return 0
	}
	w.trim(now.Add(-l.cfg.Window))
	if len(w.stamps) < l.cfg.Max {
		return 0
	}
	return w.stamps[0].Add(l.cfg.Window).Sub(now)
}

func (w *window) trim(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// cleanup drops keys whose windows have fully drained, bounding memory.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		l.mu.Lock()
		cutoff := l.now().Add(-l.cfg.Window)
		for key, w := range l.windows {
			w.trim(cutoff)
			if len(w.stamps) == 0 {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}
