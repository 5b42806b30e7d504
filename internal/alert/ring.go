package alert

import (
	"sync"

	"netsentry/internal/model"
)

// Ring is a bounded newest-first buffer of recent alerts. It is a cache
// over the durable log, safe for concurrent reads from the API.
type Ring struct {
	mu     sync.RWMutex
	alerts []*model.Alert
	size   int
}

// NewRing creates a ring holding at most size alerts.
func NewRing(size int) *Ring {
	return &Ring{size: size}
}

// Push inserts an alert at the front, evicting the oldest if full.
func (r *Ring) Push(a *model.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append([]*model.Alert{a}, r.alerts...)
	if len(r.alerts) > r.size {
		r.alerts = r.alerts[:r.size]
	}
}

// Recent returns up to limit alerts, newest first.
func (r *Ring) Recent(limit int) []*model.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit > len(r.alerts) {
		limit = len(r.alerts)
	}
	out := make([]*model.Alert, limit)
	copy(out, r.alerts[:limit])
	return out
}

// Len returns the current number of buffered alerts.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts)
}
