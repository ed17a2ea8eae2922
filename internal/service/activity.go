package service

import (
	"strings"
	"sync"
)

// ActivityKind names one class of user-input signal.
type ActivityKind string

const (
	ActivityKeyDown    ActivityKind = "keydown"
	ActivityScroll     ActivityKind = "scroll"
	ActivityTouchStart ActivityKind = "touchstart"
)

// QualifyingActivity lists the signals that count as proof the user is present.
var QualifyingActivity = []ActivityKind{ActivityKeyDown, ActivityScroll, ActivityTouchStart}

func ParseActivityKind(raw string) (ActivityKind, bool) {
	kind := ActivityKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, q := range QualifyingActivity {
		if kind == q {
			return kind, true
		}
	}
	return kind, false
}

// ActivitySource delivers user-input signals to listeners.
type ActivitySource interface {
	// Subscribe registers fn for the given kinds. The returned func detaches it.
	Subscribe(kinds []ActivityKind, fn func(ActivityKind)) (unsubscribe func())
}

// ActivityHub is the in-process ActivitySource fed by the HTTP and websocket
// surfaces.
type ActivityHub struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]activityListener
}

type activityListener struct {
	kinds map[ActivityKind]struct{}
	fn    func(ActivityKind)
}

func NewActivityHub() *ActivityHub {
	return &ActivityHub{listeners: map[int]activityListener{}}
}

func (h *ActivityHub) Subscribe(kinds []ActivityKind, fn func(ActivityKind)) func() {
	set := make(map[ActivityKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = activityListener{kinds: set, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Emit delivers kind to every listener subscribed to it and reports how many
// received it.
func (h *ActivityHub) Emit(kind ActivityKind) int {
	h.mu.RLock()
	targets := make([]func(ActivityKind), 0, len(h.listeners))
	for _, l := range h.listeners {
		if _, ok := l.kinds[kind]; ok {
			targets = append(targets, l.fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(kind)
	}
	return len(targets)
}

func (h *ActivityHub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
