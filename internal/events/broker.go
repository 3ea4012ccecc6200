// Package events fans search progress out to subscribers: committed moves,
// accepted solutions and new best solutions, keyed by run.
package events

import (
	"sync"
	"time"
)

const (
	TypeMoveCommitted    = "move.committed"
	TypeSolutionAccepted = "solution.accepted"
	TypeBestImproved     = "best.improved"
	TypeRunFinished      = "run.finished"
)

type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"runId"`
	Iteration int       `json:"iteration"`
	Job       string    `json:"job,omitempty"`
	Vehicle   string    `json:"vehicle,omitempty"`
	Position  int       `json:"position,omitempty"`
	Cost      float64   `json:"cost,omitempty"`
	Fitness   float64   `json:"fitness"`
	At        time.Time `json:"at"`
}

// Broker delivers events per run. Publish never blocks; slow subscribers
// miss events.
type Broker interface {
	Subscribe(runID string) chan Event
	Unsubscribe(runID string, ch chan Event)
	Publish(runID string, evt Event)
}

// Memory is the in-process broker.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // runID -> set of channels
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(runID string) chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan Event]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(runID string, ch chan Event) {
	b.mu.Lock()
	m := b.subs[runID]
	_, ok := m[ch]
	if ok {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, runID)
		}
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (b *Memory) Publish(runID string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Subscribe(string) chan Event { return make(chan Event) }

func (Discard) Unsubscribe(_ string, ch chan Event) { close(ch) }

func (Discard) Publish(string, Event) {}
