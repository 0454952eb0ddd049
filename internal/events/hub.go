// Package events fans out row changes committed by the store to in-process subscribers.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

const (
	TableBoards = "boards"
	TableCards  = "cards"
)

// Event describes one committed change.
type Event struct {
	ID      string    `json:"id"`
	Table   string    `json:"table"`
	Op      Op        `json:"op"`
	BoardID int64     `json:"board_id"`
	RowID   int64     `json:"row_id"`
	Row     any       `json:"row,omitempty"`
	At      time.Time `json:"at"`
}

// Filter narrows the events a subscriber receives. A nil Filter accepts everything.
type Filter func(Event) bool

// ForBoard accepts events of a single board.
func ForBoard(boardID int64) Filter {
	return func(e Event) bool { return e.BoardID == boardID }
}

const defaultQueueSize = 64

// Hub dispatches published events to subscribers. Each subscriber is served by its own
// goroutine so a slow consumer never blocks the publisher.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	closed    bool
	queueSize int
	logger    *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:      make(map[string]*Subscription),
		queueSize: defaultQueueSize,
		logger:    logger,
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID    string
	Table string

	hub      *Hub
	filter   Filter
	onChange func(Event)
	queue    chan Event
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	dropped  atomic.Int64
}

// Subscribe registers onChange for events on table that pass filter. An empty table
// subscribes to every table. The callback runs on the subscription's goroutine, in
// publish order.
func (h *Hub) Subscribe(table string, filter Filter, onChange func(Event)) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Table:    table,
		hub:      h,
		filter:   filter,
		onChange: onChange,
		queue:    make(chan Event, h.queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.done)
		sub.once.Do(func() { close(sub.stop) })
		return sub
	}
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	go sub.run()
	h.logger.Debug("subscription added", slog.String("subscription", sub.ID), slog.String("table", table))
	return sub
}

// Publish delivers e to every matching subscriber. Events are dropped for subscribers whose
// queue is full.
func (h *Hub) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.matches(e) {
			continue
		}
		select {
		case sub.queue <- e:
		default:
			n := sub.dropped.Add(1)
			h.logger.Warn("subscriber queue full; event dropped",
				slog.String("subscription", sub.ID), slog.Int64("dropped", n))
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone. Later subscriptions are inert.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Unsubscribe stops delivery and waits for the callback goroutine to exit. Safe to call
// more than once. It must not be called from inside the subscription's own callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.ID)
		s.hub.mu.Unlock()
		close(s.stop)
	})
	<-s.done
}

// Dropped reports how many events overflowed this subscriber's queue.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) matches(e Event) bool {
	if s.Table != "" && s.Table != e.Table {
		return false
	}
	return s.filter == nil || s.filter(e)
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case e := <-s.queue:
			select {
			case <-s.stop:
				return
			default:
			}
			s.onChange(e)
		}
	}
}
