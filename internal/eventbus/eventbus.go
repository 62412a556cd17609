// Package eventbus is an in-process publish/subscribe broadcaster: one
// producer queue feeds a fan-out goroutine that replays bounded history
// to new subscribers and then delivers live events to bounded
// per-subscriber queues, dropping subscribers that stay full past a
// timeout. The goroutine/channel shutdown shape follows the teacher's
// daemon signal-handling loop.
package eventbus

import (
	"sync"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

// Filter narrows a subscription to a subset of events.
type Filter struct {
	EventTypes  []domain.EventType
	MinSeverity domain.Severity
}

func (f Filter) matches(e domain.SystemEvent) bool {
	if !e.Severity.AtLeast(f.MinSeverity) {
		return false
	}
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Subscription is a live event feed. Call Close to unsubscribe; the bus
// also closes it automatically if delivery keeps timing out.
type Subscription struct {
	Events <-chan domain.SystemEvent
	bus    *Bus
	id     uint64
}

// Close unsubscribes, releasing the subscription's queue.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

type subscriber struct {
	id     uint64
	ch     chan domain.SystemEvent
	filter Filter
}

// Bus is an in-process publish/subscribe broadcaster.
type Bus struct {
	mu            sync.Mutex
	history       []domain.SystemEvent
	historyCap    int
	subscribers   map[uint64]*subscriber
	nextID        uint64
	queueSize     int
	dropTimeout   time.Duration
	publishCh     chan domain.SystemEvent
	stopCh        chan struct{}
	stopOnce      sync.Once
	stoppedCh     chan struct{}
}

// Options configures a Bus. HistorySize is taken literally — an explicit
// 0 means no history replay at all, so callers that want the documented
// default of 50 (spec.md §4.8) must set it themselves; config.Load does
// this for the production wiring path (internal/config). Negative values
// are clamped to 0.
type Options struct {
	HistorySize         int
	SubscriberQueueSize int
	DropTimeout         time.Duration
}

// New creates and starts a Bus. Call Stop to shut it down.
func New(opts Options) *Bus {
	historyCap := opts.HistorySize
	if historyCap < 0 {
		historyCap = 0
	}
	queueSize := opts.SubscriberQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	dropTimeout := opts.DropTimeout
	if dropTimeout <= 0 {
		dropTimeout = 500 * time.Millisecond
	}

	b := &Bus{
		historyCap:  historyCap,
		subscribers: make(map[uint64]*subscriber),
		queueSize:   queueSize,
		dropTimeout: dropTimeout,
		publishCh:   make(chan domain.SystemEvent, 256),
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish enqueues an event for broadcast. Non-blocking from the
// producer's perspective unless the internal queue is saturated, in
// which case it still returns promptly by dropping the oldest pending
// event rather than blocking the caller indefinitely.
func (b *Bus) Publish(e domain.SystemEvent) {
	e.Message = domain.TruncateMessage(e.Message)
	select {
	case b.publishCh <- e:
	default:
		select {
		case <-b.publishCh:
		default:
		}
		select {
		case b.publishCh <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber, replays history matching filter,
// and returns a live feed for subsequent events.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan domain.SystemEvent, b.queueSize)
	sub := &subscriber{id: id, ch: ch, filter: filter}
	b.subscribers[id] = sub

	for _, e := range b.history {
		if filter.matches(e) {
			select {
			case ch <- e:
			default:
			}
		}
	}
	b.mu.Unlock()

	return &Subscription{Events: ch, bus: b, id: id}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Stop cancels the broadcast goroutine and clears all subscribers. Safe
// to call more than once.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.stoppedCh
	})
}

func (b *Bus) run() {
	defer close(b.stoppedCh)
	for {
		select {
		case <-b.stopCh:
			b.mu.Lock()
			for id, sub := range b.subscribers {
				close(sub.ch)
				delete(b.subscribers, id)
			}
			b.mu.Unlock()
			return
		case e := <-b.publishCh:
			b.deliver(e)
		}
	}
}

func (b *Bus) deliver(e domain.SystemEvent) {
	b.mu.Lock()
	b.history = append(b.history, e)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if !s.filter.matches(e) {
			continue
		}
		select {
		case s.ch <- e:
		case <-time.After(b.dropTimeout):
			b.unsubscribe(s.id)
		}
	}
}
