// Package changefeed is the single-writer, many-reader broadcast of task
// state transitions: every subscriber receives the latest value on
// subscribe, then each subsequent change exactly once in publication
// order. Slow subscribers coalesce to the latest value rather than
// blocking the writer.
package changefeed

import (
	"context"
	"sync"

	"backtest-orchestrator/internal/logging"
)

// Update is one observed task state transition.
type Update struct {
	TaskID int64  `json:"task_id"`
	State  string `json:"state"`
}

// sentinel is the initial value a fresh subscriber observes before any
// real task has ever transitioned, per spec's {0, "created"} allowance.
var sentinel = Update{TaskID: 0, State: "created"}

// Feed is the broadcaster. The zero value is not usable; construct with
// New.
type Feed struct {
	mu          sync.Mutex
	latest      Update
	nextID      uint64
	subscribers map[uint64]chan Update
	relay       remotePublisher
	log         *logging.Logger
}

// remotePublisher is the subset of RedisRelay a Feed needs to mirror local
// publications across replicas. Declared here rather than imported so Feed
// has no compile-time dependency on Redis when no relay is attached.
type remotePublisher interface {
	PublishRemote(ctx context.Context, update Update) error
}

// SetRelay attaches a cross-process relay; every subsequent local Publish
// is also mirrored onto it. Pass nil to detach.
func (f *Feed) SetRelay(relay remotePublisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relay = relay
}

// New builds an empty Feed.
func New(log *logging.Logger) *Feed {
	if log == nil {
		log = logging.Default()
	}
	return &Feed{
		latest:      sentinel,
		subscribers: make(map[uint64]chan Update),
		log:         log.WithComponent("changefeed"),
	}
}

// Subscribe registers a new reader and returns its channel (buffered to 1,
// coalescing) along with the value it should see immediately — the latest
// published update, or the sentinel if none has been published yet.
func (f *Feed) Subscribe() (id uint64, ch <-chan Update, initial Update) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id = f.nextID
	c := make(chan Update, 1)
	f.subscribers[id] = c
	return id, c, f.latest
}

// Unsubscribe drops a reader. Safe to call more than once.
func (f *Feed) Unsubscribe(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.subscribers[id]; ok {
		delete(f.subscribers, id)
		close(c)
	}
}

// Publish records update as the latest value, offers it to every local
// subscriber, and mirrors it onto the attached relay (if any) for other
// replicas to observe. Use broadcastLocal for updates that already arrived
// from the relay, to avoid echoing them back onto Redis.
func (f *Feed) Publish(update Update) {
	f.broadcastLocal(update)

	f.mu.Lock()
	relay := f.relay
	f.mu.Unlock()
	if relay != nil {
		if err := relay.PublishRemote(context.Background(), update); err != nil {
			f.log.Warn("changefeed: failed to mirror update to relay", "error", err)
		}
	}
}

// broadcastLocal records update as the latest value and offers it to every
// subscriber without blocking: a subscriber whose buffer is still full of
// an older update has that update evicted in favor of the new one. It never
// touches the relay, so RedisRelay.Run can use it to rebroadcast a
// remotely-observed update without publishing it right back to Redis.
func (f *Feed) broadcastLocal(update Update) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest = update
	for id, c := range f.subscribers {
		select {
		case c <- update:
		default:
			select {
			case <-c:
			default:
			}
			select {
			case c <- update:
			default:
				f.log.Warn("changefeed: subscriber channel still full after eviction", "subscriber_id", id)
			}
		}
	}
}

// Latest returns the most recently published value without subscribing.
func (f *Feed) Latest() Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}
