package progress

import (
	"context"
	"sync"
)

const TypeProgress = "progress"

// Event is an asynchronous progress notification. It is never part of an
// operation's result.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
	Percent int    `json:"percent,omitempty"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
}

type subscriber struct {
	ch     chan Event
	filter func(Event) bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe returns a channel of events accepted by filter (nil accepts all)
// and a cancel func that closes the channel.
func (b *Bus) Subscribe(filter func(Event) bool) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, b.buffer), filter: filter}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Type == "" {
		ev.Type = TypeProgress
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Emit publishes a progress message tagged with the operation id carried by ctx.
func (b *Bus) Emit(ctx context.Context, message string, percent int) {
	b.Publish(Event{Type: TypeProgress, Message: message, Op: OpFromContext(ctx), Percent: percent})
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// ForOp accepts only events of one operation.
func ForOp(op string) func(Event) bool {
	return func(ev Event) bool { return ev.Op == op }
}

type opKey struct{}

func WithOp(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, opKey{}, op)
}

func OpFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(opKey{}).(string); ok {
		return op
	}
	return ""
}
