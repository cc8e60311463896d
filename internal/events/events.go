// Package events carries the passive notifications the engine emits while
// it runs: received files, send progress and projection activity.
package events

import (
	"sync"
	"time"
)

// Notification names.
const (
	FileReceived               = "file-received"
	TransferProgress           = "transfer-progress"
	TransferComplete           = "transfer-complete"
	TransferError              = "transfer-error"
	ProjectionStarted          = "projection-started"
	ProjectionReceivingStarted = "projection-receiving-started"
	ProjectionFrame            = "projection-frame"
)

type Event struct {
	Name    string    `json:"event"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

type FileReceivedPayload struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Size   uint64 `json:"size"`
	Remote string `json:"remote,omitempty"`
}

type ProgressPayload struct {
	TransferID string  `json:"transfer_id"`
	File       string  `json:"file"`
	Progress   float64 `json:"progress"`
	Sent       uint64  `json:"sent"`
	Total      uint64  `json:"total"`
}

type CompletePayload struct {
	TransferID string `json:"transfer_id"`
	File       string `json:"file"`
	Address    string `json:"address"`
	Port       uint16 `json:"port"`
}

type ErrorPayload struct {
	TransferID string `json:"transfer_id,omitempty"`
	File       string `json:"file,omitempty"`
	Error      string `json:"error"`
}

type ProjectionPayload struct {
	SessionID string `json:"session_id"`
	Remote    string `json:"remote,omitempty"`
	Width     uint32 `json:"width,omitempty"`
	Height    uint32 `json:"height,omitempty"`
	Timestamp uint64 `json:"timestamp,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
}

// Sink receives notifications. Emit must not block.
type Sink interface {
	Emit(name string, payload any)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Emit(string, any) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(name string, payload any)

func (f SinkFunc) Emit(name string, payload any) { f(name, payload) }

// Bus fans notifications out to subscribers. A subscriber that falls behind
// loses events rather than stalling the emitter.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	now    func() time.Time
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]chan Event),
		now:  time.Now,
	}
}

func (b *Bus) Emit(name string, payload any) {
	ev := Event{Name: name, Time: b.now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of events buffered to size and a function
// that ends the subscription and closes the channel.
func (b *Bus) Subscribe(size int) (<-chan Event, func()) {
	if size <= 0 {
		size = 1
	}
	ch := make(chan Event, size)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
