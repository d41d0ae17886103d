// Package bus implements the Progress Bus (spec.md §4.5): a topic-per-File
// publish/subscribe used by live subscribers, grounded on the teacher's
// internal/realtime (SSE hub/client) package — same subscriptions-map-
// guarded-by-mutex, drop-on-full shape — generalized from per-user SSE
// channels to per-File-id progress topics.
package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// Frame is one progress update, matching spec.md §4.5/§6's wire shape.
type Frame struct {
	FileID    uuid.UUID `json:"file_id"`
	Status    string    `json:"status"`
	Stage     int       `json:"stage"`
	Progress  int       `json:"progress"`
	StageName string    `json:"stage_name"`
	Error     string    `json:"error,omitempty"`
}

// Sink is a subscriber's delivery handle. Outbound is buffered; a publish
// that finds it full drops the sink from all its topics (best-effort
// delivery per spec.md §4.5).
type Sink struct {
	ID       uuid.UUID
	Outbound chan Frame
}

func NewSink() *Sink {
	return &Sink{ID: uuid.New(), Outbound: make(chan Frame, 16)}
}

// Bus is the single shared, mutex-guarded subscriptions map (spec.md §4.2:
// "a single shared map guarded by the scheduler itself").
type Bus struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[uuid.UUID]map[*Sink]bool
}

func New(log *logger.Logger) *Bus {
	return &Bus{
		log:           log.With("component", "ProgressBus"),
		subscriptions: make(map[uuid.UUID]map[*Sink]bool),
	}
}

// Subscribe attaches sink to fileID's topic. Callers must send the current
// Store snapshot immediately after this returns (spec.md §4.5: "subscribe
// first, then send the snapshot").
func (b *Bus) Subscribe(fileID uuid.UUID, sink *Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.subscriptions[fileID]
	if !ok {
		clients = make(map[*Sink]bool)
		b.subscriptions[fileID] = clients
	}
	clients[sink] = true
	b.log.Debug("progress bus subscribe", "file_id", fileID, "sink_id", sink.ID)
}

// Unsubscribe removes sink from every topic it is attached to.
func (b *Bus) Unsubscribe(sink *Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeFromAll(sink)
}

func (b *Bus) removeFromAll(sink *Sink) {
	for fileID, clients := range b.subscriptions {
		if _, ok := clients[sink]; !ok {
			continue
		}
		delete(clients, sink)
		if len(clients) == 0 {
			delete(b.subscriptions, fileID)
		}
	}
}

// Publish sends frame to every current subscriber of frame.FileID. Sinks
// whose outbound buffer is full are dropped from all their topics — a
// stalled subscriber never blocks the worker.
func (b *Bus) Publish(frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.subscriptions[frame.FileID]
	if !ok {
		return
	}
	var dead []*Sink
	for sink := range clients {
		select {
		case sink.Outbound <- frame:
		default:
			dead = append(dead, sink)
		}
	}
	for _, sink := range dead {
		b.log.Warn("dropping progress bus subscriber; outbound buffer full", "sink_id", sink.ID, "file_id", frame.FileID)
		b.removeFromAll(sink)
	}
}
