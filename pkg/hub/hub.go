package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-moodpet/internal/log"
)

// Options sizes the hub's queues.
type Options struct {
	// BroadcastBuffer is the inbound queue; Broadcast drops when it is full.
	BroadcastBuffer int
	// ClientBuffer is each client's outbound queue; slow clients are
	// disconnected when theirs fills up.
	ClientBuffer int
}

// DefaultOptions suits small JSON events.
func DefaultOptions() Options {
	return Options{BroadcastBuffer: 256, ClientBuffer: 256}
}

// FrameOptions suits JPEG frames: short queues so stale frames are dropped
// instead of piling up.
func FrameOptions() Options {
	return Options{BroadcastBuffer: 4, ClientBuffer: 4}
}

// Hub maintains the set of active clients and broadcasts messages to them.
// All client map mutation happens on the Run goroutine.
type Hub struct {
	name string
	opts Options

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	count   atomic.Int64
	dropped atomic.Uint64
	running atomic.Bool
	done    chan struct{}
	once    sync.Once

	logger *slog.Logger
}

// New creates a Hub with default options.
func New(name string) *Hub {
	return NewWithOptions(name, DefaultOptions())
}

// NewWithOptions creates a Hub.
func NewWithOptions(name string, opts Options) *Hub {
	if opts.BroadcastBuffer <= 0 {
		opts.BroadcastBuffer = 1
	}
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = 1
	}
	return &Hub{
		name:       name,
		opts:       opts,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, opts.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.Component("hub").With("hub", name),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client's queue.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		for client := range h.clients {
			h.remove(client)
		}
		h.running.Store(false)
		h.once.Do(func() { close(h.done) })
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
				h.logger.Info("client disconnected", "clients", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full; it is too slow to keep.
					h.remove(client)
					h.logger.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// Done is closed after Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Broadcast queues a message for all clients without blocking.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts binary data such as camera frames.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Dropped returns how many broadcasts were discarded on a full queue.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}
