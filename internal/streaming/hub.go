// Package streaming fans import session events out to Server-Sent Event clients.
package streaming

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	clientBuffer      = 10
	broadcasterBuffer = 100
	criticalWait      = 100 * time.Millisecond
	clientWait        = 50 * time.Millisecond
)

// Option configures a StreamHub or SessionBroadcaster
type Option func(*settings)

type settings struct {
	logger *log.Logger
}

// WithLogger sets the logger for client and delivery diagnostics
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func newSettings(opts []Option) settings {
	s := settings{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Client represents a connected SSE client
type Client struct {
	Events chan SSEEvent
}

// NewClient creates a new SSE client
func NewClient() *Client {
	return &Client{
		Events: make(chan SSEEvent, clientBuffer),
	}
}

// SessionBroadcaster broadcasts events to every client of one import session
type SessionBroadcaster struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	events   chan SSEEvent
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  bool
	logger   *log.Logger
}

// NewSessionBroadcaster creates a broadcaster that stops when ctx is cancelled
func NewSessionBroadcaster(ctx context.Context, opts ...Option) *SessionBroadcaster {
	s := newSettings(opts)
	ctx, cancel := context.WithCancel(ctx)
	return &SessionBroadcaster{
		clients: make(map[*Client]bool),
		events:  make(chan SSEEvent, broadcasterBuffer),
		ctx:     ctx,
		cancel:  cancel,
		logger:  s.logger,
	}
}

// Register adds a client to the broadcaster
func (b *SessionBroadcaster) Register(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	b.logger.Debug("client registered", "clients", len(b.clients))
}

// Unregister removes a client from the broadcaster
func (b *SessionBroadcaster) Unregister(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		// Stop already closed every client channel
		if !b.stopped {
			close(client.Events)
		}
		b.logger.Debug("client unregistered", "clients", len(b.clients))
	}
}

// ClientCount returns the number of connected clients
func (b *SessionBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stopped reports whether the broadcaster has shut down
func (b *SessionBroadcaster) Stopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// Broadcast queues an event for all registered clients. Progress events are dropped
// when the queue is full; terminal events wait briefly for room.
func (b *SessionBroadcaster) Broadcast(event SSEEvent) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	if event.Terminal() {
		select {
		case b.events <- event:
		case <-b.ctx.Done():
		case <-time.After(criticalWait):
			b.logger.Error("failed to queue terminal event", "type", event.Type, "capacity", cap(b.events))
		}
		return
	}

	select {
	case b.events <- event:
	case <-b.ctx.Done():
	default:
		b.logger.Warn("event queue full, dropping event", "type", event.Type)
	}
}

// Stop closes every client channel and releases the broadcaster
func (b *SessionBroadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		for client := range b.clients {
			close(client.Events)
			delete(b.clients, client)
		}
		b.mu.Unlock()
		b.cancel()
	})
}

// Start delivers queued events until the context ends or a terminal event is sent
func (b *SessionBroadcaster) Start() {
	go func() {
		defer b.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case event := <-b.events:
				b.broadcastToClients(event)
				if event.Terminal() {
					// Give clients a moment to drain before their channels close
					time.Sleep(criticalWait)
					return
				}
			}
		}
	}()
}

func (b *SessionBroadcaster) broadcastToClients(event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		if event.Terminal() {
			select {
			case client.Events <- event:
			case <-time.After(clientWait):
				b.logger.Error("failed to deliver terminal event", "type", event.Type, "capacity", cap(client.Events))
			}
			continue
		}

		select {
		case client.Events <- event:
		default:
			b.logger.Warn("client queue full, skipping event", "type", event.Type)
		}
	}
}

// StreamHub manages broadcasters for concurrent import sessions
type StreamHub struct {
	mu           sync.RWMutex
	broadcasters map[string]*SessionBroadcaster
	opts         []Option
	logger       *log.Logger
}

// NewStreamHub creates a new stream hub
func NewStreamHub(opts ...Option) *StreamHub {
	return &StreamHub{
		broadcasters: make(map[string]*SessionBroadcaster),
		opts:         opts,
		logger:       newSettings(opts).logger,
	}
}

// Register registers a client for a session and returns the client. A broadcaster
// that already delivered its terminal event is replaced.
func (h *StreamHub) Register(ctx context.Context, sessionID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := NewClient()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists || broadcaster.Stopped() {
		broadcaster = NewSessionBroadcaster(ctx, h.opts...)
		h.broadcasters[sessionID] = broadcaster
		broadcaster.Start()
		h.logger.Debug("created broadcaster", "session", sessionID)
	}

	broadcaster.Register(client)
	return client
}

// Unregister removes a client from a session, stopping the broadcaster with the last one
func (h *StreamHub) Unregister(sessionID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists {
		return
	}

	broadcaster.Unregister(client)

	if broadcaster.ClientCount() == 0 {
		broadcaster.Stop()
		delete(h.broadcasters, sessionID)
		h.logger.Debug("last client left, broadcaster removed", "session", sessionID)
	}
}

// Broadcast sends an event to all clients of a session. Sessions nobody listens to
// drop the event.
func (h *StreamHub) Broadcast(sessionID string, event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists {
		h.logger.Debug("no listeners for session", "session", sessionID, "type", event.Type)
		return
	}

	broadcaster.Broadcast(event)
}

// IsRunning checks if a session broadcaster exists
func (h *StreamHub) IsRunning(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.broadcasters[sessionID]
	return exists
}
