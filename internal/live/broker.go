package live

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/playperu/territories/internal/game"
)

// Client is one connected stream. Its queue is bounded: when the client
// falls behind, the oldest pending snapshot is dropped.
type Client struct {
	viewer  game.Viewer
	compact bool
	ch      chan []byte
}

// C yields rendered JSON snapshots.
func (c *Client) C() <-chan []byte { return c.ch }

func (c *Client) Viewer() game.Viewer { return c.viewer }

func (c *Client) offer(msg []byte) (dropped bool) {
	for {
		select {
		case c.ch <- msg:
			return dropped
		default:
		}
		select {
		case <-c.ch:
			dropped = true
		default:
		}
	}
}

// Broker is an in-process fan-out of game states to clients.
type Broker struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	queue   int
	logger  *slog.Logger
	now     func() time.Time
}

func NewBroker(queueSize int, logger *slog.Logger) *Broker {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Broker{
		clients: make(map[*Client]struct{}),
		queue:   queueSize,
		logger:  logger,
		now:     time.Now,
	}
}

// Subscribe registers a client that receives every published state rendered
// for v.
func (b *Broker) Subscribe(v game.Viewer, compact bool) *Client {
	c := &Client{viewer: v, compact: compact, ch: make(chan []byte, b.queue)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()
	b.logger.Debug("stream subscribed", "viewer", v.Key(), "clients", n)
	return c
}

func (b *Broker) Unsubscribe(c *Client) {
	b.mu.Lock()
	delete(b.clients, c)
	n := len(b.clients)
	b.mu.Unlock()
	b.logger.Debug("stream unsubscribed", "viewer", c.viewer.Key(), "clients", n)
}

func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Publish renders st once per distinct view and queues it for every client.
// It never blocks on a slow client.
func (b *Broker) Publish(st *game.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return
	}
	now := b.now().UnixMilli()
	rendered := make(map[string][]byte)
	for c := range b.clients {
		key := c.viewer.Key()
		if c.compact {
			key += ":compact"
		}
		msg, ok := rendered[key]
		if !ok {
			var err error
			msg, err = json.Marshal(game.Sanitize(st, c.viewer, c.compact, now))
			if err != nil {
				b.logger.Error("rendering state", "viewer", key, "error", err)
				continue
			}
			rendered[key] = msg
		}
		if c.offer(msg) {
			b.logger.Debug("stream lagging, dropped snapshot", "viewer", key)
		}
	}
}
