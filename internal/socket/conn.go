package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
	"github.com/miroslavpejic85/mirotalk-admin/internal/metrics"
)

const (
	sendQueueSize = 256
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Handler handles one inbound event. data is the raw payload.
type Handler func(c *Conn, data json.RawMessage)

// Conn is one dashboard client.
type Conn struct {
	id    string
	ws    *websocket.Conn
	log   zerolog.Logger
	state connState

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	bound map[string]Handler

	limiter *rate.Limiter
}

func newConn(ws *websocket.Conn, log zerolog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:      id,
		ws:      ws,
		log:     log.With().Str("conn", id).Logger(),
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		bound:   make(map[string]Handler),
		limiter: newInboundLimiter(),
	}
}

func (c *Conn) ID() string { return c.id }

// Emit queues an event for the client. It blocks while the queue is full and
// drops the event once the connection is closed.
func (c *Conn) Emit(event string, data any) {
	select {
	case <-c.done:
		metrics.DroppedEventsTotal.Inc()
		return
	default:
	}

	msg, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode event")
		return
	}
	select {
	case c.send <- msg:
	case <-c.done:
		metrics.DroppedEventsTotal.Inc()
	}
}

// Bind attaches h to event for this connection, replacing any handler bound
// earlier.
func (c *Conn) Bind(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound[event] = h
}

func (c *Conn) Unbind(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bound, event)
}

func (c *Conn) handler(event string) (Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.bound[event]
	return h, ok
}

func (c *Conn) unbindAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = make(map[string]Handler)
}

// markClosed stops delivery. Events emitted afterwards are dropped.
func (c *Conn) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump reads frames and hands them to dispatch in arrival order. It
// returns when the client goes away or ctx ends.
func (c *Conn) readPump(ctx context.Context, dispatch func(c *Conn, event string, data json.RawMessage)) {
	c.ws.SetReadLimit(MaxMessageSize)
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				c.log.Debug().Err(err).Msg("socket read ended")
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.RateLimitedFramesTotal.Inc()
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.log.Debug().Str("frame", logutil.SanitizeForLog(string(data))).Msg("ignoring malformed frame")
			continue
		}
		dispatch(c, msg.Event, msg.Data)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. A failed write closes the websocket, which ends readPump.
func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.ws.CloseNow()
				return
			}
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("socket write failed")
				c.ws.CloseNow()
				return
			}
		}
	}
}
