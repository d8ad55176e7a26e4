// Package socket serves the dashboard's websocket: token-gated streamed
// commands and interactive terminals, one Conn per client.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/miroslavpejic85/mirotalk-admin/internal/commands"
	"github.com/miroslavpejic85/mirotalk-admin/internal/executor"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
	"github.com/miroslavpejic85/mirotalk-admin/internal/metrics"
	"github.com/miroslavpejic85/mirotalk-admin/internal/terminal"
)

// Terminals opens interactive sessions.
type Terminals interface {
	Start(ctx context.Context, kind terminal.Kind) (terminal.Session, error)
}

// SessionFactory is the production Terminals: a pty shell for Local and an
// SSH shell through Dialer for Remote.
type SessionFactory struct {
	Dialer terminal.Dialer
	Local  terminal.LocalOptions
}

var errNoRemote = errors.New("remote terminal is not configured")

func (f SessionFactory) Start(ctx context.Context, kind terminal.Kind) (terminal.Session, error) {
	if kind == terminal.Remote {
		if f.Dialer == nil {
			return nil, errNoRemote
		}
		return terminal.DialRemote(ctx, f.Dialer, terminal.DefaultCols, terminal.DefaultRows)
	}
	return terminal.StartLocal(f.Local)
}

// Options wires a Dispatcher.
type Options struct {
	Gate      *Gate
	Executor  executor.Executor
	Resolve   func(typ string) (string, error)
	Terminals Terminals
	// Remote selects the "SSH error" prefix for streamed start failures.
	Remote bool
	// OriginPatterns is passed to websocket.Accept. Empty means same origin
	// only. ADMIN_WS_ORIGINS defaults to "*", which accepts every origin;
	// tokens are then the only check on the upgrade.
	OriginPatterns []string
	Log            zerolog.Logger
}

// Dispatcher routes inbound events of every connection to their handlers.
type Dispatcher struct {
	gate      *Gate
	exec      executor.Executor
	resolve   func(typ string) (string, error)
	terminals Terminals
	remote    bool
	origins   []string
	log       zerolog.Logger

	handlers map[string]Handler
}

func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		gate:      opts.Gate,
		exec:      opts.Executor,
		resolve:   opts.Resolve,
		terminals: opts.Terminals,
		remote:    opts.Remote,
		origins:   opts.OriginPatterns,
		log:       opts.Log,
	}
	d.handlers = map[string]Handler{
		EventPerformUpdate:       d.performOperation(commands.UpdateOp),
		EventPerformLogs:         d.performOperation(commands.LogsOp),
		EventPerformServerUpdate: d.performOperation(commands.ServerUpdateOp),
		EventStopPerformLogs:     d.stopPerformLogs,
		EventStartLocalTerminal:  d.startTerminal(terminal.Local),
		EventStartRemoteTerminal: d.startTerminal(terminal.Remote),
	}
	return d
}

// ServeHTTP upgrades the request and serves the connection until the
// client goes away.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: d.origins,
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	d.Serve(r.Context(), ws)
}

// Serve runs one connection. It returns after the read side has ended and
// the connection has been torn down.
func (d *Dispatcher) Serve(ctx context.Context, ws *websocket.Conn) {
	c := newConn(ws, d.log)
	metrics.SocketConnections.Inc()
	defer metrics.SocketConnections.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.log.Debug().Msg("socket connected")
	go c.writePump(ctx)
	c.readPump(ctx, d.dispatch)

	d.disconnect(c)
	ws.CloseNow()
	c.log.Debug().Msg("socket disconnected")
}

func (d *Dispatcher) dispatch(c *Conn, event string, data json.RawMessage) {
	h, ok := c.handler(event)
	if !ok {
		h, ok = d.handlers[event]
	}
	if !ok {
		c.log.Debug().Str("event", logutil.SanitizeForLog(event)).Msg("ignoring unknown event")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Str("event", event).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("socket handler panicked")
		}
	}()
	h(c, data)
}

// disconnect tears the connection down. Nothing is emitted afterwards. The
// log stream and the terminal are stopped; update commands run to
// completion with their events dropped.
func (d *Dispatcher) disconnect(c *Conn) {
	c.markClosed()
	c.unbindAll()

	ls, sess, cancel := c.state.close()
	if ls != nil {
		ls.op.Detach()
		ls.stop()
	}
	if cancel != nil {
		cancel()
	}
	if sess != nil {
		_ = sess.Close()
	}
}
