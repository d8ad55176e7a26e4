package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/miroslavpejic85/mirotalk-admin/internal/metrics"
	"github.com/miroslavpejic85/mirotalk-admin/internal/stream"
	"github.com/miroslavpejic85/mirotalk-admin/internal/terminal"
)

const terminalReadSize = 32 * 1024

var termEvents = stream.TerminalEvents

// startTerminal returns the start handler for kind. A start while a session
// is starting or running is ignored.
func (d *Dispatcher) startTerminal(kind terminal.Kind) Handler {
	return func(c *Conn, data json.RawMessage) {
		var p tokenPayload
		decode(data, &p)
		if !d.gate.Validate(p.Token, c, termEvents) {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		gen, ok := c.state.beginTerminal(kind, cancel)
		if !ok {
			cancel()
			c.log.Debug().Str("kind", kind.String()).Msg("terminal already active, ignoring start")
			return
		}

		c.Bind(EventTerminalInput, d.terminalInput)
		c.Bind(EventTerminalResize, d.terminalResize)
		c.Bind(EventStopTerminal, d.stopTerminal)

		// A pty starts immediately; an SSH dial must not hold up the
		// connection's other events.
		if kind == terminal.Local {
			d.openTerminal(ctx, cancel, c, kind, gen)
			return
		}
		go d.openTerminal(ctx, cancel, c, kind, gen)
	}
}

func (d *Dispatcher) openTerminal(ctx context.Context, cancel context.CancelFunc, c *Conn, kind terminal.Kind, gen uint64) {
	sess, err := d.terminals.Start(ctx, kind)
	if err != nil {
		c.state.abortTerminal(gen)
		cancel()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Str("kind", kind.String()).Msg("terminal start failed")
		c.Emit(termEvents.Output, terminalStartError(kind, err))
		c.Emit(termEvents.Done, 1)
		return
	}

	if !c.state.activateTerminal(gen, sess) {
		cancel()
		_ = sess.Close()
		return
	}

	metrics.TerminalSessions.WithLabelValues(kind.String()).Inc()
	c.log.Info().Str("kind", kind.String()).Msg("terminal started")
	go d.pumpTerminal(c, sess, gen, cancel)
}

func terminalStartError(kind terminal.Kind, err error) string {
	if kind == terminal.Local {
		return fmt.Sprintf("Terminal error: %v\n", err)
	}
	var shellErr *terminal.ShellError
	if errors.As(err, &shellErr) {
		return fmt.Sprintf("SSH shell error: %v\n", shellErr.Err)
	}
	return fmt.Sprintf("SSH connection error: %v\n", err)
}

// pumpTerminal forwards session output verbatim until the session ends,
// then announces the end unless a newer session has taken its place.
func (d *Dispatcher) pumpTerminal(c *Conn, sess terminal.Session, gen uint64, cancel context.CancelFunc) {
	defer cancel()
	defer metrics.TerminalSessions.WithLabelValues(sess.Kind().String()).Dec()

	buf := make([]byte, terminalReadSize)
	for {
		n, err := sess.Read(buf)
		if n > 0 {
			c.Emit(termEvents.Output, string(buf[:n]))
		}
		if err != nil {
			break
		}
	}
	_ = sess.Close()
	<-sess.Done()

	if !c.state.endTerminal(gen) {
		return
	}
	c.log.Info().Str("kind", sess.Kind().String()).Msg("terminal ended")
	c.Emit(termEvents.Output, sess.Kind().ExitNotice())
	c.Emit(termEvents.Done, 0)
}

func (d *Dispatcher) terminalInput(c *Conn, data json.RawMessage) {
	var p inputPayload
	decode(data, &p)
	if !d.gate.Validate(p.Token, c, termEvents) {
		return
	}
	sess := c.state.session()
	if sess == nil {
		return
	}
	if _, err := sess.Write([]byte(p.Input)); err != nil {
		c.log.Debug().Err(err).Msg("terminal write failed")
	}
}

func (d *Dispatcher) terminalResize(c *Conn, data json.RawMessage) {
	var p resizePayload
	decode(data, &p)
	if !d.gate.Validate(p.Token, c, termEvents) {
		return
	}
	sess := c.state.session()
	if sess == nil {
		return
	}
	cols, rows := terminal.ClampSize(p.Cols, p.Rows)
	if err := sess.Resize(cols, rows); err != nil {
		c.log.Debug().Err(err).Msg("terminal resize failed")
	}
}

// stopTerminal ends the session or a start in flight. The session's pump
// sends the exit notice and terminalDone once it is gone. Without a session
// it does nothing.
func (d *Dispatcher) stopTerminal(c *Conn, data json.RawMessage) {
	var p tokenPayload
	decode(data, &p)
	if !d.gate.Validate(p.Token, c, termEvents) {
		return
	}
	sess, cancel := c.state.stopTerminal()
	if cancel != nil {
		cancel()
	}
	if sess != nil {
		_ = sess.Close()
	}
}
