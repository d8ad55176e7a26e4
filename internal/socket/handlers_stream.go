package socket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/miroslavpejic85/mirotalk-admin/internal/commands"
	"github.com/miroslavpejic85/mirotalk-admin/internal/metrics"
	"github.com/miroslavpejic85/mirotalk-admin/internal/stream"
)

var logsEvents = stream.EventsFor(commands.LogsOp.Event)

// performOperation returns the handler that streams op. The real-time log
// stream is tracked on the connection so it can be stopped; the others run
// until the command exits.
func (d *Dispatcher) performOperation(op commands.Operation) Handler {
	events := stream.EventsFor(op.Event)
	tracked := op == commands.LogsOp

	return func(c *Conn, data json.RawMessage) {
		var p tokenPayload
		decode(data, &p)
		if !d.gate.Validate(p.Token, c, events) {
			return
		}

		cmd, err := d.resolve(op.Command)
		if err != nil {
			c.log.Error().Err(err).Str("operation", op.Event).Msg("resolve command")
			c.Emit(events.Output, fmt.Sprintf("Command error: %v\n", err))
			c.Emit(events.Done, 1)
			metrics.RecordOperation(op.Event, 1)
			return
		}

		run := stream.NewOperation(c, events, op.AppliesOutputFilter)
		ctx, cancel := context.WithCancel(context.Background())

		var ls *logStream
		if tracked {
			ls = newLogStream(run, cancel)
			prev, ok := c.state.replaceLogs(ls)
			if !ok {
				ls.release()
				cancel()
				return
			}
			if prev != nil {
				prev.stop()
				prev.op.Finish(0)
			}
		}

		c.log.Info().Str("operation", op.Event).Msg("starting streamed command")
		go d.runOperation(ctx, cancel, c, op, run, ls, cmd)
	}
}

func (d *Dispatcher) runOperation(ctx context.Context, cancel context.CancelFunc, c *Conn, op commands.Operation, run *stream.Operation, ls *logStream, cmd string) {
	defer cancel()
	if ls != nil {
		defer func() {
			c.state.clearLogs(ls)
			ls.release()
		}()
	}

	proc, err := d.exec.Start(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Error().Err(err).Str("operation", op.Event).Msg("start streamed command")
		run.Fail(fmt.Sprintf("%s: %v\n", d.startErrorPrefix(), err))
		metrics.RecordOperation(op.Event, 1)
		return
	}
	if ls != nil && !ls.attach(proc) {
		return
	}

	code, ok := stream.Relay(ctx, run, proc)
	if !ok {
		c.log.Debug().Str("operation", op.Event).Msg("streamed command stopped")
		return
	}
	c.log.Info().Str("operation", op.Event).Int("code", code).Msg("streamed command finished")
	metrics.RecordOperation(op.Event, code)
}

func (d *Dispatcher) startErrorPrefix() string {
	if d.remote {
		return "SSH error"
	}
	return "Command error"
}

// stopPerformLogs stops the log stream, if any, and always answers with
// logsDone 0.
func (d *Dispatcher) stopPerformLogs(c *Conn, _ json.RawMessage) {
	if ls := c.state.takeLogs(); ls != nil {
		ls.stop()
		if ls.op.Finish(0) {
			return
		}
	}
	c.Emit(logsEvents.Done, 0)
}
