package socket

import (
	"context"
	"sync"

	"github.com/miroslavpejic85/mirotalk-admin/internal/executor"
	"github.com/miroslavpejic85/mirotalk-admin/internal/metrics"
	"github.com/miroslavpejic85/mirotalk-admin/internal/stream"
	"github.com/miroslavpejic85/mirotalk-admin/internal/terminal"
)

type termState int

const (
	termIdle termState = iota
	termStarting
	termRunning
)

// termSlot holds the connection's terminal. gen increases with every start
// so late notifications from an earlier session can be told apart.
type termSlot struct {
	state   termState
	kind    terminal.Kind
	gen     uint64
	session terminal.Session
	cancel  context.CancelFunc
}

// logStream is the connection's real-time log command. The process is
// attached once it has started; a stop before that kills it on attach.
type logStream struct {
	op     *stream.Operation
	cancel context.CancelFunc

	mu      sync.Mutex
	proc    executor.Process
	stopped bool
	gauge   sync.Once
}

func newLogStream(op *stream.Operation, cancel context.CancelFunc) *logStream {
	metrics.LogStreams.Inc()
	return &logStream{op: op, cancel: cancel}
}

// attach records the started process. It reports false, after killing the
// process, if the stream was stopped in the meantime.
func (ls *logStream) attach(proc executor.Process) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.stopped {
		proc.Kill()
		return false
	}
	ls.proc = proc
	return true
}

// stop cancels the relay and kills the process. Safe to call repeatedly.
func (ls *logStream) stop() {
	ls.mu.Lock()
	ls.stopped = true
	proc := ls.proc
	ls.mu.Unlock()

	ls.cancel()
	if proc != nil {
		proc.Kill()
	}
	ls.release()
}

func (ls *logStream) release() {
	ls.gauge.Do(metrics.LogStreams.Dec)
}

// connState is the per-connection record owned by the dispatcher: at most
// one terminal and at most one log stream.
type connState struct {
	mu     sync.Mutex
	term   termSlot
	logs   *logStream
	closed bool
}

// beginTerminal moves the slot from idle to starting. It reports false when
// a session is already starting or running, or the connection is closed.
func (s *connState) beginTerminal(kind terminal.Kind, cancel context.CancelFunc) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.term.state != termIdle {
		return 0, false
	}
	s.term.gen++
	s.term.state = termStarting
	s.term.kind = kind
	s.term.cancel = cancel
	return s.term.gen, true
}

// activateTerminal installs a started session. It reports false if the
// start was stopped or superseded while in flight; the caller then closes
// the session.
func (s *connState) activateTerminal(gen uint64, sess terminal.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.term.gen != gen || s.term.state != termStarting {
		return false
	}
	s.term.state = termRunning
	s.term.session = sess
	return true
}

// abortTerminal returns a failed start to idle.
func (s *connState) abortTerminal(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.term.gen == gen && s.term.state == termStarting {
		s.term = termSlot{gen: gen}
	}
}

// endTerminal is called when session gen has ended. It clears the slot if
// it still holds that session and reports whether gen is still the latest
// session, i.e. whether the client should hear about the end.
func (s *connState) endTerminal(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.term.gen != gen {
		return false
	}
	if s.term.state == termRunning {
		s.term = termSlot{gen: gen}
	}
	return !s.closed
}

// stopTerminal clears the slot and returns what the caller must shut down.
func (s *connState) stopTerminal() (terminal.Session, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, cancel := s.term.session, s.term.cancel
	s.term = termSlot{gen: s.term.gen}
	return sess, cancel
}

// session returns the running session, if any.
func (s *connState) session() terminal.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.term.state != termRunning {
		return nil
	}
	return s.term.session
}

// replaceLogs installs ls and returns the previous stream, if any.
func (s *connState) replaceLogs(ls *logStream) (*logStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	prev := s.logs
	s.logs = ls
	return prev, true
}

// takeLogs removes and returns the current log stream.
func (s *connState) takeLogs() *logStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.logs
	s.logs = nil
	return ls
}

// clearLogs removes ls if it is still the current stream.
func (s *connState) clearLogs(ls *logStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logs == ls {
		s.logs = nil
	}
}

// close marks the connection closed and returns everything still running.
func (s *connState) close() (*logStream, terminal.Session, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	ls := s.logs
	s.logs = nil
	sess, cancel := s.term.session, s.term.cancel
	s.term = termSlot{gen: s.term.gen}
	return ls, sess, cancel
}
