package socket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/miroslavpejic85/mirotalk-admin/internal/auth"
	"github.com/miroslavpejic85/mirotalk-admin/internal/executor"
	"github.com/miroslavpejic85/mirotalk-admin/internal/terminal"
)

const testSecret = "socket-test-secret"

// --- executor fake ---

type fakeProcess struct {
	cmd    string
	stdout *io.PipeReader
	w      *io.PipeWriter
	exited chan struct{}
	code   int
	once   sync.Once
	killed atomic.Bool
}

func newFakeProcess(cmd string) *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{cmd: cmd, stdout: r, w: w, exited: make(chan struct{})}
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader { return nil }

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited
	return p.code, nil
}

func (p *fakeProcess) Kill() {
	p.killed.Store(true)
	p.exit(137)
}

// write blocks until the relay has read the chunk.
func (p *fakeProcess) write(t *testing.T, s string) {
	t.Helper()
	if _, err := p.w.Write([]byte(s)); err != nil {
		t.Fatalf("write to %s: %v", p.cmd, err)
	}
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.code = code
		p.w.Close()
		close(p.exited)
	})
}

type fakeExecutor struct {
	mu       sync.Mutex
	commands []string
	startErr error
	procs    chan *fakeProcess
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{procs: make(chan *fakeProcess, 16)}
}

func (e *fakeExecutor) Run(context.Context, string) (string, error)      { return "", nil }
func (e *fakeExecutor) ReadFile(context.Context, string) ([]byte, error) { return nil, nil }
func (e *fakeExecutor) WriteFile(context.Context, string, []byte) error  { return nil }

func (e *fakeExecutor) Start(_ context.Context, cmd string) (executor.Process, error) {
	e.mu.Lock()
	e.commands = append(e.commands, cmd)
	err := e.startErr
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p := newFakeProcess(cmd)
	e.procs <- p
	return p, nil
}

func (e *fakeExecutor) failStarts(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErr = err
}

func (e *fakeExecutor) started() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.commands)
}

func (e *fakeExecutor) next(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case p := <-e.procs:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no process started")
		return nil
	}
}

// --- terminal fake ---

type fakeSession struct {
	kind terminal.Kind
	out  *io.PipeReader
	w    *io.PipeWriter

	mu         sync.Mutex
	input      bytes.Buffer
	cols, rows uint16

	closes atomic.Int32
	once   sync.Once
	done   chan struct{}
}

func newFakeSession(kind terminal.Kind) *fakeSession {
	r, w := io.Pipe()
	return &fakeSession{
		kind: kind,
		out:  r,
		w:    w,
		cols: terminal.DefaultCols,
		rows: terminal.DefaultRows,
		done: make(chan struct{}),
	}
}

func (s *fakeSession) Kind() terminal.Kind        { return s.kind }
func (s *fakeSession) Read(p []byte) (int, error) { return s.out.Read(p) }
func (s *fakeSession) Done() <-chan struct{}       { return s.done }
func (s *fakeSession) closed() bool                { return s.closes.Load() > 0 }

func (s *fakeSession) Size() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

func (s *fakeSession) typed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.String()
}

// emit writes shell output; it blocks until the pump has read it.
func (s *fakeSession) emit(out string) {
	_, _ = s.w.Write([]byte(out))
}

func (s *fakeSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.Write(p)
}

func (s *fakeSession) Resize(cols, rows uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols, s.rows = cols, rows
	return nil
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	s.exit()
	return nil
}

// exit ends the shell as if it quit on its own.
func (s *fakeSession) exit() {
	s.once.Do(func() {
		s.w.Close()
		close(s.done)
	})
}

type fakeTerminals struct {
	mu       sync.Mutex
	err      error
	block    chan struct{}
	panicMsg string
	count    int
	created  chan *fakeSession
}

func newFakeTerminals() *fakeTerminals {
	return &fakeTerminals{created: make(chan *fakeSession, 16)}
}

func (f *fakeTerminals) Start(ctx context.Context, kind terminal.Kind) (terminal.Session, error) {
	f.mu.Lock()
	err, block, panicMsg := f.err, f.block, f.panicMsg
	f.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := newFakeSession(kind)
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	f.created <- s
	return s, nil
}

func (f *fakeTerminals) set(fn func(f *fakeTerminals)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeTerminals) started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeTerminals) next(t *testing.T) *fakeSession {
	t.Helper()
	select {
	case s := <-f.created:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal session started")
		return nil
	}
}

// --- harness ---

type harness struct {
	exec  *fakeExecutor
	terms *fakeTerminals
	srv   *httptest.Server
	token string
}

func newHarness(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()

	authority := auth.NewAuthority(testSecret, time.Hour, "admin", "")
	token, err := authority.Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	h := &harness{exec: newFakeExecutor(), terms: newFakeTerminals(), token: token}
	opts := Options{
		Gate:      NewGate(authority, zerolog.Nop()),
		Executor:  h.exec,
		Resolve:   func(typ string) (string, error) { return "cmd:" + typ, nil },
		Terminals: h.terms,
		Log:       zerolog.Nop(),
	}
	for _, fn := range configure {
		fn(&opts)
	}

	h.srv = httptest.NewServer(NewDispatcher(opts))
	t.Cleanup(h.srv.Close)
	return h
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func (h *harness) dial(t *testing.T) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, h.srv.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.CloseNow() })
	return &client{t: t, ws: ws}
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	b, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	c.sendRaw(b)
}

func (c *client) sendRaw(b []byte) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.ws.Write(ctx, websocket.MessageText, b); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *client) next() (string, any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := c.ws.Read(ctx)
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var msg struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}
	if err := json.Unmarshal(b, &msg); err != nil {
		c.t.Fatalf("decode %s: %v", b, err)
	}
	return msg.Event, msg.Data
}

// expect reads the next event and compares it. Integer codes arrive as JSON
// numbers.
func (c *client) expect(event string, want any) {
	c.t.Helper()
	if code, ok := want.(int); ok {
		want = float64(code)
	}
	gotEvent, got := c.next()
	if gotEvent != event || got != want {
		c.t.Fatalf("got %s %#v, want %s %#v", gotEvent, got, event, want)
	}
}

// sync sends a request with a side-effect free reply. Events are handled in
// order, so once the reply arrives everything sent before it was handled
// and nothing else was emitted in between.
func (c *client) sync() {
	c.t.Helper()
	c.send(EventPerformUpdate, map[string]string{"token": "sync"})
	c.expect("updateOutput", invalidTokenMessage)
	c.expect("updateDone", 1)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
