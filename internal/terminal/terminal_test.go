package terminal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/miroslavpejic85/mirotalk-admin/internal/executor"
	"github.com/miroslavpejic85/mirotalk-admin/internal/sshtest"
)

// collect reads r in the background and lets tests wait for a substring.
type collect struct {
	mu  sync.Mutex
	buf bytes.Buffer
	eof chan struct{}
}

func newCollect(r io.Reader) *collect {
	c := &collect{eof: make(chan struct{})}
	go func() {
		defer close(c.eof)
		b := make([]byte, 1024)
		for {
			n, err := r.Read(b)
			c.mu.Lock()
			c.buf.Write(b[:n])
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return c
}

func (c *collect) waitFor(t *testing.T, s string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		ok := strings.Contains(c.buf.String(), s)
		c.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Fatalf("output never contained %q; got %q", s, c.buf.String())
}

func waitDone(t *testing.T, s Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestClampSize(t *testing.T) {
	tests := []struct {
		cols, rows         int
		wantCols, wantRows uint16
	}{
		{120, 40, 120, 40},
		{0, -3, 1, 1},
		{9999, 501, MaxCols, MaxRows},
	}
	for _, tt := range tests {
		c, r := ClampSize(tt.cols, tt.rows)
		if c != tt.wantCols || r != tt.wantRows {
			t.Errorf("ClampSize(%d, %d) = %d, %d", tt.cols, tt.rows, c, r)
		}
	}
}

func TestExitNotice(t *testing.T) {
	if Local.ExitNotice() != "\n[Process exited]\n" {
		t.Errorf("local notice = %q", Local.ExitNotice())
	}
	if Remote.ExitNotice() != "\n[SSH session closed]\n" {
		t.Errorf("remote notice = %q", Remote.ExitNotice())
	}
	if Local.String() != "local" || Remote.String() != "remote" {
		t.Error("unexpected Kind.String")
	}
}

func TestLocalSessionEcho(t *testing.T) {
	s, err := StartLocal(LocalOptions{Shell: "/bin/sh", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("StartLocal: %v", err)
	}
	defer s.Close()

	if s.Kind() != Local {
		t.Errorf("Kind = %v", s.Kind())
	}
	if c, r := s.Size(); c != DefaultCols || r != DefaultRows {
		t.Errorf("Size = %dx%d, want 80x24", c, r)
	}

	out := newCollect(s)
	if _, err := s.Write([]byte("echo $TERM-marker\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out.waitFor(t, "xterm-color-marker")

	if err := s.Resize(132, 50); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if _, err := s.Write([]byte("stty size\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out.waitFor(t, "50 132")
	if c, r := s.Size(); c != 132 || r != 50 {
		t.Errorf("Size = %dx%d", c, r)
	}
}

func TestLocalSessionExit(t *testing.T) {
	s, err := StartLocal(LocalOptions{Shell: "/bin/sh"})
	if err != nil {
		t.Fatalf("StartLocal: %v", err)
	}
	out := newCollect(s)
	s.Write([]byte("exit\n"))
	waitDone(t, s)

	select {
	case <-out.eof:
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after exit")
	}
	if _, err := s.Write([]byte("x")); err == nil {
		t.Error("Write after exit succeeded")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after exit: %v", err)
	}
}

func TestLocalSessionClose(t *testing.T) {
	s, err := StartLocal(LocalOptions{Shell: "/bin/sh", Grace: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("StartLocal: %v", err)
	}
	newCollect(s)
	s.Close()
	s.Close()
	waitDone(t, s)
	if err := s.Resize(10, 10); err == nil {
		t.Error("Resize after Close succeeded")
	}
}

// echoShell upper-cases each line it reads back to the client.
func echoShell(ch ssh.Channel) {
	buf := make([]byte, 256)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			line := strings.TrimSpace(string(buf[:n]))
			if line == "exit" {
				return
			}
			ch.Write([]byte(strings.ToUpper(line) + "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

type ptyRecorder struct {
	mu      sync.Mutex
	term    string
	size    [2]uint32
	resizes [][2]uint32
}

func (p *ptyRecorder) onPTY(term string, cols, rows uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.term, p.size = term, [2]uint32{cols, rows}
}

func (p *ptyRecorder) onWindowChange(cols, rows uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, [2]uint32{cols, rows})
}

func dialerFor(srv *sshtest.Server) executor.SSHConfig {
	return executor.SSHConfig{
		Host:        srv.Host,
		Port:        srv.Port,
		User:        sshtest.User,
		Password:    sshtest.Password,
		DialTimeout: 5 * time.Second,
	}
}

func waitNoConns(t *testing.T, srv *sshtest.Server) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Open() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d ssh connections still open", srv.Open())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRemoteSession(t *testing.T) {
	rec := &ptyRecorder{}
	srv := sshtest.Start(t, sshtest.Handler{
		Shell:          echoShell,
		OnPTY:          rec.onPTY,
		OnWindowChange: rec.onWindowChange,
	})

	s, err := DialRemote(context.Background(), dialerFor(srv), 0, 0)
	if err != nil {
		t.Fatalf("DialRemote: %v", err)
	}
	out := newCollect(s)

	rec.mu.Lock()
	if rec.term != TermType || rec.size != [2]uint32{80, 24} {
		t.Errorf("pty-req term=%q size=%v", rec.term, rec.size)
	}
	rec.mu.Unlock()

	if _, err := s.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out.waitFor(t, "HELLO")

	if err := s.Resize(100, 30); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	// window-change carries no reply; wait for the server to see it.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.resizes)
		var got [2]uint32
		if n > 0 {
			got = rec.resizes[0]
		}
		rec.mu.Unlock()
		if n > 0 {
			if n != 1 || got != [2]uint32{100, 30} {
				t.Errorf("resizes = %d, first %v", n, got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("window-change never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Write([]byte("exit\n"))
	waitDone(t, s)
	waitNoConns(t, srv)
}

func TestRemoteSessionClose(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Handler{Shell: echoShell})
	s, err := DialRemote(context.Background(), dialerFor(srv), 80, 24)
	if err != nil {
		t.Fatalf("DialRemote: %v", err)
	}
	newCollect(s)
	s.Close()
	s.Close()
	waitDone(t, s)
	waitNoConns(t, srv)
	if _, err := s.Write([]byte("x")); err == nil {
		t.Error("Write after Close succeeded")
	}
}

func TestRemoteShellRejected(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Handler{RejectShell: true})
	_, err := DialRemote(context.Background(), dialerFor(srv), 80, 24)
	var shellErr *ShellError
	if !errors.As(err, &shellErr) {
		t.Fatalf("err = %v, want *ShellError", err)
	}
	waitNoConns(t, srv)
}

func TestRemoteDialFailure(t *testing.T) {
	cfg := executor.SSHConfig{Host: "127.0.0.1", Port: 1, User: "root", Password: "x", DialTimeout: time.Second}
	_, err := DialRemote(context.Background(), cfg, 80, 24)
	if err == nil {
		t.Fatal("expected dial error")
	}
	var shellErr *ShellError
	if errors.As(err, &shellErr) {
		t.Errorf("dial failure reported as shell error: %v", err)
	}
}
