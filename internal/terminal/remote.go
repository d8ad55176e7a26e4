package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Dialer opens an SSH connection to the managed host.
type Dialer interface {
	Dial(ctx context.Context) (*ssh.Client, error)
}

// ShellError means the SSH connection was established but the interactive
// shell could not be opened on it.
type ShellError struct {
	Err error
}

func (e *ShellError) Error() string { return e.Err.Error() }
func (e *ShellError) Unwrap() error { return e.Err }

type remoteSession struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	mu         sync.Mutex
	cols, rows uint16

	closeOnce sync.Once
	done      chan struct{}
}

// DialRemote connects through d and opens a shell on a remote pty. Any
// failure after the connection is up is a *ShellError and the connection is
// closed before returning.
func DialRemote(ctx context.Context, d Dialer, cols, rows uint16) (Session, error) {
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	client, err := d.Dial(ctx)
	if err != nil {
		return nil, err
	}

	session, err := openShell(client, cols, rows)
	if err != nil {
		client.Close()
		return nil, &ShellError{Err: err}
	}

	s := &remoteSession{
		client:  client,
		session: session.session,
		stdin:   session.stdin,
		stdout:  session.stdout,
		cols:    cols,
		rows:    rows,
		done:    make(chan struct{}),
	}
	go s.waitExit()
	return s, nil
}

type shell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func openShell(client *ssh.Client, cols, rows uint16) (*shell, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(TermType, int(rows), int(cols), modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}
	return &shell{session: session, stdin: stdin, stdout: stdout}, nil
}

func (s *remoteSession) waitExit() {
	_ = s.session.Wait()
	s.release()
	close(s.done)
}

func (s *remoteSession) Kind() Kind { return Remote }

func (s *remoteSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *remoteSession) Write(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, errors.New("terminal: session is closed")
	default:
	}
	return s.stdin.Write(p)
}

// Resize sends an SSH window-change request.
func (s *remoteSession) Resize(cols, rows uint16) error {
	if err := s.session.WindowChange(int(rows), int(cols)); err != nil {
		return fmt.Errorf("window change: %w", err)
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

func (s *remoteSession) Size() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Close ends the shell channel and the connection. waitExit observes the
// closed channel and closes Done.
func (s *remoteSession) Close() error {
	s.release()
	return nil
}

func (s *remoteSession) release() {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		_ = s.session.Close()
		_ = s.client.Close()
	})
}

func (s *remoteSession) Done() <-chan struct{} { return s.done }
