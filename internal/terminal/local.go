package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/miroslavpejic85/mirotalk-admin/internal/procgroup"
)

// LocalOptions configures StartLocal. Zero values select the defaults:
// $SHELL (or /bin/sh), $HOME, the server's environment and 80x24.
type LocalOptions struct {
	Shell string
	Dir   string
	Env   []string
	Cols  uint16
	Rows  uint16
	// Grace before SIGKILL when the shell ignores SIGHUP.
	Grace time.Duration
}

func (o *LocalOptions) defaults() {
	if o.Shell == "" {
		o.Shell = os.Getenv("SHELL")
	}
	if o.Shell == "" {
		o.Shell = "/bin/sh"
	}
	if o.Dir == "" {
		o.Dir = os.Getenv("HOME")
	}
	if o.Env == nil {
		o.Env = os.Environ()
	}
	if o.Cols == 0 {
		o.Cols = DefaultCols
	}
	if o.Rows == 0 {
		o.Rows = DefaultRows
	}
	if o.Grace == 0 {
		o.Grace = procgroup.DefaultGrace
	}
}

type localSession struct {
	cmd   *exec.Cmd
	ptmx  *os.File
	grace time.Duration

	mu         sync.Mutex
	cols, rows uint16
	closed     bool

	closeOnce sync.Once
	done      chan struct{}
}

// StartLocal spawns a shell on a new pty. The shell is a session leader, so
// Close reaches everything it started.
func StartLocal(opts LocalOptions) (Session, error) {
	opts.defaults()

	cmd := exec.Command(opts.Shell)
	cmd.Dir = opts.Dir
	cmd.Env = append(append([]string(nil), opts.Env...), "TERM="+TermType)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	s := &localSession{
		cmd:   cmd,
		ptmx:  ptmx,
		grace: opts.Grace,
		cols:  opts.Cols,
		rows:  opts.Rows,
		done:  make(chan struct{}),
	}
	go s.waitExit()
	return s, nil
}

func (s *localSession) waitExit() {
	_ = s.cmd.Wait()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	_ = s.ptmx.Close()
	close(s.done)
}

func (s *localSession) Kind() Kind { return Local }

func (s *localSession) Read(p []byte) (int, error) {
	return s.ptmx.Read(p)
}

func (s *localSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("terminal: session is closed")
	}
	return s.ptmx.Write(p)
}

func (s *localSession) Resize(cols, rows uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("terminal: session is closed")
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	s.cols, s.rows = cols, rows
	return nil
}

func (s *localSession) Size() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Close hangs up the shell. The pty is released by waitExit once the shell
// is gone, which also ends any pending Read.
func (s *localSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		go procgroup.Hangup(s.cmd, s.done, s.grace)
	})
	return nil
}

func (s *localSession) Done() <-chan struct{} { return s.done }
