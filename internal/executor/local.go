package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/miroslavpejic85/mirotalk-admin/internal/logging"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
	"github.com/miroslavpejic85/mirotalk-admin/internal/procgroup"
)

// Local runs commands with sh -c on this host. Each command gets its own
// process group so Kill reaches its children.
type Local struct {
	Shell string
	Grace time.Duration
	log   zerolog.Logger
}

func NewLocal() *Local {
	return &Local{
		Shell: "sh",
		Grace: procgroup.DefaultGrace,
		log:   logging.WithComponent("executor"),
	}
}

func (l *Local) command(ctx context.Context, cmd string) *exec.Cmd {
	c := exec.CommandContext(ctx, l.Shell, "-c", cmd)
	procgroup.Set(c)
	c.Cancel = func() error {
		procgroup.Kill(c)
		return nil
	}
	return c
}

// Run executes cmd and returns stdout. A non-zero exit yields *ExitError.
func (l *Local) Run(ctx context.Context, cmd string) (string, error) {
	start := time.Now()
	c := l.command(ctx, cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	l.log.Debug().Str("cmd", logutil.SanitizeForLog(cmd)).Dur("elapsed", time.Since(start)).Msg("local command finished")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &ExitError{Code: exitCode(exitErr), Stderr: stderr.String()}
		}
		return stdout.String(), fmt.Errorf("run command: %w", err)
	}
	return stdout.String(), nil
}

// Start spawns cmd with separate stdout and stderr pipes. ctx only bounds the
// spawn; the process lives until it exits or Kill is called.
func (l *Local) Start(_ context.Context, cmd string) (Process, error) {
	c := exec.Command(l.Shell, "-c", cmd)
	procgroup.Set(c)

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}
	l.log.Debug().Int("pid", c.Process.Pid).Str("cmd", logutil.SanitizeForLog(cmd)).Msg("local command started")

	return &localProcess{
		cmd:    c,
		stdout: stdout,
		stderr: stderr,
		grace:  l.Grace,
		exited: make(chan struct{}),
	}, nil
}

func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// WriteFile replaces the file content, keeping its mode if it exists.
func (l *Local) WriteFile(_ context.Context, path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
	grace  time.Duration

	exited   chan struct{}
	waitOnce sync.Once
	code     int
	err      error
	killOnce sync.Once
}

func (p *localProcess) Stdout() io.Reader { return p.stdout }
func (p *localProcess) Stderr() io.Reader { return p.stderr }

func (p *localProcess) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		close(p.exited)
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			p.code = exitCode(exitErr)
		default:
			p.code, p.err = 1, err
		}
	})
	return p.code, p.err
}

// Kill terminates the process group, escalating to SIGKILL in the
// background if the group outlives the grace period.
func (p *localProcess) Kill() {
	p.killOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		go procgroup.Terminate(p.cmd, p.exited, p.grace)
	})
}

// exitCode maps death by signal to 1 so callers always see a usable status.
func exitCode(err *exec.ExitError) int {
	if code := err.ExitCode(); code >= 0 {
		return code
	}
	return 1
}
