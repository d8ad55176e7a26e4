package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/miroslavpejic85/mirotalk-admin/internal/config"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logging"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
	"github.com/miroslavpejic85/mirotalk-admin/internal/sshkeys"
)

// SSHConfig holds the process-wide connection parameters of the managed host.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKeyPath string
	KnownHostsPath string
	DialTimeout    time.Duration
}

func SSHConfigFrom(cfg config.Settings) SSHConfig {
	return SSHConfig{
		Host:           cfg.SSHHost,
		Port:           cfg.SSHPort,
		User:           cfg.SSHUser,
		Password:       cfg.SSHPassword,
		PrivateKeyPath: cfg.SSHPrivateKey,
		KnownHostsPath: cfg.SSHKnownHosts,
		DialTimeout:    cfg.SSHDialTimeout,
	}
}

func (c SSHConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ClientConfig builds the ssh client config. A password wins over a
// private key when both are set.
func (c SSHConfig) ClientConfig() (*ssh.ClientConfig, error) {
	var auth ssh.AuthMethod
	switch {
	case c.Password != "":
		auth = ssh.Password(c.Password)
	case c.PrivateKeyPath != "":
		signer, err := sshkeys.LoadSigner(c.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		auth = ssh.PublicKeys(signer)
	default:
		return nil, ErrNoSSHCredentials
	}

	hostKeyCallback, err := sshkeys.HostKeyCallback(c.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.DialTimeout,
	}, nil
}

// Dial opens a new SSH connection. Connections are never pooled: every
// caller owns and closes the client it gets.
func (c SSHConfig) Dial(ctx context.Context) (*ssh.Client, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("connect: SSH_HOST is not set")
	}
	clientConfig, err := c.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	addr := c.Addr()
	dialer := net.Dialer{Timeout: c.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", logutil.SanitizeForLog(addr), err)
	}

	// The handshake itself does not watch ctx.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("connect to %s: %w", logutil.SanitizeForLog(addr), ctx.Err())
		}
		return nil, fmt.Errorf("connect to %s: %w", logutil.SanitizeForLog(addr), err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Remote runs commands on the SSH host, one connection per call.
type Remote struct {
	cfg SSHConfig
	log zerolog.Logger
}

func NewRemote(cfg SSHConfig) *Remote {
	return &Remote{cfg: cfg, log: logging.WithComponent("executor")}
}

func (r *Remote) Config() SSHConfig { return r.cfg }

// execute runs cmd on a fresh connection, feeding stdin when non-nil.
func (r *Remote) execute(ctx context.Context, cmd string, stdin []byte) (stdout, stderr string, err error) {
	start := time.Now()
	client, err := r.cfg.Dial(ctx)
	if err != nil {
		return "", "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	runErr := session.Run(cmd)
	r.log.Debug().Str("cmd", logutil.SanitizeForLog(cmd)).Dur("elapsed", time.Since(start)).Msg("remote command finished")

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return outBuf.String(), errBuf.String(), &ExitError{Code: exitErr.ExitStatus(), Stderr: errBuf.String()}
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
		}
		return outBuf.String(), errBuf.String(), fmt.Errorf("run remote command: %w", runErr)
	}
	return outBuf.String(), errBuf.String(), nil
}

func (r *Remote) Run(ctx context.Context, cmd string) (string, error) {
	stdout, _, err := r.execute(ctx, cmd, nil)
	return stdout, err
}

// Start dials, starts cmd and returns immediately. The connection is closed
// when the command exits or Kill is called.
func (r *Remote) Start(ctx context.Context, cmd string) (Process, error) {
	client, err := r.cfg.Dial(ctx)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := session.Start(cmd); err != nil {
		client.Close()
		return nil, fmt.Errorf("start remote command: %w", err)
	}
	r.log.Debug().Str("cmd", logutil.SanitizeForLog(cmd)).Msg("remote command started")

	return &remoteProcess{client: client, session: session, stdout: stdout, stderr: stderr}, nil
}

func (r *Remote) ReadFile(ctx context.Context, path string) ([]byte, error) {
	stdout, _, err := r.execute(ctx, "cat "+shellQuote(path), nil)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return []byte(stdout), nil
}

func (r *Remote) WriteFile(ctx context.Context, path string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	if _, _, err := r.execute(ctx, "cat > "+shellQuote(path), data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

type remoteProcess struct {
	client  *ssh.Client
	session *ssh.Session
	stdout  io.Reader
	stderr  io.Reader

	waitOnce sync.Once
	code     int
	err      error
	closed   sync.Once
	killed   bool
	mu       sync.Mutex
}

func (p *remoteProcess) Stdout() io.Reader { return p.stdout }
func (p *remoteProcess) Stderr() io.Reader { return p.stderr }

func (p *remoteProcess) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.session.Wait()
		p.close()

		var exitErr *ssh.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			p.code = exitErr.ExitStatus()
		default:
			p.mu.Lock()
			killed := p.killed
			p.mu.Unlock()
			p.code = 1
			if !killed {
				p.err = fmt.Errorf("remote command: %w", err)
			}
		}
	})
	return p.code, p.err
}

func (p *remoteProcess) Kill() {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.close()
}

func (p *remoteProcess) close() {
	p.closed.Do(func() {
		_ = p.session.Close()
		_ = p.client.Close()
	})
}
