// Package sshtest runs an in-process SSH server for tests of the executor,
// terminal and socket packages. It accepts password and public key auth,
// serves exec requests through a callback and interactive shells through
// another, and counts transport connections so tests can assert that a
// connection was (or was never) opened and that it was closed again.
package sshtest

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/miroslavpejic85/mirotalk-admin/internal/sshkeys"
	"golang.org/x/crypto/ssh"
)

const (
	User     = "root"
	Password = "secret"
)

// Handler configures the server's behavior.
type Handler struct {
	// Exec serves an exec request. stdin is the channel itself, so reading it
	// blocks until the client closes the session. The return value is sent
	// as the exit status.
	Exec func(cmd string, stdin io.Reader, stdout, stderr io.Writer) uint32

	// Shell serves an interactive shell. The channel is closed with exit
	// status 0 when it returns.
	Shell func(ch ssh.Channel)

	// RejectShell refuses shell requests.
	RejectShell bool

	// OnPTY is called for pty-req with the requested geometry.
	OnPTY func(term string, cols, rows uint32)

	// OnWindowChange is called for window-change requests.
	OnWindowChange func(cols, rows uint32)
}

// Server is a running test SSH server.
type Server struct {
	Host string
	Port int

	// ClientKeyPEM is an authorized private key for public key auth.
	ClientKeyPEM []byte

	listener net.Listener
	config   *ssh.ServerConfig
	handler  Handler

	accepted atomic.Int64
	open     atomic.Int64
	wg       sync.WaitGroup
}

// Start starts a server and registers its shutdown with t.Cleanup.
func Start(t *testing.T, h Handler) *Server {
	t.Helper()

	_, hostPEM, err := sshkeys.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := sshkeys.ParsePrivateKey(hostPEM)
	if err != nil {
		t.Fatalf("parse host key: %v", err)
	}
	_, clientPEM, err := sshkeys.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientSigner, err := sshkeys.ParsePrivateKey(clientPEM)
	if err != nil {
		t.Fatalf("parse client key: %v", err)
	}
	authorized := ssh.FingerprintSHA256(clientSigner.PublicKey())

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if conn.User() == User && string(pw) == Password {
				return &ssh.Permissions{}, nil
			}
			return nil, errUnauthorized
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() == User && ssh.FingerprintSHA256(key) == authorized {
				return &ssh.Permissions{}, nil
			}
			return nil, errUnauthorized
		},
	}
	cfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	s := &Server{
		Host:         host,
		Port:         port,
		ClientKeyPEM: clientPEM,
		listener:     listener,
		config:       cfg,
		handler:      h,
	}

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

type authError string

func (e authError) Error() string { return string(e) }

const errUnauthorized = authError("unauthorized")

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Accepted returns how many transport connections completed the handshake.
func (s *Server) Accepted() int64 { return s.accepted.Load() }

// Open returns how many transport connections are currently open.
func (s *Server) Open() int64 { return s.open.Load() }

// Close stops accepting connections.
func (s *Server) Close() {
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(netConn)
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		netConn.Close()
		return
	}
	s.accepted.Add(1)
	s.open.Add(1)
	go func() {
		sshConn.Wait()
		s.open.Add(-1)
	}()
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "pty-req":
			var p struct {
				Term          string
				Cols, Rows    uint32
				Width, Height uint32
				Modes         string
			}
			if err := ssh.Unmarshal(req.Payload, &p); err == nil && s.handler.OnPTY != nil {
				s.handler.OnPTY(p.Term, p.Cols, p.Rows)
			}
			reply(req, true)

		case "window-change":
			if len(req.Payload) >= 8 && s.handler.OnWindowChange != nil {
				s.handler.OnWindowChange(binary.BigEndian.Uint32(req.Payload[0:4]), binary.BigEndian.Uint32(req.Payload[4:8]))
			}
			reply(req, true)

		case "exec":
			var p struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil || s.handler.Exec == nil {
				reply(req, false)
				continue
			}
			reply(req, true)
			go func(cmd string) {
				status := s.handler.Exec(cmd, ch, ch, ch.Stderr())
				exit(ch, status)
			}(p.Command)

		case "shell":
			if s.handler.RejectShell || s.handler.Shell == nil {
				reply(req, false)
				continue
			}
			reply(req, true)
			go func() {
				s.handler.Shell(ch)
				exit(ch, 0)
			}()

		default:
			reply(req, false)
		}
	}
	ch.Close()
}

func reply(req *ssh.Request, ok bool) {
	if req.WantReply {
		req.Reply(ok, nil)
	}
}

func exit(ch ssh.Channel, status uint32) {
	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
	ch.CloseWrite()
	ch.Close()
}
