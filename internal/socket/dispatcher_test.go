package socket

import (
	"errors"
	"fmt"
	"testing"

	"github.com/coder/websocket"

	"github.com/miroslavpejic85/mirotalk-admin/internal/terminal"
)

func TestInvalidTokenStartsNothing(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	tests := []struct {
		event  string
		output string
		done   string
	}{
		{EventPerformUpdate, "updateOutput", "updateDone"},
		{EventPerformLogs, "logsOutput", "logsDone"},
		{EventPerformServerUpdate, "serverUpdateOutput", "serverUpdateDone"},
		{EventStartLocalTerminal, "terminalOutput", "terminalDone"},
		{EventStartRemoteTerminal, "terminalOutput", "terminalDone"},
	}
	for _, tt := range tests {
		c.send(tt.event, map[string]string{"token": "not-a-jwt"})
		c.expect(tt.output, invalidTokenMessage)
		c.expect(tt.done, 1)
	}
	// Missing payload entirely.
	c.send(EventPerformUpdate, nil)
	c.expect("updateOutput", invalidTokenMessage)
	c.expect("updateDone", 1)

	c.sync()
	if n := h.exec.started(); n != 0 {
		t.Errorf("processes started = %d, want 0", n)
	}
	if n := h.terms.started(); n != 0 {
		t.Errorf("terminals started = %d, want 0", n)
	}
}

func TestPerformUpdateFiltersNoiseAndReportsDone(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventPerformUpdate, map[string]string{"token": h.token})
	p := h.exec.next(t)
	if p.cmd != "cmd:update" {
		t.Errorf("command = %q, want cmd:update", p.cmd)
	}

	p.write(t, "Downloading [=====>     ] 45%\nAlready up to date.\n")
	c.expect("updateOutput", "Already up to date.")

	// Pure noise produces no event.
	p.write(t, "73%\n")
	p.write(t, "[PM2] Restarting app\n")
	c.expect("updateOutput", "[PM2] Restarting app")

	p.exit(0)
	c.expect("updateDone", 0)
	c.sync()
}

func TestPerformServerUpdateReportsExitCode(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventPerformServerUpdate, map[string]string{"token": h.token})
	p := h.exec.next(t)
	if p.cmd != "cmd:serverUpdate" {
		t.Errorf("command = %q, want cmd:serverUpdate", p.cmd)
	}
	p.write(t, "E: Could not get lock\n")
	c.expect("serverUpdateOutput", "E: Could not get lock")
	p.exit(100)
	c.expect("serverUpdateDone", 100)
	c.sync()
}

func TestLogsOutputIsNotFiltered(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventPerformLogs, map[string]string{"token": h.token})
	p := h.exec.next(t)
	if p.cmd != "cmd:realTimeLogs" {
		t.Errorf("command = %q, want cmd:realTimeLogs", p.cmd)
	}
	p.write(t, "Downloading [==>  ] 10%\n")
	c.expect("logsOutput", "Downloading [==>  ] 10%\n")
	p.exit(0)
	c.expect("logsDone", 0)
}

func TestStreamStartErrors(t *testing.T) {
	tests := []struct {
		name   string
		remote bool
		want   string
	}{
		{"local", false, "Command error: boom\n"},
		{"remote", true, "SSH error: boom\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) { o.Remote = tt.remote })
			h.exec.failStarts(errBoom)
			c := h.dial(t)

			c.send(EventPerformUpdate, map[string]string{"token": h.token})
			c.expect("updateOutput", tt.want)
			c.expect("updateDone", 1)
		})
	}
}

func TestResolveErrorIsReported(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Resolve = func(typ string) (string, error) { return "", fmt.Errorf("unknown command type %q", typ) }
	})
	c := h.dial(t)

	c.send(EventPerformServerUpdate, map[string]string{"token": h.token})
	c.expect("serverUpdateOutput", "Command error: unknown command type \"serverUpdate\"\n")
	c.expect("serverUpdateDone", 1)
	c.sync()
	if n := h.exec.started(); n != 0 {
		t.Errorf("processes started = %d, want 0", n)
	}
}

func TestStopPerformLogs(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventPerformLogs, map[string]string{"token": h.token})
	p := h.exec.next(t)
	p.write(t, "GET /join 200\n")
	c.expect("logsOutput", "GET /join 200\n")

	c.send(EventStopPerformLogs, nil)
	c.expect("logsDone", 0)
	waitFor(t, "log process killed", p.killed.Load)

	// Nothing else arrives for the stopped stream.
	c.sync()
}

func TestStopPerformLogsWithoutStream(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventStopPerformLogs, map[string]string{})
	c.expect("logsDone", 0)
	c.send(EventStopPerformLogs, nil)
	c.expect("logsDone", 0)
}

func TestPerformLogsReplacesRunningStream(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventPerformLogs, map[string]string{"token": h.token})
	first := h.exec.next(t)

	c.send(EventPerformLogs, map[string]string{"token": h.token})
	c.expect("logsDone", 0)
	second := h.exec.next(t)
	waitFor(t, "first log process killed", first.killed.Load)

	second.write(t, "new stream\n")
	c.expect("logsOutput", "new stream\n")
	if second.killed.Load() {
		t.Error("second log process was killed")
	}
}

func TestLocalTerminalLifecycle(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventStartLocalTerminal, map[string]string{"token": h.token})
	s := h.terms.next(t)
	if s.Kind() != terminal.Local {
		t.Errorf("kind = %v, want local", s.Kind())
	}

	s.emit("$ ")
	c.expect("terminalOutput", "$ ")

	c.send(EventTerminalInput, map[string]string{"token": h.token, "input": "uptime\n"})
	c.send(EventTerminalResize, map[string]any{"token": h.token, "cols": 2000, "rows": 0})
	c.sync()
	if got := s.typed(); got != "uptime\n" {
		t.Errorf("input = %q, want %q", got, "uptime\n")
	}
	if cols, rows := s.Size(); cols != terminal.MaxCols || rows != 1 {
		t.Errorf("size = %dx%d, want %dx1", cols, rows, terminal.MaxCols)
	}

	c.send(EventStopTerminal, map[string]string{"token": h.token})
	c.expect("terminalOutput", "\n[Process exited]\n")
	c.expect("terminalDone", 0)
	if !s.closed() {
		t.Error("session not closed after stop")
	}

	// A second stop has nothing to act on.
	c.send(EventStopTerminal, map[string]string{"token": h.token})
	c.sync()

	// Input after the session is gone goes nowhere.
	c.send(EventTerminalInput, map[string]string{"token": h.token, "input": "late\n"})
	c.sync()
	if got := s.typed(); got != "uptime\n" {
		t.Errorf("input after stop = %q", got)
	}
}

func TestTerminalEventsBeforeStartAreIgnored(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventTerminalInput, map[string]string{"token": h.token, "input": "ls\n"})
	c.send(EventTerminalResize, map[string]any{"token": h.token, "cols": 100, "rows": 40})
	c.send(EventStopTerminal, map[string]string{"token": h.token})
	c.sync()
}

func TestDoubleStartKeepsOneSession(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventStartLocalTerminal, map[string]string{"token": h.token})
	s := h.terms.next(t)
	c.send(EventStartLocalTerminal, map[string]string{"token": h.token})
	c.send(EventStartRemoteTerminal, map[string]string{"token": h.token})
	c.sync()

	if n := h.terms.started(); n != 1 {
		t.Fatalf("sessions started = %d, want 1", n)
	}
	if s.closed() {
		t.Error("first session closed by a repeated start")
	}
}

func TestInvalidTokenLeavesSessionRunning(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventStartLocalTerminal, map[string]string{"token": h.token})
	s := h.terms.next(t)

	c.send(EventTerminalInput, map[string]string{"token": "forged", "input": "rm -rf /\n"})
	c.expect("terminalOutput", invalidTokenMessage)
	c.expect("terminalDone", 1)

	c.send(EventStopTerminal, map[string]string{"token": "forged"})
	c.expect("terminalOutput", invalidTokenMessage)
	c.expect("terminalDone", 1)

	c.sync()
	if s.closed() {
		t.Fatal("session closed by a rejected event")
	}
	if got := s.typed(); got != "" {
		t.Errorf("input = %q, want none", got)
	}

	c.send(EventTerminalInput, map[string]string{"token": h.token, "input": "id\n"})
	c.sync()
	if got := s.typed(); got != "id\n" {
		t.Errorf("input = %q, want %q", got, "id\n")
	}
}

func TestRemoteTerminalExitAndRestart(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventStartRemoteTerminal, map[string]string{"token": h.token})
	s := h.terms.next(t)
	if s.Kind() != terminal.Remote {
		t.Errorf("kind = %v, want remote", s.Kind())
	}

	s.emit("root@host:~# ")
	c.expect("terminalOutput", "root@host:~# ")

	// Shell exits on its own.
	s.exit()
	c.expect("terminalOutput", "\n[SSH session closed]\n")
	c.expect("terminalDone", 0)

	c.send(EventStartRemoteTerminal, map[string]string{"token": h.token})
	h.terms.next(t)
	if n := h.terms.started(); n != 2 {
		t.Errorf("sessions started = %d, want 2", n)
	}
}

func TestTerminalStartErrors(t *testing.T) {
	tests := []struct {
		name  string
		event string
		err   error
		want  string
	}{
		{"connection", EventStartRemoteTerminal, errors.New("connection refused"), "SSH connection error: connection refused\n"},
		{"shell", EventStartRemoteTerminal, &terminal.ShellError{Err: errors.New("request pty: denied")}, "SSH shell error: request pty: denied\n"},
		{"local", EventStartLocalTerminal, errors.New("start pty: no such file"), "Terminal error: start pty: no such file\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.terms.set(func(f *fakeTerminals) { f.err = tt.err })
			c := h.dial(t)

			c.send(tt.event, map[string]string{"token": h.token})
			c.expect("terminalOutput", tt.want)
			c.expect("terminalDone", 1)

			// The slot is free again.
			h.terms.set(func(f *fakeTerminals) { f.err = nil })
			c.send(tt.event, map[string]string{"token": h.token})
			h.terms.next(t)
		})
	}
}

func TestStopDuringRemoteStart(t *testing.T) {
	h := newHarness(t)
	block := make(chan struct{})
	h.terms.set(func(f *fakeTerminals) { f.block = block })
	c := h.dial(t)

	c.send(EventStartRemoteTerminal, map[string]string{"token": h.token})
	c.send(EventStopTerminal, map[string]string{"token": h.token})
	c.sync()
	close(block)

	// The cancelled start reports nothing and left no session behind.
	c.sync()
	if n := h.terms.started(); n != 0 {
		t.Errorf("sessions started = %d, want 0", n)
	}
}

func TestDisconnectTearsDown(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	c.send(EventPerformLogs, map[string]string{"token": h.token})
	c.send(EventPerformUpdate, map[string]string{"token": h.token})
	procs := map[string]*fakeProcess{}
	for range 2 {
		p := h.exec.next(t)
		procs[p.cmd] = p
	}
	logs, update := procs["cmd:realTimeLogs"], procs["cmd:update"]
	if logs == nil || update == nil {
		t.Fatalf("started %v", procs)
	}

	c.send(EventStartLocalTerminal, map[string]string{"token": h.token})
	s := h.terms.next(t)

	_ = c.ws.Close(websocket.StatusNormalClosure, "")

	waitFor(t, "log process killed", logs.killed.Load)
	waitFor(t, "terminal closed", s.closed)

	// The update keeps running; its output has nowhere to go.
	if update.killed.Load() {
		t.Error("update process killed on disconnect")
	}
	update.write(t, "Already up to date.\n")
	update.exit(0)
}
