package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// stopGrace is how long Close waits for the subprocess to exit on its own
// after stdin is closed.
const stopGrace = 5 * time.Second

// StdioConfig describes the tool server subprocess.
type StdioConfig struct {
	Name    string
	Command string
	Args    []string
	// Env entries ("KEY=VALUE") are appended to the current environment.
	Env []string
}

// StdioTransport talks to an MCP server running as a child process.
type StdioTransport struct {
	cfg    StdioConfig
	logger *log.Entry

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

// StartStdio launches the subprocess described by cfg. The process lives
// until Close is called or a Send fails.
func StartStdio(cfg StdioConfig) (*StdioTransport, error) {
	if cfg.Command == "" {
		return nil, errors.New("mcp: tool server command is required")
	}

	t := &StdioTransport{
		cfg:    cfg,
		logger: log.WithFields(log.Fields{"component": "mcp", "server": cfg.Name}),
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start tool server %s: %w", cfg.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReaderSize(stdout, 1<<20)

	go t.drainStderr(stderr)

	t.logger.WithField("pid", cmd.Process.Pid).Info("tool server started")
	return t, nil
}

func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.WithField("line", scanner.Text()).Debug("tool server stderr")
	}
}

type readResult struct {
	line []byte
	err  error
}

// Send writes req and reads lines until the matching response arrives.
// Server-initiated notifications and non-JSON lines are skipped. When ctx
// ends first the subprocess is killed so the pending read unblocks.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil {
		return nil, errors.New("mcp: transport closed")
	}

	if err := t.writeLine(req); err != nil {
		t.kill()
		return nil, err
	}

	for {
		ch := make(chan readResult, 1)
		reader := t.reader
		go func() {
			line, err := reader.ReadBytes('\n')
			ch <- readResult{line: line, err: err}
		}()

		select {
		case <-ctx.Done():
			t.kill()
			return nil, ctx.Err()
		case res := <-ch:
			if res.err != nil {
				t.kill()
				return nil, fmt.Errorf("read from tool server: %w", res.err)
			}

			var resp Response
			if err := json.Unmarshal(res.line, &resp); err != nil {
				t.logger.WithField("line", string(res.line)).Debug("skipping non-JSON line")
				continue
			}
			if resp.ID != req.ID {
				t.logger.WithField("id", resp.ID).Debug("skipping unmatched message")
				continue
			}
			return &resp, nil
		}
	}
}

// Notify writes a notification.
func (t *StdioTransport) Notify(_ context.Context, notif *Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil {
		return errors.New("mcp: transport closed")
	}
	if err := t.writeLine(notif); err != nil {
		t.kill()
		return err
	}
	return nil
}

func (t *StdioTransport) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to tool server: %w", err)
	}
	return nil
}

// Close stops the subprocess: stdin is closed first, and the process is
// killed if it has not exited after a short grace period. Close is safe to
// call more than once.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil {
		return nil
	}

	cmd := t.cmd
	pid := cmd.Process.Pid
	t.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(stopGrace):
		t.logger.WithField("pid", pid).Warn("tool server did not exit, killing")
		_ = cmd.Process.Kill()
		<-done
	}

	t.reset()
	t.logger.WithField("pid", pid).Info("tool server stopped")
	return nil
}

// kill terminates the subprocess after a protocol failure. Caller holds t.mu.
func (t *StdioTransport) kill() {
	if t.cmd == nil {
		return
	}
	t.stdin.Close()
	_ = t.cmd.Process.Kill()
	_ = t.cmd.Wait()
	t.reset()
}

func (t *StdioTransport) reset() {
	t.cmd = nil
	t.stdin = nil
	t.reader = nil
}
