package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Host runs the processes behind sessions.
type Host interface {
	// Create starts the process for id in dir.
	Create(ctx context.Context, id, dir string) error
	// Write sends input to id.
	Write(ctx context.Context, id, data string) error
	// Read drains the output produced since the last read. When nothing is
	// buffered it waits up to wait for the first output.
	Read(ctx context.Context, id string, wait time.Duration) (string, error)
	// Pending returns buffered output without draining it.
	Pending(id string) (string, error)
	Resize(ctx context.Context, id string, cols, rows int) error
	Close(id string) error
}

var (
	errClosed     = errors.New("session closed")
	errNoProcess  = errors.New("no such process")
	errExited     = errors.New("shell exited")
	maxBufferSize = 1 << 20
)

// ShellHost runs one long-lived shell per session with piped stdio. Output
// from stdout and stderr is merged in arrival order.
type ShellHost struct {
	shell string
	env   []string

	mu    sync.Mutex
	procs map[string]*shellProc
}

// NewShellHost creates a host that starts shell (default "sh").
func NewShellHost(shell string, env []string) *ShellHost {
	if shell == "" {
		shell = "sh"
	}
	return &ShellHost{shell: shell, env: env, procs: make(map[string]*shellProc)}
}

type shellProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	mu     sync.Mutex
	buf    bytes.Buffer
	notify chan struct{}
	cols   int
	rows   int
}

// Write implements io.Writer for the process's stdout and stderr.
func (p *shellProc) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Write(b)
	if over := p.buf.Len() - maxBufferSize; over > 0 {
		p.buf.Next(over)
	}
	close(p.notify)
	p.notify = make(chan struct{})
	return len(b), nil
}

func (h *ShellHost) Create(ctx context.Context, id, dir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.procs[id]; exists {
		return fmt.Errorf("process %s already exists", id)
	}

	// The shell outlives ctx, so it is not bound to it.
	cmd := exec.Command(h.shell)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), h.env...)
	cmd.WaitDelay = time.Second
	p := &shellProc{cmd: cmd, done: make(chan struct{}), notify: make(chan struct{}), cols: 80, rows: 24}
	cmd.Stdout = p
	cmd.Stderr = p

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	p.stdin = stdin
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", h.shell, err)
	}
	go func() {
		err := cmd.Wait()
		slog.Debug("terminal: shell exited", "id", id, "err", err)
		close(p.done)
	}()
	h.procs[id] = p
	return nil
}

func (h *ShellHost) get(id string) (*shellProc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.procs[id]
	if !ok {
		return nil, errNoProcess
	}
	return p, nil
}

func (h *ShellHost) Write(_ context.Context, id, data string) error {
	p, err := h.get(id)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return fmt.Errorf("shell for %s: %w", id, errExited)
	default:
	}
	if _, err := io.WriteString(p.stdin, data); err != nil {
		// A broken pipe usually means the shell is on its way out.
		select {
		case <-p.done:
			return fmt.Errorf("shell for %s: %w", id, errExited)
		case <-time.After(100 * time.Millisecond):
		}
		return err
	}
	return nil
}

func (h *ShellHost) Read(ctx context.Context, id string, wait time.Duration) (string, error) {
	p, err := h.get(id)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	if p.buf.Len() > 0 || wait <= 0 {
		out := p.buf.String()
		p.buf.Reset()
		p.mu.Unlock()
		if out == "" && p.exited() {
			return "", fmt.Errorf("shell for %s: %w", id, errExited)
		}
		return out, nil
	}
	notify := p.notify
	p.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-notify:
		// Give the rest of a burst a moment to arrive.
		time.Sleep(20 * time.Millisecond)
	case <-timer.C:
	case <-p.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.buf.String()
	p.buf.Reset()
	if out == "" && p.exited() {
		return "", fmt.Errorf("shell for %s: %w", id, errExited)
	}
	return out, nil
}

func (p *shellProc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (h *ShellHost) Pending(id string) (string, error) {
	p, err := h.get(id)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String(), nil
}

// Resize records the window size. Piped shells have no terminal to resize;
// the size is exported as COLUMNS/LINES to commands started afterwards.
func (h *ShellHost) Resize(ctx context.Context, id string, cols, rows int) error {
	p, err := h.get(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cols, p.rows = cols, rows
	p.mu.Unlock()
	return h.Write(ctx, id, fmt.Sprintf("export COLUMNS=%d LINES=%d\n", cols, rows))
}

func (h *ShellHost) Close(id string) error {
	h.mu.Lock()
	p, ok := h.procs[id]
	delete(h.procs, id)
	h.mu.Unlock()
	if !ok {
		return errNoProcess
	}

	_ = p.stdin.Close()
	select {
	case <-p.done:
		return nil
	case <-time.After(500 * time.Millisecond):
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill shell %s: %w", id, err)
	}
	<-p.done
	return nil
}
