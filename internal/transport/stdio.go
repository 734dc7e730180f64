package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
	"github.com/mcpguard/mcp-guard/pkg/mcp"
)

// closeGrace is how long Close waits for the child process to exit after
// signaling it before force-killing.
const closeGrace = 3 * time.Second

// maxFrameBytes bounds a single stdio frame; an upstream that writes a
// larger line is treated as misbehaving rather than growing memory
// without bound.
const maxFrameBytes = 16 << 20

// StdioTransport speaks JSON-RPC over a child process's stdin/stdout.
// One background task decodes stdout into an inbound queue; the caller's
// own goroutine writes to stdin synchronously via Send. Stderr is drained
// to the logger without blocking the process.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	inbound   chan *mcp.Message
	readerErr chan error

	healthy  atomic.Bool
	closed   atomic.Bool
	closeMu  sync.Mutex
	doneCh   chan struct{}
	doneOnce sync.Once
}

// StartStdioTransport validates command, then spawns it as a child
// process whose stdin/stdout/stderr are piped. command must pass
// ValidateCommand; args are passed as an argv array and are not
// validated.
func StartStdioTransport(ctx context.Context, command string, args []string, logger *slog.Logger) (*StdioTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidateCommand(command); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, apperr.WrapTransportError(apperr.TransportIo, "open stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, apperr.WrapTransportError(apperr.TransportIo, "open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, apperr.WrapTransportError(apperr.TransportIo, "open stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, apperr.WrapTransportError(apperr.TransportIo, "start upstream process", err)
	}
	go func() {
		s := bufio.NewScanner(stderr)
		for s.Scan() {
			logger.Info("upstream stderr", "line", s.Text())
		}
	}()

	t := &StdioTransport{
		cmd:       cmd,
		stdin:     stdin,
		logger:    logger,
		inbound:   make(chan *mcp.Message, 64),
		readerErr: make(chan error, 1),
		doneCh:    make(chan struct{}),
	}
	t.healthy.Store(true)
	go t.readLoop(stdout)
	return t, nil
}

func (t *StdioTransport) readLoop(stdout io.ReadCloser) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("stdio transport reader panicked", "panic", r)
			t.healthy.Store(false)
		}
		close(t.inbound)
	}()

	fr := mcp.NewFrameReader(bufio.NewReaderSize(stdout, 64*1024), maxFrameBytes)
	for {
		msg, err := fr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				t.healthy.Store(false)
				return
			}
			if errors.Is(err, mcp.ErrInvalidMessage) {
				t.logger.Warn("stdio transport received malformed frame, continuing", "error", err)
				continue
			}
			t.healthy.Store(false)
			t.readerErr <- err
			return
		}
		select {
		case t.inbound <- msg:
		case <-t.doneCh:
			return
		}
	}
}

// Send writes msg to the child's stdin.
func (t *StdioTransport) Send(_ context.Context, msg *mcp.Message) error {
	if t.closed.Load() {
		return apperr.NewTransportError(apperr.TransportConnectionClosed, "stdio transport is closed")
	}
	encoded, err := mcp.Encode(msg)
	if err != nil {
		return apperr.WrapTransportError(apperr.TransportSerialization, "encode outbound message", err)
	}
	if _, err := t.stdin.Write(encoded); err != nil {
		t.healthy.Store(false)
		return apperr.WrapTransportError(apperr.TransportIo, "write to upstream stdin", err)
	}
	return nil
}

// Receive returns the next decoded message from the child's stdout.
func (t *StdioTransport) Receive(ctx context.Context) (*mcp.Message, error) {
	select {
	case msg, ok := <-t.inbound:
		if !ok {
			select {
			case err := <-t.readerErr:
				return nil, apperr.WrapTransportError(apperr.TransportIo, "upstream reader failed", err)
			default:
				return nil, apperr.NewTransportError(apperr.TransportConnectionClosed, "upstream closed stdout")
			}
		}
		return msg, nil
	case <-ctx.Done():
		return nil, apperr.WrapTransportError(apperr.TransportTimeout, "receive canceled", ctx.Err())
	}
}

// Close signals the child process and waits up to closeGrace for it to
// exit before force-killing it. Idempotent.
func (t *StdioTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed.Swap(true) {
		return nil
	}
	t.doneOnce.Do(func() { close(t.doneCh) })

	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Signal(os.Interrupt)
	}

	exited := make(chan error, 1)
	go func() { exited <- t.cmd.Wait() }()

	select {
	case <-exited:
	case <-time.After(closeGrace):
		if t.cmd.Process != nil {
			if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return fmt.Errorf("stdio transport: kill upstream process: %w", err)
			}
		}
		<-exited
	}
	t.healthy.Store(false)
	return nil
}

// IsHealthy reports the cached liveness flag.
func (t *StdioTransport) IsHealthy() bool { return t.healthy.Load() && !t.closed.Load() }

var _ Transport = (*StdioTransport)(nil)
