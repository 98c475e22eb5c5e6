package inference

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sys/unix"

	"crossvoice/internal/logging"
)

const (
	stderrTailBytes = 4096
	shutdownTimeout = 10 * time.Second
	waitDelay       = 5 * time.Second
)

// Session is a client for one bridge process. Requests are serialized: the
// process handles one at a time.
type Session struct {
	mu     sync.Mutex
	enc    *msgpack.Encoder
	dec    *msgpack.Decoder
	stdin  io.Closer
	stdout io.Closer
	stderr *tailBuffer
	kill   func() error
	wait   func() error
	nextID uint64
	closed bool
	cause  error
	logger *slog.Logger
}

// Start launches the bridge process described by opts.
func Start(ctx context.Context, opts LaunchOptions, logger *slog.Logger) (*Session, error) {
	logger = logging.NewComponentLogger(logger, "bridge")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scriptPath, err := writeScript(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	name, args, err := opts.command(scriptPath)
	if err != nil {
		return nil, err
	}

	// The process outlives ctx; cancellation is handled per request.
	cmd := exec.Command(name, args...) //nolint:gosec
	cmd.Dir = opts.ModelDir
	cmd.Env = opts.environ()
	// uvx runs python as a child; killing the group reaches both.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdin: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdout: %w", err)
	}
	cmd.Stdout = stdoutW
	tail := newTailBuffer(stderrTailBytes, logger)
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("start bridge (%s): %w", name, err)
	}
	stdoutW.Close()
	logger.Info("inference bridge started",
		logging.String("launcher", name),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("model_dir", opts.ModelDir),
	)

	waitOnce := sync.OnceValue(cmd.Wait)
	s := newSession(stdoutR, stdin, tail, func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}, waitOnce, logger)
	s.stdout = stdoutR
	return s, nil
}

func newSession(r io.Reader, w io.WriteCloser, tail *tailBuffer, kill, wait func() error, logger *slog.Logger) *Session {
	if tail == nil {
		tail = newTailBuffer(stderrTailBytes, logger)
	}
	return &Session{
		enc:    msgpack.NewEncoder(w),
		dec:    msgpack.NewDecoder(bufio.NewReader(r)),
		stdin:  w,
		stderr: tail,
		kill:   kill,
		wait:   wait,
		logger: logger,
	}
}

// call sends req and waits for its response. A cancelled ctx or an
// exceeded timeout kills the process: it cannot be interrupted mid-request.
func (s *Session) call(ctx context.Context, req *request, timeout time.Duration) (*response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, s.closedError()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.nextID++
	req.ID = s.nextID

	type result struct {
		resp response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if err := s.enc.Encode(req); err != nil {
			done <- result{err: fmt.Errorf("send %s: %w", req.Op, err)}
			return
		}
		var resp response
		if err := s.dec.Decode(&resp); err != nil {
			done <- result{err: fmt.Errorf("receive %s: %w", req.Op, err)}
			return
		}
		done <- result{resp: resp}
	}()

	start := time.Now()
	select {
	case <-ctx.Done():
		s.abort(ctx.Err())
		return nil, fmt.Errorf("bridge %s: %w", req.Op, ctx.Err())
	case r := <-done:
		if r.err != nil {
			s.abort(r.err)
			return nil, s.closedError()
		}
		s.logger.Debug("bridge request complete",
			logging.String("op", req.Op),
			logging.Duration("elapsed", time.Since(start)),
		)
		if r.resp.ID != req.ID {
			return nil, fmt.Errorf("%w: response id %d for request %d", ErrProtocol, r.resp.ID, req.ID)
		}
		if !r.resp.OK {
			return nil, &BridgeError{Op: req.Op, Type: r.resp.ErrorType, Message: r.resp.Error}
		}
		return &r.resp, nil
	}
}

// abort marks the session dead and stops the process. Caller holds s.mu.
func (s *Session) abort(cause error) {
	if s.closed {
		return
	}
	s.closed = true
	s.cause = cause
	if s.kill != nil {
		if err := s.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, unix.ESRCH) {
			s.logger.Debug("bridge kill failed", logging.Error(err))
		}
	}
	s.closePipes()
	if s.wait != nil {
		_ = s.wait()
	}
}

func (s *Session) closePipes() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
}

func (s *Session) closedError() error {
	cause := "process exited"
	if s.cause != nil {
		cause = s.cause.Error()
	}
	if tail := s.stderr.String(); tail != "" {
		return fmt.Errorf("%w: %s\npython stderr:\n%s", ErrBridgeClosed, cause, tail)
	}
	return fmt.Errorf("%w: %s", ErrBridgeClosed, cause)
}

// Close asks the process to exit and waits for it, killing it when it does
// not stop in time. Close is safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_, err := s.call(ctx, &request{Op: opShutdown}, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cause = errors.New("closed")
	s.closePipes()
	if s.wait != nil {
		if werr := s.wait(); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		return fmt.Errorf("close bridge: %w", err)
	}
	return nil
}

// tailBuffer keeps the last n bytes written to it and logs each line at
// debug level.
type tailBuffer struct {
	mu      sync.Mutex
	limit   int
	buf     []byte
	partial []byte
	logger  *slog.Logger
}

func newTailBuffer(limit int, logger *slog.Logger) *tailBuffer {
	return &tailBuffer{limit: limit, logger: logger}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0:0], t.buf[over:]...)
	}
	if t.logger != nil {
		t.partial = append(t.partial, p...)
		for {
			idx := strings.IndexByte(string(t.partial), '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimSpace(string(t.partial[:idx]))
			t.partial = t.partial[idx+1:]
			if line != "" {
				t.logger.Debug("python", logging.String("line", line))
			}
		}
		if len(t.partial) > t.limit {
			t.partial = t.partial[len(t.partial)-t.limit:]
		}
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
