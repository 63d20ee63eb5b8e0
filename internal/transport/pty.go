package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/blip/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const pollIntervalMs = 50

// PTY runs the helper on a raw-mode pseudo-terminal.
// Reads are polled inline on the caller's goroutine; bytes are staged in a ring
// buffer and split into lines there.
type PTY struct {
	opts   Options
	iface  int
	logger *logrus.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	master  *os.File
	stderr  *stderrTail
	readBuf *ringbuffer.RingBuffer
	partial []byte
	pending []string
	started bool
	closed  bool
	eof     bool

	exited  chan struct{}
	exitErr error
	workers *groutine.Group
}

// NewPTY creates an unstarted pseudo-terminal transport
func NewPTY(opts Options, iface int, logger *logrus.Logger) *PTY {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = DefaultOptions().ReadBuffer
	}
	return &PTY{
		opts:    opts,
		iface:   iface,
		logger:  logger,
		stderr:  newStderrTail(opts.StderrLines),
		readBuf: ringbuffer.New(opts.ReadBuffer),
	}
}

func openRawPTY() (*os.File, *os.File, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY: %w", err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, fmt.Errorf("failed to set PTY %s to raw mode: %w", slave.Name(), err)
	}
	return master, slave, nil
}

// Start spawns the helper with the PTY slave as its stdin and stdout
func (p *PTY) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	if p.closed {
		return ErrClosed
	}

	master, slave, err := openRawPTY()
	if err != nil {
		return err
	}

	cmd := helperCommand(p.opts, p.iface)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = p.stderr

	p.logger.WithFields(logrus.Fields{
		"helper": p.opts.HelperPath,
		"iface":  p.iface,
		"tty":    slave.Name(),
	}).Debug("Starting helper on PTY")

	if err := cmd.Start(); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return fmt.Errorf("failed to start helper %s: %w", p.opts.HelperPath, err)
	}
	// the child holds its own copy; closing ours lets the master see EOF on exit
	_ = slave.Close()

	p.cmd = cmd
	p.master = master
	p.exited = make(chan struct{})
	p.started = true

	p.workers = groutine.NewGroup(fmt.Sprintf("helper-pty-hci%d", p.iface), p.logger)
	p.workers.Go("wait", func(context.Context) {
		err := cmd.Wait()
		p.exitErr = err
		p.logger.WithError(err).Debug("Helper exited")
		close(p.exited)
	})
	return nil
}

// WriteLine writes one command line to the PTY master
func (p *PTY) WriteLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrNotStarted
	}
	if p.closed {
		return ErrClosed
	}
	if _, err := p.master.Write([]byte(line)); err != nil {
		return fmt.Errorf("write to helper: %w", err)
	}
	return nil
}

// ReadLine polls the PTY master until a full line is available or timeout expires
func (p *PTY) ReadLine(timeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return "", ErrNotStarted
	}
	if p.closed {
		return "", ErrClosed
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLIN}}
	buf := make([]byte, 4096)

	for {
		if line, ok := p.nextLine(); ok {
			return line, nil
		}
		if p.eof {
			if len(p.partial) > 0 {
				line := string(p.partial)
				p.partial = nil
				return line, nil
			}
			return "", p.exitError()
		}

		wait := pollIntervalMs
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return "", ErrTimeout
			}
			if ms := int(remaining / time.Millisecond); ms < wait {
				wait = ms + 1
			}
		}

		n, err := unix.Poll(fds, wait)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return "", fmt.Errorf("poll helper: %w", err)
		}
		if n == 0 {
			continue
		}

		nr, err := p.master.Read(buf)
		if nr > 0 {
			if _, werr := p.readBuf.Write(buf[:nr]); werr != nil && !errors.Is(werr, ringbuffer.ErrIsFull) {
				return "", fmt.Errorf("buffer helper output: %w", werr)
			}
			p.splitLines()
		}
		if err != nil {
			switch {
			case errors.Is(err, syscall.EINTR), errors.Is(err, syscall.EAGAIN):
				continue
			case errors.Is(err, io.EOF), errors.Is(err, syscall.EIO):
				// slave side gone: the helper exited
				p.eof = true
			default:
				return "", fmt.Errorf("read helper: %w", err)
			}
		}
	}
}

// splitLines moves buffered bytes into complete lines
func (p *PTY) splitLines() {
	chunk := make([]byte, p.readBuf.Length())
	for !p.readBuf.IsEmpty() {
		n, err := p.readBuf.TryRead(chunk)
		if err != nil {
			break
		}
		p.partial = append(p.partial, chunk[:n]...)
	}
	for {
		i := bytes.IndexByte(p.partial, '\n')
		if i < 0 {
			return
		}
		p.pending = append(p.pending, string(p.partial[:i+1]))
		p.partial = p.partial[i+1:]
	}
}

func (p *PTY) nextLine() (string, bool) {
	if len(p.pending) == 0 {
		return "", false
	}
	line := p.pending[0]
	p.pending = p.pending[1:]
	return line, true
}

func (p *PTY) exitError() error {
	select {
	case <-p.exited:
		return &ExitError{Err: p.exitErr, Stderr: p.stderr.Drain()}
	case <-time.After(p.opts.StopTimeout):
		return &ExitError{Stderr: p.stderr.Drain()}
	}
}

// Alive reports whether the helper still runs or has unread lines
func (p *PTY) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.closed {
		return false
	}
	// the master may still hold output after the helper exits; only EOF on it ends the stream
	return !p.eof || len(p.pending) > 0 || len(p.partial) > 0 || !p.readBuf.IsEmpty()
}

// Close closes the PTY master, waits for the helper and kills it after the grace period
func (p *PTY) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	_ = p.master.Close()

	select {
	case <-p.exited:
	case <-time.After(p.opts.StopTimeout):
		p.logger.Warn("Helper did not exit in time, killing it")
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill helper: %w", err)
		}
		<-p.exited
	}
	return nil
}
