package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blip/internal/groutine"
)

// Process runs the helper with stdin/stdout pipes.
// A pump goroutine reads stdout line by line into a buffered channel.
type Process struct {
	opts   Options
	iface  int
	logger *logrus.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *stderrTail
	started bool
	closed  bool

	lines      chan string
	readerDone chan struct{}
	exited     chan struct{}
	closing    chan struct{}
	exitErr    error
	workers    *groutine.Group
}

// NewProcess creates an unstarted pipe transport
func NewProcess(opts Options, iface int, logger *logrus.Logger) *Process {
	if logger == nil {
		logger = logrus.New()
	}
	return &Process{
		opts:   opts,
		iface:  iface,
		logger: logger,
		stderr: newStderrTail(opts.StderrLines),
	}
}

func helperCommand(opts Options, iface int) *exec.Cmd {
	args := append([]string{}, opts.HelperArgs...)
	if iface >= 0 {
		args = append(args, strconv.Itoa(iface))
	}
	return exec.Command(opts.HelperPath, args...)
}

// Start spawns the helper process
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	if p.closed {
		return ErrClosed
	}

	cmd := helperCommand(p.opts, p.iface)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("helper stdout: %w", err)
	}
	cmd.Stderr = p.stderr

	p.logger.WithFields(logrus.Fields{
		"helper": p.opts.HelperPath,
		"iface":  p.iface,
	}).Debug("Starting helper")

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start helper %s: %w", p.opts.HelperPath, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.lines = make(chan string, 256)
	p.readerDone = make(chan struct{})
	p.exited = make(chan struct{})
	p.closing = make(chan struct{})
	p.started = true

	p.workers = groutine.NewGroup(fmt.Sprintf("helper-hci%d", p.iface), p.logger)
	p.workers.Go("stdout", func(context.Context) {
		p.pump(stdout)
	})
	p.workers.Go("wait", func(context.Context) {
		<-p.readerDone
		err := cmd.Wait()
		p.exitErr = err
		p.logger.WithError(err).Debug("Helper exited")
		close(p.exited)
	})
	return nil
}

func (p *Process) pump(stdout io.Reader) {
	defer close(p.readerDone)

	r := bufio.NewReader(stdout)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			select {
			case p.lines <- line:
			case <-p.closing:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.WithError(err).Debug("Helper stdout read failed")
			}
			return
		}
	}
}

// WriteLine writes one command line to the helper's stdin
func (p *Process) WriteLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrNotStarted
	}
	if p.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(p.stdin, line); err != nil {
		return fmt.Errorf("write to helper: %w", err)
	}
	return nil
}

// ReadLine waits up to timeout for the next helper line
func (p *Process) ReadLine(timeout time.Duration) (string, error) {
	p.mu.Lock()
	started, closed := p.started, p.closed
	p.mu.Unlock()
	if !started {
		return "", ErrNotStarted
	}
	if closed {
		return "", ErrClosed
	}

	select {
	case line := <-p.lines:
		return line, nil
	default:
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case line := <-p.lines:
		return line, nil
	case <-p.readerDone:
		select {
		case line := <-p.lines:
			return line, nil
		default:
			return "", p.exitError()
		}
	case <-deadline:
		return "", ErrTimeout
	case <-p.closing:
		return "", ErrClosed
	}
}

func (p *Process) exitError() error {
	select {
	case <-p.exited:
		return &ExitError{Err: p.exitErr, Stderr: p.stderr.Drain()}
	case <-time.After(p.opts.StopTimeout):
		return &ExitError{Stderr: p.stderr.Drain()}
	}
}

// Alive reports whether the helper still runs or has unread lines
func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.closed {
		return false
	}
	select {
	case <-p.readerDone:
		return len(p.lines) > 0
	default:
		return true
	}
}

// Close closes stdin, waits for the helper to exit and kills it after the grace period
func (p *Process) Close() error {
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

	close(p.closing)
	_ = p.stdin.Close()

	select {
	case <-p.exited:
	case <-time.After(p.opts.StopTimeout):
		p.logger.Warn("Helper did not exit in time, killing it")
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill helper: %w", err)
		}
		<-p.exited
	}
	if !p.workers.WaitTimeout(p.opts.StopTimeout) {
		p.logger.Warn("Helper goroutines still running after close")
	}
	return nil
}

// Stderr returns the buffered tail of the helper's stderr
func (p *Process) Stderr() []string {
	return p.stderr.Drain()
}
