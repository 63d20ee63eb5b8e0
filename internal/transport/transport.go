// Package transport carries the helper's line protocol over a duplex byte stream.
//
// A Transport frames lines, reads with a poll timeout and reports whether the
// helper is still alive. Two implementations spawn the helper process:
// Process talks over stdin/stdout pipes, PTY over a pseudo-terminal pair.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Transport errors
var (
	ErrTimeout    = errors.New("transport: no data before timeout")
	ErrExited     = errors.New("transport: helper exited")
	ErrClosed     = errors.New("transport: closed")
	ErrNotStarted = errors.New("transport: helper not started")
)

// Transport is a line-framed duplex channel to the helper
type Transport interface {
	// Start spawns the helper; calling it on a started transport is a no-op.
	Start() error
	// WriteLine writes one complete line and flushes it.
	WriteLine(line string) error
	// ReadLine returns the next line including its terminator.
	// A timeout <= 0 blocks until a line arrives or the helper exits.
	ReadLine(timeout time.Duration) (string, error)
	// Alive reports whether the helper is running or still has buffered output.
	Alive() bool
	// Close releases the helper; safe to call more than once.
	Close() error
}

// Factory creates an unstarted Transport bound to a controller index (-1 for default)
type Factory func(iface int) (Transport, error)

// Kind selects the transport implementation
type Kind string

const (
	KindPipe Kind = "pipe"
	KindPTY  Kind = "pty"
)

// Options configures helper spawning
type Options struct {
	HelperPath  string        // helper executable
	HelperArgs  []string      // extra arguments placed before the interface index
	Kind        Kind          // pipe (default) or pty
	StopTimeout time.Duration // grace period before the helper is killed on Close
	StderrLines uint32        // helper stderr lines kept for diagnostics
	ReadBuffer  int           // PTY read ring capacity in bytes
}

// DefaultOptions returns sensible defaults for a helper found on PATH
func DefaultOptions() Options {
	return Options{
		HelperPath:  "bluepy-helper",
		Kind:        KindPipe,
		StopTimeout: 2 * time.Second,
		StderrLines: 64,
		ReadBuffer:  16 * 1024,
	}
}

// ParseCommand splits a shell-style helper command line into path and arguments,
// e.g. "sudo /usr/lib/bluepy-helper".
func ParseCommand(cmdline string) (string, []string, error) {
	parts, err := shlex.Split(cmdline)
	if err != nil {
		return "", nil, fmt.Errorf("invalid helper command %q: %w", cmdline, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty helper command")
	}
	return parts[0], parts[1:], nil
}

// NewFactory returns a Factory spawning helpers with opts
func NewFactory(opts Options, logger *logrus.Logger) Factory {
	if logger == nil {
		logger = logrus.New()
	}
	defaults := DefaultOptions()
	if opts.HelperPath == "" {
		opts.HelperPath = defaults.HelperPath
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaults.StopTimeout
	}
	if opts.StderrLines == 0 {
		opts.StderrLines = defaults.StderrLines
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = defaults.ReadBuffer
	}

	return func(iface int) (Transport, error) {
		switch opts.Kind {
		case "", KindPipe:
			return NewProcess(opts, iface, logger), nil
		case KindPTY:
			return NewPTY(opts, iface, logger), nil
		default:
			return nil, fmt.Errorf("unknown transport kind %q", opts.Kind)
		}
	}
}

// ExitError describes a helper that went away, with the tail of its stderr
type ExitError struct {
	Err    error
	Stderr []string
}

func (e *ExitError) Error() string {
	msg := ErrExited.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Stderr) > 0 {
		msg = fmt.Sprintf("%s; last stderr: %q", msg, e.Stderr[len(e.Stderr)-1])
	}
	return msg
}

// Is matches ErrExited
func (e *ExitError) Is(target error) bool {
	return target == ErrExited
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
