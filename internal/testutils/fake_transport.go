package testutils

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/srg/blip/internal/transport"
)

// ErrScriptExhausted is returned by a blocking read when nothing is queued
var ErrScriptExhausted = fmt.Errorf("fake transport: script exhausted: %w", transport.ErrExited)

// Responder computes reply lines for a command that has no scripted reply
type Responder func(cmd string) []string

// FakeTransport is a scripted helper: it records every written command and
// answers from per-command reply queues, a Responder, or a free-running queue.
// Reads never block; an empty queue is a timeout.
type FakeTransport struct {
	mu        sync.Mutex
	lines     []string
	writes    []string
	replies   map[string][][]string
	responder Responder
	started   bool
	closed    bool
	exited    bool

	StartErr error
	Ifaces   []int
	Starts   int
	Closes   int
}

// NewFakeTransport creates an empty scripted transport
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{replies: make(map[string][][]string)}
}

func terminate(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !strings.HasSuffix(l, "\n") {
			l += "\n"
		}
		out = append(out, l)
	}
	return out
}

// Queue appends unsolicited lines, read before anything a command produces later
func (f *FakeTransport) Queue(lines ...string) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, terminate(lines)...)
	return f
}

// On scripts the reply to the next write of cmd (without its newline).
// Repeated calls for the same command queue replies in order.
func (f *FakeTransport) On(cmd string, lines ...string) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[cmd] = append(f.replies[cmd], terminate(lines))
	return f
}

// WithResponder installs a fallback for commands without scripted replies
func (f *FakeTransport) WithResponder(r Responder) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responder = r
	return f
}

// Exit simulates the helper going away once queued lines are consumed
func (f *FakeTransport) Exit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited = true
}

// Writes returns the commands written so far, without newlines
func (f *FakeTransport) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// Pending returns how many queued lines have not been read
func (f *FakeTransport) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines)
}

// Closed reports whether Close was called since the last Start
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Factory returns a transport.Factory that always hands out this fake
func (f *FakeTransport) Factory() transport.Factory {
	return func(iface int) (transport.Transport, error) {
		f.mu.Lock()
		f.Ifaces = append(f.Ifaces, iface)
		f.mu.Unlock()
		return f, nil
	}
}

func (f *FakeTransport) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	f.started = true
	f.closed = false
	f.Starts++
	return nil
}

func (f *FakeTransport) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return transport.ErrNotStarted
	}
	if f.closed {
		return transport.ErrClosed
	}

	cmd := strings.TrimRight(line, "\n")
	f.writes = append(f.writes, cmd)

	if queued := f.replies[cmd]; len(queued) > 0 {
		f.lines = append(f.lines, queued[0]...)
		f.replies[cmd] = queued[1:]
		return nil
	}
	if f.responder != nil {
		f.lines = append(f.lines, terminate(f.responder(cmd))...)
	}
	return nil
}

func (f *FakeTransport) ReadLine(timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return "", transport.ErrNotStarted
	}
	if f.closed {
		return "", transport.ErrClosed
	}
	if len(f.lines) > 0 {
		line := f.lines[0]
		f.lines = f.lines[1:]
		return line, nil
	}
	if f.exited {
		return "", transport.ErrExited
	}
	if timeout > 0 {
		return "", transport.ErrTimeout
	}
	return "", ErrScriptExhausted
}

func (f *FakeTransport) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started && !f.closed && (!f.exited || len(f.lines) > 0)
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.Closes++
	}
	f.closed = true
	return nil
}
