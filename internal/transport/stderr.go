package transport

import (
	"bytes"
	"sync"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// stderrTail keeps the most recent helper stderr lines, overwriting the oldest.
// It is the io.Writer handed to exec.Cmd.Stderr.
type stderrTail struct {
	mu      sync.Mutex
	partial []byte
	lines   mpmc.RichOverlappedRingBuffer[string]
}

func newStderrTail(size uint32) *stderrTail {
	return &stderrTail{lines: mpmc.NewOverlappedRingBuffer[string](size)}
}

func (s *stderrTail) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partial = append(s.partial, p...)
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(s.partial[:i], "\r"))
		s.partial = s.partial[i+1:]
		if line == "" {
			continue
		}
		if _, err := s.lines.EnqueueM(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Drain returns and clears the buffered lines, oldest first
func (s *stderrTail) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for !s.lines.IsEmpty() {
		line, err := s.lines.Dequeue()
		if err != nil {
			break
		}
		out = append(out, line)
	}
	if len(s.partial) > 0 {
		out = append(out, string(s.partial))
		s.partial = nil
	}
	return out
}
