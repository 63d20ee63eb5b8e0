package transport

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellOptions(t *testing.T, kind Kind, script string) Options {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	opts := DefaultOptions()
	opts.HelperPath = sh
	opts.HelperArgs = []string{"-c", script}
	opts.Kind = kind
	opts.StopTimeout = time.Second
	return opts
}

func newTransport(t *testing.T, opts Options) Transport {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	tr, err := NewFactory(opts, logger)(-1)
	require.NoError(t, err)
	require.NoError(t, tr.Start())
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTransport_EchoRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindPipe, KindPTY} {
		t.Run(string(kind), func(t *testing.T) {
			tr := newTransport(t, shellOptions(t, kind, "cat"))

			require.NoError(t, tr.WriteLine("stat\n"))
			line, err := tr.ReadLine(2 * time.Second)
			require.NoError(t, err)
			assert.Equal(t, "stat\n", line)
			assert.True(t, tr.Alive())
		})
	}
}

func TestTransport_ReadTimeout(t *testing.T) {
	for _, kind := range []Kind{KindPipe, KindPTY} {
		t.Run(string(kind), func(t *testing.T) {
			tr := newTransport(t, shellOptions(t, kind, "cat"))

			start := time.Now()
			_, err := tr.ReadLine(100 * time.Millisecond)
			assert.ErrorIs(t, err, ErrTimeout)
			assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
		})
	}
}

func TestTransport_HelperExitCarriesStderr(t *testing.T) {
	for _, kind := range []Kind{KindPipe, KindPTY} {
		t.Run(string(kind), func(t *testing.T) {
			tr := newTransport(t, shellOptions(t, kind, "echo 'rsp=$stat'; echo 'no adapter' >&2; exit 3"))

			line, err := tr.ReadLine(2 * time.Second)
			require.NoError(t, err)
			assert.Contains(t, line, "rsp=$stat")

			_, err = tr.ReadLine(2 * time.Second)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExited)

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Contains(t, exitErr.Stderr, "no adapter")
			assert.False(t, tr.Alive())
		})
	}
}

// waitExited blocks until the helper process has been reaped
func waitExited(t *testing.T, tr Transport) {
	t.Helper()
	var exited chan struct{}
	switch v := tr.(type) {
	case *Process:
		exited = v.exited
	case *PTY:
		exited = v.exited
	default:
		t.Fatalf("unexpected transport %T", tr)
	}
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("helper did not exit")
	}
}

func TestTransport_LastLineSurvivesHelperExit(t *testing.T) {
	for _, kind := range []Kind{KindPipe, KindPTY} {
		t.Run(string(kind), func(t *testing.T) {
			tr := newTransport(t, shellOptions(t, kind, `printf 'rsp=$stat\036state=$disc\n'`))
			waitExited(t, tr)

			assert.True(t, tr.Alive(), "unread output keeps the transport alive")
			line, err := tr.ReadLine(2 * time.Second)
			require.NoError(t, err)
			assert.Equal(t, "rsp=$stat\x1estate=$disc\n", line)

			_, err = tr.ReadLine(2 * time.Second)
			assert.ErrorIs(t, err, ErrExited)
			assert.False(t, tr.Alive())
		})
	}
}

func TestTransport_CloseIsIdempotent(t *testing.T) {
	tr := newTransport(t, shellOptions(t, KindPipe, "cat"))

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.False(t, tr.Alive())
	assert.ErrorIs(t, tr.WriteLine("stat\n"), ErrClosed)
}

func TestTransport_NotStarted(t *testing.T) {
	tr := NewProcess(DefaultOptions(), -1, nil)
	assert.ErrorIs(t, tr.WriteLine("stat\n"), ErrNotStarted)
	_, err := tr.ReadLine(time.Millisecond)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, tr.Close())
}

func TestNewFactory_UnknownKind(t *testing.T) {
	_, err := NewFactory(Options{Kind: "serial"}, nil)(0)
	assert.ErrorContains(t, err, "unknown transport kind")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		path    string
		args    []string
		wantErr bool
	}{
		{name: "plain", in: "bluepy-helper", path: "bluepy-helper", args: []string{}},
		{name: "sudo wrapper", in: "sudo -n /usr/lib/bluepy-helper", path: "sudo", args: []string{"-n", "/usr/lib/bluepy-helper"}},
		{name: "quoted path", in: `"/opt/ble tools/helper" -v`, path: "/opt/ble tools/helper", args: []string{"-v"}},
		{name: "empty", in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, args, err := ParseCommand(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestStderrTail_KeepsMostRecent(t *testing.T) {
	tail := newStderrTail(4)
	_, err := tail.Write([]byte("first\n"))
	require.NoError(t, err)
	for i := 0; i < 32; i++ {
		_, err := tail.Write([]byte("noise\n"))
		require.NoError(t, err)
	}
	_, err = tail.Write([]byte("f\npart"))
	require.NoError(t, err)

	got := tail.Drain()
	require.NotEmpty(t, got)
	assert.Equal(t, "part", got[len(got)-1])
	assert.Contains(t, got, "f")
	assert.NotContains(t, got, "first")
	assert.Empty(t, tail.Drain())
}
