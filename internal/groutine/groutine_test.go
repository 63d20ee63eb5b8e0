package groutine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_LabelsAndWait(t *testing.T) {
	g := NewGroup("helper-7", nil)

	names := make(chan [2]string, 2)
	for _, n := range []string{"stdout", "wait"} {
		g.Go(n, func(ctx context.Context) {
			names <- [2]string{Owner(ctx), Name(ctx)}
		})
	}
	g.Wait()
	close(names)

	var got [][2]string
	for n := range names {
		got = append(got, n)
	}
	assert.ElementsMatch(t, [][2]string{{"helper-7", "stdout"}, {"helper-7", "wait"}}, got)
}

func TestGroup_PanicIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	g := NewGroup("pty", logger)
	g.Go("reader", func(context.Context) { panic("boom") })
	require.True(t, g.WaitTimeout(time.Second))

	assert.Contains(t, buf.String(), "Goroutine panicked")
	assert.Contains(t, buf.String(), "goroutine=reader")
	assert.Contains(t, buf.String(), "panic=boom")
}

func TestGroup_WaitTimeout(t *testing.T) {
	g := NewGroup("slow", nil)
	release := make(chan struct{})
	g.Go("blocked", func(context.Context) { <-release })

	assert.False(t, g.WaitTimeout(10*time.Millisecond))
	close(release)
	assert.True(t, g.WaitTimeout(time.Second))
}

func TestNameWithoutLabels(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Owner(context.Background()))
}
