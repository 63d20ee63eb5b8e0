// Package groutine runs the helper I/O goroutines under pprof labels so they
// can be told apart in profiles and stack dumps.
package groutine

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	ownerLabel = "owner"
	nameLabel  = "goroutine"
)

// Group tracks the named goroutines belonging to one owner, such as a
// transport and the helper process it supervises.
type Group struct {
	owner  string
	logger *logrus.Logger
	wg     sync.WaitGroup
}

// NewGroup creates an empty group; owner becomes the pprof "owner" label
func NewGroup(owner string, logger *logrus.Logger) *Group {
	if logger == nil {
		logger = logrus.New()
	}
	return &Group{owner: owner, logger: logger}
}

// Go starts fn labelled with the group owner and name.
// A panic in fn is logged with its stack and does not take the process down.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	labels := pprof.Labels(ownerLabel, g.owner, nameLabel, name)
	go pprof.Do(context.Background(), labels, func(ctx context.Context) {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.WithFields(logrus.Fields{
					"owner":     g.owner,
					"goroutine": name,
					"panic":     fmt.Sprint(r),
				}).Errorf("Goroutine panicked\n%s", debug.Stack())
			}
		}()
		fn(ctx)
	})
}

// Wait blocks until every goroutine started by the group has returned
func (g *Group) Wait() {
	g.wg.Wait()
}

// WaitTimeout is Wait bounded by d; it reports whether all goroutines finished
func (g *Group) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Name returns the goroutine name of a context created by Group.Go
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := pprof.Label(ctx, nameLabel)
	return v
}

// Owner returns the owner label of a context created by Group.Go
func Owner(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := pprof.Label(ctx, ownerLabel)
	return v
}
