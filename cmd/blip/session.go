package main

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/srg/blip/gatt"
	"github.com/srg/blip/internal/transport"
	"github.com/srg/blip/pkg/config"
	"github.com/srg/blip/scanner"
)

// transportFactory builds the helper transport for a command; tests replace it
var transportFactory = func(cfg *config.Config, logger *logrus.Logger) (transport.Factory, error) {
	return cfg.TransportFactory(logger)
}

func connectOptions(cfg *config.Config, address, addrType string, logger *logrus.Logger) (*gatt.ConnectOptions, error) {
	opts, err := cfg.ConnectOptions(address, addrType, logger)
	if err != nil {
		return nil, err
	}
	if opts.Transport, err = transportFactory(cfg, logger); err != nil {
		return nil, err
	}
	return opts, nil
}

func scannerOptions(cfg *config.Config, logger *logrus.Logger) (*scanner.Options, error) {
	opts, err := cfg.ScannerOptions(logger)
	if err != nil {
		return nil, err
	}
	if opts.Transport, err = transportFactory(cfg, logger); err != nil {
		return nil, err
	}
	return opts, nil
}

// interruptWatch turns Ctrl+C into a flag the blocking loops poll between
// helper calls, so the session can still be torn down cleanly.
type interruptWatch struct {
	ch  chan os.Signal
	hit atomic.Bool
}

func watchInterrupt() *interruptWatch {
	w := &interruptWatch{ch: make(chan os.Signal, 1)}
	signal.Notify(w.ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-w.ch; ok {
			w.hit.Store(true)
		}
	}()
	return w
}

func (w *interruptWatch) Interrupted() bool {
	return w.hit.Load()
}

func (w *interruptWatch) Stop() {
	signal.Stop(w.ch)
	close(w.ch)
}
