// Package inspector runs work against a freshly connected peripheral and
// always releases the link afterwards.
package inspector

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blip/gatt"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// InspectCallback processes a connected peripheral and produces output of type R
type InspectCallback[R any] func(*gatt.Connection) (R, error)

// InspectDevice connects, discovers the services, hands the connection to the
// callback and disconnects whatever the outcome.
func InspectDevice[R any](opts *gatt.ConnectOptions, logger *logrus.Logger, progress ProgressCallback, callback InspectCallback[R]) (R, error) {
	var zero R
	if logger == nil {
		logger = logrus.New()
	}
	if progress == nil {
		progress = func(string) {}
	}

	progress("Connecting")
	conn, err := gatt.Dial(opts, logger)
	if err != nil {
		progress("Failed")
		return zero, err
	}
	progress("Connected")

	defer func() {
		if err := conn.Disconnect(); err != nil {
			logger.WithError(err).Error("failed to disconnect device")
		}
	}()

	progress("Discovering services")
	if _, err := conn.DiscoverServices(); err != nil {
		progress("Failed")
		return zero, err
	}

	progress("Processing results")
	return callback(conn)
}
