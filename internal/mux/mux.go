// Package mux turns the helper's single response stream into request/response
// exchanges, delivering asynchronous notifications along the way.
package mux

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/transport"
	"github.com/srg/blip/internal/wire"
)

// NotificationObserver receives notifications and indications as they are read
type NotificationObserver interface {
	OnNotification(handle uint16, data []byte)
}

// NotificationFunc adapts a function to NotificationObserver
type NotificationFunc func(handle uint16, data []byte)

func (f NotificationFunc) OnNotification(handle uint16, data []byte) { f(handle, data) }

// ErrRequestPending is returned when AwaitResponse is re-entered, e.g. from an observer
var ErrRequestPending = btle.NewError(btle.KindInternal, "another request is already pending")

// Mux owns one helper transport; it is not safe for concurrent use.
type Mux struct {
	t        transport.Transport
	logger   *logrus.Logger
	observer NotificationObserver
	pending  bool
	closed   bool
}

// New wraps a started transport
func New(t transport.Transport, logger *logrus.Logger) *Mux {
	if logger == nil {
		logger = logrus.New()
	}
	return &Mux{t: t, logger: logger}
}

// SetObserver attaches the notification observer; nil detaches it
func (m *Mux) SetObserver(o NotificationObserver) {
	m.observer = o
}

// Observer returns the attached notification observer
func (m *Mux) Observer() NotificationObserver {
	return m.observer
}

// Active reports whether the multiplexer still owns a transport
func (m *Mux) Active() bool {
	return m != nil && m.t != nil && !m.closed
}

func notStarted() error {
	return btle.NewError(btle.KindInternal, "helper not started (did you connect?)")
}

// Send writes one encoded command line
func (m *Mux) Send(cmd string) error {
	if !m.Active() {
		return notStarted()
	}
	m.logger.WithField("cmd", strings.TrimRight(cmd, "\n")).Debug("Sent")
	if err := m.t.WriteLine(cmd); err != nil {
		return &btle.Error{Kind: btle.KindInternal, Msg: "failed to send command", Err: err}
	}
	return nil
}

// Exchange sends cmd and waits for one of kinds
func (m *Mux) Exchange(cmd string, kinds []string, timeout time.Duration) (wire.Record, error) {
	if err := m.Send(cmd); err != nil {
		return nil, err
	}
	return m.AwaitResponse(kinds, timeout)
}

// AwaitResponse reads records until one of kinds arrives.
//
// Notifications and indications always go to the observer and end the wait
// only when requested. Unsolicited scan records are dropped. A link loss, a
// helper error record or a helper exit ends the wait with an error.
// A timeout is reported as (nil, nil). The timeout bounds the whole wait;
// a timeout <= 0 blocks.
func (m *Mux) AwaitResponse(kinds []string, timeout time.Duration) (wire.Record, error) {
	if !m.Active() {
		return nil, notStarted()
	}
	if m.pending {
		return nil, ErrRequestPending
	}
	m.pending = true
	defer func() { m.pending = false }()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if !m.t.Alive() {
			return nil, btle.NewError(btle.KindInternal, "helper exited")
		}

		var wait time.Duration
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return nil, nil
			}
		}

		line, err := m.t.ReadLine(wait)
		switch {
		case errors.Is(err, transport.ErrTimeout):
			return nil, nil
		case errors.Is(err, transport.ErrExited):
			return nil, &btle.Error{Kind: btle.KindInternal, Msg: "helper exited", Err: err}
		case err != nil:
			return nil, &btle.Error{Kind: btle.KindInternal, Msg: "failed to read from helper", Err: err}
		}

		if wire.IsIgnorable(line) {
			continue
		}
		m.logger.WithField("line", strings.TrimRight(line, "\r\n")).Debug("Got")

		rec, err := wire.Decode(line)
		if err != nil {
			_ = m.Close()
			return nil, err
		}

		kind := rec.Kind()
		if kind == wire.KindNotification || kind == wire.KindIndication {
			m.deliver(rec)
		}
		if slices.Contains(kinds, kind) {
			return rec, nil
		}

		switch kind {
		case wire.KindNotification, wire.KindIndication:
		case wire.KindStatus:
			if rec.State() == "disc" {
				_ = m.Close()
				return nil, recordError(btle.KindDisconnected, "device disconnected", rec)
			}
		case wire.KindError:
			return nil, m.helperError(rec)
		case wire.KindScan:
			// scan results nobody asked for
		default:
			return nil, recordError(btle.KindProtocol, "unexpected response ("+kind+")", rec)
		}
	}
}

func (m *Mux) deliver(rec wire.Record) {
	hnd, _ := rec.Int("hnd")
	data := rec.Bytes("d")
	if m.observer == nil {
		m.logger.WithField("handle", hnd).Debug("Notification dropped, no observer")
		return
	}
	m.observer.OnNotification(uint16(hnd), data)
}

func (m *Mux) helperError(rec wire.Record) error {
	switch code := rec.Code(); code {
	case "nomgmt":
		_ = m.Close()
		return recordError(btle.KindManagement, "management not available (permissions problem?)", rec)
	case "atterr":
		return recordError(btle.KindGatt, "bluetooth command failed", rec)
	default:
		return recordError(btle.KindProtocol, "error from helper ("+code+")", rec)
	}
}

func recordError(kind btle.Kind, msg string, rec wire.Record) *btle.Error {
	status, detail := rec.ErrorStatus()
	return (&btle.Error{Kind: kind, Msg: msg}).WithStatus(status, detail)
}

// Management runs a management command and requires a success code.
// Any other code tears the helper down.
func (m *Mux) Management(cmd string) error {
	rec, err := m.Exchange(cmd, []string{wire.KindManagement}, 0)
	if err != nil {
		return err
	}
	if rec == nil {
		return btle.NewError(btle.KindProtocol, "no reply to management command %q", strings.TrimSpace(cmd))
	}
	if code := rec.Code(); code != "success" {
		_ = m.Close()
		return recordError(btle.KindManagement,
			"failed to execute management command '"+strings.TrimSpace(cmd)+"'", rec)
	}
	return nil
}

// Status asks the helper for a status record
func (m *Mux) Status() (wire.Record, error) {
	return m.Exchange(wire.Stat(), []string{wire.KindStatus}, 0)
}

// Close asks the helper to quit and releases the transport; safe to call more than once
func (m *Mux) Close() error {
	if m == nil || m.t == nil || m.closed {
		return nil
	}
	m.closed = true
	m.observer = nil

	if err := m.t.WriteLine(wire.Quit()); err != nil {
		m.logger.WithError(err).Debug("Helper did not take quit")
	}
	if err := m.t.Close(); err != nil {
		return &btle.Error{Kind: btle.KindInternal, Msg: "failed to stop helper", Err: err}
	}
	m.logger.Debug("Helper stopped")
	return nil
}
