// Package scanner discovers advertising peripherals through the helper's
// scan mode and keeps one ScanEntry per address.
package scanner

import (
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/mux"
	"github.com/srg/blip/internal/transport"
	"github.com/srg/blip/internal/wire"
)

// DiscoveryObserver is told about every scan record as it is processed
type DiscoveryObserver interface {
	OnDiscovery(entry *ScanEntry, isNewDevice, isNewData bool)
}

// DiscoveryFunc adapts a function to DiscoveryObserver
type DiscoveryFunc func(entry *ScanEntry, isNewDevice, isNewData bool)

func (f DiscoveryFunc) OnDiscovery(entry *ScanEntry, isNewDevice, isNewData bool) {
	f(entry, isNewDevice, isNewData)
}

// State is the scanner lifecycle state
type State int

const (
	Idle State = iota
	Scanning
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures a Scanner
type Options struct {
	Iface     int               `default:"0"`
	Transport transport.Factory `json:"-" yaml:"-"`
}

// DefaultOptions returns options with every default applied
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Scanner runs one scan session at a time; it is not safe for concurrent use
type Scanner struct {
	opts     Options
	logger   *logrus.Logger
	mux      *mux.Mux
	observer DiscoveryObserver
	state    State
	passive  bool

	devices *hashmap.Map[string, *ScanEntry]
}

// NewScanner creates an idle scanner
func NewScanner(opts *Options, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Transport == nil {
		o.Transport = transport.NewFactory(transport.DefaultOptions(), logger)
	}
	return &Scanner{
		opts:    o,
		logger:  logger,
		devices: hashmap.New[string, *ScanEntry](),
	}
}

// SetObserver attaches the discovery observer; nil detaches it
func (s *Scanner) SetObserver(o DiscoveryObserver) {
	s.observer = o
}

func (s *Scanner) State() State {
	return s.state
}

// teardown releases the helper after a failure
func (s *Scanner) teardown() {
	_ = s.mux.Close()
	s.mux = nil
	s.state = Stopped
}

// Start powers the controller up and enters scan mode. A controller still
// busy with an earlier scan is stopped and the scan retried once.
func (s *Scanner) Start(passive bool) error {
	if !s.mux.Active() {
		t, err := s.opts.Transport(s.opts.Iface)
		if err != nil {
			return &btle.Error{Kind: btle.KindInternal, Msg: "failed to create helper transport", Err: err}
		}
		if err := t.Start(); err != nil {
			return &btle.Error{Kind: btle.KindInternal, Msg: "failed to start helper", Err: err}
		}
		s.mux = mux.New(t, s.logger)
	}
	s.passive = passive

	if err := s.mux.Management(wire.LEOn()); err != nil {
		s.teardown()
		return err
	}

	code, err := s.scanCommand()
	if err != nil {
		return err
	}
	switch code {
	case "success":
		s.started()
		return nil
	case "busy":
	default:
		s.teardown()
		return btle.NewError(btle.KindManagement, "failed to execute management command '%s'", wire.ScanCmd(passive))
	}

	s.logger.Warn("Controller busy with a previous scan, restarting it")
	if err := s.mux.Management(wire.ScanEnd(passive)); err != nil {
		s.teardown()
		return err
	}
	rec, err := s.mux.AwaitResponse([]string{wire.KindStatus}, 0)
	if err != nil || rec == nil || rec.State() != "disc" {
		s.teardown()
		if err != nil && btle.IsKind(err, btle.KindProtocol) {
			return err
		}
		return &btle.Error{Kind: btle.KindProtocol, Msg: "scan did not stop after busy reply", Err: err}
	}

	code, err = s.scanCommand()
	if err != nil {
		return err
	}
	switch code {
	case "success":
		s.started()
		return nil
	case "busy":
		s.teardown()
		return btle.NewError(btle.KindProtocol, "controller still busy after restarting scan")
	default:
		s.teardown()
		return btle.NewError(btle.KindManagement, "failed to execute management command '%s'", wire.ScanCmd(passive))
	}
}

func (s *Scanner) scanCommand() (string, error) {
	rec, err := s.mux.Exchange(wire.Scan(s.passive), []string{wire.KindManagement}, 0)
	if err != nil {
		s.teardown()
		return "", err
	}
	if rec == nil {
		s.teardown()
		return "", btle.NewError(btle.KindProtocol, "no reply to %s", wire.ScanCmd(s.passive))
	}
	return rec.Code(), nil
}

func (s *Scanner) started() {
	s.state = Scanning
	s.logger.WithFields(logrus.Fields{"iface": s.opts.Iface, "passive": s.passive}).Info("Scan started")
}

// Process consumes scan records for up to timeout (zero runs until an error).
// The helper ending the scan on its own restarts it.
func (s *Scanner) Process(timeout time.Duration) error {
	if s.state != Scanning || !s.mux.Active() {
		return btle.NewError(btle.KindInternal, "scanner not started")
	}

	start := time.Now()
	for {
		var remain time.Duration
		if timeout > 0 {
			remain = timeout - time.Since(start)
			if remain <= 0 {
				return nil
			}
		}

		rec, err := s.mux.AwaitResponse([]string{wire.KindScan, wire.KindStatus}, remain)
		if err != nil {
			if !s.mux.Active() {
				s.state = Stopped
			}
			return err
		}
		if rec == nil {
			return nil
		}

		switch rec.Kind() {
		case wire.KindStatus:
			if rec.State() == "disc" {
				s.logger.Debug("Scan ended by controller, restarting")
				if err := s.mux.Management(wire.Scan(s.passive)); err != nil {
					s.state = Stopped
					return err
				}
			}
		case wire.KindScan:
			if err := s.handleScan(rec); err != nil {
				return err
			}
		}
	}
}

func (s *Scanner) handleScan(rec wire.Record) error {
	addr, err := btle.FormatAddress(rec.Bytes("addr"))
	if err != nil {
		s.teardown()
		return err
	}

	entry, existing := s.devices.Get(addr)
	if !existing {
		entry, _ = s.devices.GetOrInsert(addr, NewScanEntry(addr, s.opts.Iface))
	}
	isNewData, err := entry.Update(rec)
	if err != nil {
		return err
	}

	isNewDevice := entry.UpdateCount <= 1
	if isNewDevice {
		s.logger.WithFields(logrus.Fields{
			"address": addr,
			"name":    entry.Name(),
			"rssi":    entry.RSSI,
		}).Info("Discovered new device")
	}
	if s.observer != nil {
		s.observer.OnDiscovery(entry, isNewDevice, isNewData)
	}
	return nil
}

// Stop leaves scan mode and releases the helper; safe to call more than once
func (s *Scanner) Stop() error {
	if !s.mux.Active() {
		s.mux = nil
		if s.state != Idle {
			s.state = Stopped
		}
		return nil
	}

	err := s.mux.Management(wire.ScanEnd(s.passive))
	if cerr := s.mux.Close(); err == nil {
		err = cerr
	}
	s.mux = nil
	s.state = Stopped
	s.logger.WithField("device_count", s.devices.Len()).Info("Scan stopped")
	return err
}

// Clear forgets every discovered device
func (s *Scanner) Clear() {
	s.devices = hashmap.New[string, *ScanEntry]()
}

// Devices returns the discovered entries ordered by address
func (s *Scanner) Devices() []*ScanEntry {
	out := make([]*ScanEntry, 0, s.devices.Len())
	s.devices.Range(func(_ string, e *ScanEntry) bool {
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Device looks an entry up by address in any letter case
func (s *Scanner) Device(addr string) (*ScanEntry, bool) {
	return s.devices.Get(blelib.NewAddr(addr).String())
}

// Scan clears the table, scans for timeout and returns what was found
func (s *Scanner) Scan(timeout time.Duration, passive bool) (devices []*ScanEntry, err error) {
	s.Clear()
	if err := s.Start(passive); err != nil {
		return nil, err
	}
	defer func() {
		if serr := s.Stop(); err == nil && serr != nil {
			err = serr
		}
	}()

	if err := s.Process(timeout); err != nil {
		return nil, err
	}
	return s.Devices(), nil
}
