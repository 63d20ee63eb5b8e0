// Package gatt drives one peripheral connection through the helper: the
// connect/disconnect lifecycle, service discovery and attribute access.
package gatt

import (
	"runtime"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/bledb"
	"github.com/srg/blip/internal/mux"
	"github.com/srg/blip/internal/transport"
	"github.com/srg/blip/internal/wire"
	"github.com/srg/blip/scanner"
)

// NotificationObserver receives notifications and indications for a connection
type NotificationObserver = mux.NotificationObserver

// NotificationFunc adapts a function to NotificationObserver
type NotificationFunc = mux.NotificationFunc

// State is the lifecycle state of a Connection
type State int

const (
	Unattached State = iota
	Connecting
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectOptions configures a Connection
type ConnectOptions struct {
	Address  string
	AddrType string `default:"public"`
	// Iface is the hciN controller index; negative lets the helper choose.
	Iface int `default:"-1"`

	// ConnectTimeout bounds the whole connect exchange; zero waits indefinitely.
	ConnectTimeout    time.Duration `default:"0s"`
	DisconnectTimeout time.Duration `default:"10s"`
	MTU               int           `default:"23"`

	Transport transport.Factory `json:"-" yaml:"-"`
	Names     *btle.NameTable   `json:"-" yaml:"-"`
}

// DefaultConnectOptions returns options with every default applied
func DefaultConnectOptions() *ConnectOptions {
	opts := &ConnectOptions{}
	defaults.SetDefaults(opts)
	return opts
}

// Connection is a single peripheral link. It is not safe for concurrent use;
// notifications are delivered synchronously on the calling goroutine.
type Connection struct {
	opts     ConnectOptions
	logger   *logrus.Logger
	mux      *mux.Mux
	observer NotificationObserver

	state    State
	addr     string
	addrType string
	iface    int

	services map[btle.UUID]*Service
}

// NewConnection creates an unattached connection
func NewConnection(opts *ConnectOptions, logger *logrus.Logger) *Connection {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultConnectOptions()
	}
	o := *opts
	if o.MTU < ble.DefaultMTU {
		o.MTU = ble.DefaultMTU
	}
	if o.Transport == nil {
		o.Transport = transport.NewFactory(transport.DefaultOptions(), logger)
	}
	if o.Names == nil {
		o.Names = bledb.Builtin().Table()
	}

	c := &Connection{opts: o, logger: logger, iface: o.Iface}
	runtime.SetFinalizer(c, func(c *Connection) {
		if c.mux.Active() {
			c.logger.WithField("address", c.addr).Warn("Connection garbage collected while connected")
			_ = c.Disconnect()
		}
	})
	return c
}

// Dial creates a connection and connects it to opts.Address
func Dial(opts *ConnectOptions, logger *logrus.Logger) (*Connection, error) {
	c := NewConnection(opts, logger)
	if err := c.Connect(c.opts.Address, c.opts.AddrType, c.opts.Iface); err != nil {
		return nil, err
	}
	return c, nil
}

// ConnectToEntry connects to a device found by a scan, using its address type
// and controller
func (c *Connection) ConnectToEntry(entry *scanner.ScanEntry) error {
	addrType := entry.AddrType
	if addrType == "" {
		addrType = btle.AddrTypePublic
	}
	return c.Connect(entry.Addr, addrType, entry.Iface)
}

// Connect opens the link. The address and type are validated before any I/O.
// A Connection connects once; after a disconnect a new one is needed.
func (c *Connection) Connect(addr, addrType string, iface int) error {
	switch c.state {
	case Connecting, Connected:
		return btle.NewError(btle.KindValidation, "already connected to %s", c.addr)
	case Disconnected:
		return btle.NewError(btle.KindValidation, "connection to %s is closed, create a new connection to reconnect", c.addr)
	}
	if err := btle.ValidateAddress(addr, addrType); err != nil {
		return err
	}

	if err := c.startHelper(iface); err != nil {
		return err
	}

	c.addr, c.addrType, c.iface = addr, addrType, iface
	c.state = Connecting
	log := c.logger.WithFields(logrus.Fields{"address": addr, "type": addrType})
	log.Info("Connecting")

	var deadline time.Time
	if c.opts.ConnectTimeout > 0 {
		deadline = time.Now().Add(c.opts.ConnectTimeout)
	}
	remaining := func() time.Duration {
		if deadline.IsZero() {
			return 0
		}
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return time.Nanosecond
	}

	rec, err := c.mux.Exchange(wire.Conn(addr, addrType, iface), []string{wire.KindStatus}, remaining())
	for err == nil && rec != nil && rec.State() == "tryconn" {
		rec, err = c.mux.AwaitResponse([]string{wire.KindStatus}, remaining())
	}

	switch {
	case err != nil:
		c.teardown()
		return err
	case rec == nil:
		c.teardown()
		return btle.NewError(btle.KindDisconnected,
			"timed out while trying to connect to peripheral %s, addr type: %s", addr, addrType)
	case rec.State() != "conn":
		c.teardown()
		return btle.NewError(btle.KindDisconnected,
			"failed to connect to peripheral %s, addr type: %s", addr, addrType)
	}

	c.state = Connected
	if mtu, ok := rec.Int("mtu"); ok && int(mtu) > c.opts.MTU {
		c.opts.MTU = int(mtu)
	}
	log.Info("Connected")
	return nil
}

func (c *Connection) startHelper(iface int) error {
	if c.mux.Active() {
		return nil
	}
	t, err := c.opts.Transport(iface)
	if err != nil {
		return &btle.Error{Kind: btle.KindInternal, Msg: "failed to create helper transport", Err: err}
	}
	if err := t.Start(); err != nil {
		return &btle.Error{Kind: btle.KindInternal, Msg: "failed to start helper", Err: err}
	}
	c.mux = mux.New(t, c.logger)
	c.mux.SetObserver(c.observer)
	return nil
}

// SetRemoteOOB gives the helper the peer's out-of-band pairing data ahead of
// Connect and Pair. The helper does not acknowledge it.
func (c *Connection) SetRemoteOOB(addr, addrType string, oob wire.OOBData, iface int) error {
	if c.state != Unattached {
		return btle.NewError(btle.KindValidation, "out-of-band data must be set before connecting")
	}
	if err := btle.ValidateAddress(addr, addrType); err != nil {
		return err
	}
	if err := c.startHelper(iface); err != nil {
		return err
	}
	c.addr, c.addrType, c.iface = addr, addrType, iface
	return c.mux.Send(wire.RemoteOOB(addr, addrType, oob, iface))
}

// GetLocalOOB reads the controller's own out-of-band pairing data
func (c *Connection) GetLocalOOB(iface int) (*wire.LocalOOBData, error) {
	if c.state == Disconnected {
		return nil, btle.NewError(btle.KindValidation, "connection to %s is closed", c.addr)
	}
	if err := c.startHelper(iface); err != nil {
		return nil, err
	}
	c.iface = iface
	rec, err := c.exchange(wire.LocalOOB(iface), wire.KindOOB, 0)
	if err != nil {
		return nil, err
	}
	oob, err := wire.ParseLocalOOB(rec)
	if err != nil {
		c.teardown()
		return nil, err
	}
	return oob, nil
}

// teardown releases the helper without the disconnect exchange
func (c *Connection) teardown() {
	if err := c.mux.Close(); err != nil {
		c.logger.WithError(err).Debug("Helper teardown failed")
	}
	c.mux = nil
	c.state = Disconnected
}

// Disconnect ends the link and stops the helper; a no-op without a helper
func (c *Connection) Disconnect() error {
	if !c.mux.Active() {
		c.mux = nil
		if c.state != Unattached {
			c.state = Disconnected
		}
		return nil
	}

	c.mux.SetObserver(nil)
	_, err := c.mux.Exchange(wire.Disc(), []string{wire.KindStatus}, c.opts.DisconnectTimeout)
	c.teardown()
	c.logger.WithField("address", c.addr).Info("Disconnected")
	if err != nil && !btle.IsKind(err, btle.KindDisconnected) {
		return err
	}
	return nil
}

// Close disconnects; it satisfies io.Closer
func (c *Connection) Close() error {
	return c.Disconnect()
}

// State returns the local lifecycle state
func (c *Connection) State() State {
	if c.state == Connected && !c.mux.Active() {
		c.state = Disconnected
	}
	return c.state
}

func (c *Connection) Address() string     { return c.addr }
func (c *Connection) AddressType() string { return c.addrType }
func (c *Connection) Interface() int      { return c.iface }
func (c *Connection) MTU() int            { return c.opts.MTU }

// Names returns the table used to label identifiers
func (c *Connection) Names() *btle.NameTable { return c.opts.Names }

// SetObserver attaches the notification observer; nil detaches it
func (c *Connection) SetObserver(o NotificationObserver) {
	c.observer = o
	if c.mux.Active() {
		c.mux.SetObserver(o)
	}
}

func (c *Connection) exchange(cmd string, kind string, timeout time.Duration) (wire.Record, error) {
	if !c.mux.Active() {
		return nil, btle.NewError(btle.KindInternal, "helper not started (did you connect?)")
	}
	rec, err := c.mux.Exchange(cmd, []string{kind}, timeout)
	if err != nil {
		if !c.mux.Active() {
			c.state = Disconnected
		}
		return nil, err
	}
	if rec == nil {
		return nil, btle.NewError(btle.KindProtocol, "no %s reply to %q", kind, strings.TrimSpace(cmd))
	}
	return rec, nil
}

// GetState asks the helper for the remote link state
func (c *Connection) GetState() (string, error) {
	rec, err := c.exchange(wire.Stat(), wire.KindStatus, 0)
	if err != nil {
		return "", err
	}
	return rec.State(), nil
}

// SetSecurityLevel changes the link security to low, medium or high
func (c *Connection) SetSecurityLevel(level string) error {
	if err := btle.ValidateSecurityLevel(level); err != nil {
		return err
	}
	_, err := c.exchange(wire.Secu(level), wire.KindStatus, 0)
	return err
}

// SetMTU requests an ATT MTU between the protocol minimum and maximum
func (c *Connection) SetMTU(mtu int) error {
	if mtu < ble.DefaultMTU || mtu > ble.MaxMTU {
		return btle.NewError(btle.KindValidation, "MTU must be between %d and %d, got %d", ble.DefaultMTU, ble.MaxMTU, mtu)
	}
	if _, err := c.exchange(wire.MTU(mtu), wire.KindStatus, 0); err != nil {
		return err
	}
	c.opts.MTU = mtu
	return nil
}

// Pair bonds with the peripheral
func (c *Connection) Pair() error {
	if !c.mux.Active() {
		return btle.NewError(btle.KindInternal, "helper not started (did you connect?)")
	}
	return c.mux.Management(wire.Pair())
}

// Unpair removes the bond
func (c *Connection) Unpair() error {
	if !c.mux.Active() {
		return btle.NewError(btle.KindInternal, "helper not started (did you connect?)")
	}
	return c.mux.Management(wire.Unpair())
}

// WaitForNotifications blocks until a notification or indication is delivered
// to the observer, reporting false when the timeout passes first.
func (c *Connection) WaitForNotifications(timeout time.Duration) (bool, error) {
	if !c.mux.Active() {
		return false, btle.NewError(btle.KindInternal, "helper not started (did you connect?)")
	}
	rec, err := c.mux.AwaitResponse([]string{wire.KindNotification, wire.KindIndication}, timeout)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}
