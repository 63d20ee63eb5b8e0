package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blip/btle"
	"github.com/srg/blip/gatt"
	"github.com/srg/blip/inspector"
	"github.com/srg/blip/internal/lua"
)

type subscribeFlags struct {
	addrType string
	indicate bool
	hex      bool
	duration time.Duration
	count    int
	script   string
}

func newSubscribeCmd() *cobra.Command {
	f := &subscribeFlags{}
	cmd := &cobra.Command{
		Use:   "subscribe <device-address> <characteristic>...",
		Short: "Subscribe to characteristic notifications",
		Long: fmt.Sprintf(`Enables notifications (or indications) on one or more characteristics and
prints every value received until Ctrl+C, --duration or --count ends it.
SensorTile payloads are decoded. With --script, each notification is also
passed to on_notification(handle, hex) in the Lua script.

Examples:
  blip subscribe %s 2a19
  blip subscribe %s 00e00000-0001-11e1-ac36-0002a5d5c51b --duration 30s
  blip subscribe %s 0x0025 --script decode.lua`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, args[0], args[1:], f)
		},
	}
	cmd.Flags().StringVarP(&f.addrType, "addr-type", "t", "public", "Address type (public, random)")
	cmd.Flags().BoolVar(&f.indicate, "indicate", false, "Enable indications instead of notifications")
	cmd.Flags().BoolVar(&f.hex, "hex", false, "Print raw values as hex only")
	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	cmd.Flags().IntVar(&f.count, "count", 0, "Stop after this many notifications (0 for unlimited)")
	cmd.Flags().StringVar(&f.script, "script", "", "Lua script defining on_notification(handle, hex)")
	return cmd
}

// notificationPrinter prints notifications for the subscribed handles and
// forwards them to the optional script
type notificationPrinter struct {
	out      io.Writer
	chars    map[uint16]*gatt.Characteristic
	hex      bool
	engine   *lua.Engine
	received int
	logger   *logrus.Logger
}

func (p *notificationPrinter) OnNotification(handle uint16, data []byte) {
	p.received++
	ch, ok := p.chars[handle]
	switch {
	case p.hex:
		fmt.Fprintf(p.out, "0x%04x %s\n", handle, hex.EncodeToString(data))
	case ok:
		fmt.Fprintf(p.out, "%s %s: %s\n", time.Now().Format("15:04:05.000"), ch.Name(), formatValue(ch.UUID, data))
	default:
		p.logger.WithField("handle", handle).Debug("Notification from a handle not subscribed to")
		fmt.Fprintf(p.out, "%s 0x%04x: %s\n", time.Now().Format("15:04:05.000"), handle, hex.EncodeToString(data))
	}
	if p.engine != nil {
		p.engine.OnNotification(handle, data)
	}
}

// flushScript copies the script output gathered so far
func (p *notificationPrinter) flushScript(errOut io.Writer) {
	if p.engine == nil {
		return
	}
	for {
		select {
		case rec := <-p.engine.Output():
			if rec.Source == "stderr" {
				fmt.Fprintln(errOut, errorColor.Sprint(rec.Content))
			} else {
				fmt.Fprintln(p.out, rec.Content)
			}
		default:
			return
		}
	}
}

func runSubscribe(cmd *cobra.Command, address string, args []string, f *subscribeFlags) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	reg, err := registry(cfg)
	if err != nil {
		return err
	}
	targets := make([]target, 0, len(args))
	for _, a := range args {
		t, err := parseTarget(a, reg)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}

	printer := &notificationPrinter{
		out:    cmd.OutOrStdout(),
		chars:  make(map[uint16]*gatt.Characteristic),
		hex:    f.hex,
		logger: logger,
	}
	if f.script != "" {
		printer.engine = lua.NewEngine(logger, 256)
		defer printer.engine.Close()
		if err := printer.engine.LoadFile(f.script); err != nil {
			printer.flushScript(cmd.ErrOrStderr())
			return err
		}
		if !printer.engine.HasHook() {
			return fmt.Errorf("script %s does not define %s(handle, hex)", f.script, lua.HookName)
		}
		_ = printer.engine.SetGlobal("address", address)
	}

	opts, err := connectOptions(cfg, address, f.addrType, logger)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	intr := watchInterrupt()
	defer intr.Stop()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Subscribing on %s", address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	mode, kind := gatt.CCCDNotify, "notifications"
	if f.indicate {
		mode, kind = gatt.CCCDIndicate, "indications"
	}

	_, err = inspector.InspectDevice(opts, logger, progress.Callback(), func(c *gatt.Connection) (struct{}, error) {
		for _, t := range targets {
			ch, err := findCharacteristic(c, t)
			if err != nil {
				return struct{}{}, err
			}
			if (f.indicate && !ch.SupportsIndicate()) || (!f.indicate && !ch.SupportsNotify()) {
				return struct{}{}, btle.NewError(btle.KindGatt, "characteristic %s does not support %s", ch.Name(), kind)
			}
			if err := ch.EnableNotifications(mode); err != nil {
				return struct{}{}, err
			}
			printer.chars[ch.ValueHandle] = ch
		}
		c.SetObserver(printer)
		progress.Stop()
		if printer.engine != nil {
			_ = printer.engine.SetGlobal("mtu", c.MTU())
		}

		started := time.Now()
		defer logDuration(logger, "Subscription ended", started)
		for !intr.Interrupted() {
			wait := cfg.NotificationTimeout
			if f.duration > 0 {
				remaining := f.duration - time.Since(started)
				if remaining <= 0 {
					return struct{}{}, nil
				}
				wait = min(wait, remaining)
			}
			if _, err := c.WaitForNotifications(wait); err != nil {
				printer.flushScript(cmd.ErrOrStderr())
				return struct{}{}, fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
			printer.flushScript(cmd.ErrOrStderr())
			if f.count > 0 && printer.received >= f.count {
				return struct{}{}, nil
			}
		}
		return struct{}{}, nil
	})
	return err
}
