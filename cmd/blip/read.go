package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blip/gatt"
	"github.com/srg/blip/inspector"
)

type readFlags struct {
	addrType string
	hex      bool
	watch    time.Duration
	count    int
}

func newReadCmd() *cobra.Command {
	f := &readFlags{}
	cmd := &cobra.Command{
		Use:   "read <device-address> <characteristic>",
		Short: "Read a characteristic value",
		Long: fmt.Sprintf(`Reads a characteristic named by value handle (0x25), UUID (2a19) or
attribute name (batteryLevel). SensorTile payloads are decoded.

Examples:
  blip read %s 2a19
  blip read %s 0x0025 --hex
  blip read %s batteryLevel --watch 1s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, args[0], args[1], f)
		},
	}
	cmd.Flags().StringVarP(&f.addrType, "addr-type", "t", "public", "Address type (public, random)")
	cmd.Flags().BoolVar(&f.hex, "hex", false, "Print the raw value as hex only")
	cmd.Flags().DurationVar(&f.watch, "watch", 0, "Re-read at this interval until Ctrl+C")
	cmd.Flags().IntVar(&f.count, "count", 0, "Stop watching after this many reads (0 for unlimited)")
	return cmd
}

func runRead(cmd *cobra.Command, address, arg string, f *readFlags) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	reg, err := registry(cfg)
	if err != nil {
		return err
	}
	t, err := parseTarget(arg, reg)
	if err != nil {
		return err
	}
	opts, err := connectOptions(cfg, address, f.addrType, logger)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	intr := watchInterrupt()
	defer intr.Stop()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Reading %s from %s", arg, address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	out := cmd.OutOrStdout()
	_, err = inspector.InspectDevice(opts, logger, progress.Callback(), func(c *gatt.Connection) (struct{}, error) {
		ch, err := findCharacteristic(c, t)
		if err != nil {
			return struct{}{}, err
		}
		progress.Stop()

		for n := 1; ; n++ {
			val, err := ch.Read()
			if err != nil {
				return struct{}{}, err
			}
			if f.hex {
				fmt.Fprintln(out, hex.EncodeToString(val))
			} else {
				fmt.Fprintf(out, "%s: %s\n", ch.Name(), formatValue(ch.UUID, val))
			}

			if f.watch <= 0 || (f.count > 0 && n >= f.count) {
				return struct{}{}, nil
			}
			time.Sleep(f.watch)
			if intr.Interrupted() {
				return struct{}{}, errInterrupted
			}
		}
	})
	return err
}
