package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blip/gatt"
	"github.com/srg/blip/inspector"
)

type writeFlags struct {
	addrType     string
	withResponse bool
	text         bool
}

func newWriteCmd() *cobra.Command {
	f := &writeFlags{}
	cmd := &cobra.Command{
		Use:   "write <device-address> <characteristic> <value>",
		Short: "Write a characteristic value",
		Long: fmt.Sprintf(`Writes a hex value (or text with --text) to a characteristic named by
value handle, UUID or attribute name.

Examples:
  blip write %s 0x0025 0100 --with-response
  blip write %s 2a00 "kitchen" --text`, exampleDeviceAddress, exampleDeviceAddress),
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, args[0], args[1], args[2], f)
		},
	}
	cmd.Flags().StringVarP(&f.addrType, "addr-type", "t", "public", "Address type (public, random)")
	cmd.Flags().BoolVarP(&f.withResponse, "with-response", "r", false, "Wait for the write acknowledgement")
	cmd.Flags().BoolVar(&f.text, "text", false, "Treat the value as text instead of hex")
	return cmd
}

func runWrite(cmd *cobra.Command, address, arg, value string, f *writeFlags) error {
	var data []byte
	if f.text {
		data = []byte(value)
	} else {
		var err error
		if data, err = parseHexValue(value); err != nil {
			return err
		}
	}

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

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Writing %s on %s", arg, address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	_, err = inspector.InspectDevice(opts, logger, progress.Callback(), func(c *gatt.Connection) (struct{}, error) {
		ch, err := findCharacteristic(c, t)
		if err != nil {
			return struct{}{}, err
		}
		if err := ch.Write(data, f.withResponse); err != nil {
			return struct{}{}, err
		}
		progress.Stop()
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(data), ch.Name())
		return struct{}{}, nil
	})
	return err
}
