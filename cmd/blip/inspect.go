package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blip/gatt"
	"github.com/srg/blip/inspector"
)

type inspectFlags struct {
	addrType  string
	format    string
	readLimit int
}

func newInspectCmd() *cobra.Command {
	f := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect <device-address>",
		Short: "Inspect services, characteristics, and descriptors of a BLE device",
		Long: fmt.Sprintf(`Connects to a BLE device by address and discovers its services,
characteristics, and descriptors. Readable characteristic values are read
unless --read-limit is 0.

Examples:
  blip inspect %s
  blip inspect %s --addr-type random --format json`, exampleDeviceAddress, exampleDeviceAddress),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.addrType, "addr-type", "t", "public", "Address type (public, random)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().IntVar(&f.readLimit, "read-limit", 64, "Max bytes shown per readable characteristic (0 disables reads)")
	return cmd
}

func runInspect(cmd *cobra.Command, address string, f *inspectFlags) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if f.format == "" {
		f.format = cfg.OutputFormat
	}
	if f.format != "table" && f.format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", f.format)
	}
	opts, err := connectOptions(cfg, address, f.addrType, logger)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Inspecting device %s", address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	profile, err := inspector.InspectDevice(opts, logger, progress.Callback(), func(c *gatt.Connection) (*inspector.DeviceProfile, error) {
		return inspector.Profile(c, f.readLimit)
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	}
	printProfile(out, profile)
	return nil
}

var (
	serviceColor = color.New(color.FgCyan, color.Bold)
	charColor    = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
)

func labelled(uuid, name string) string {
	if name == "" {
		return uuid
	}
	return fmt.Sprintf("%s (%s)", uuid, name)
}

func printProfile(out io.Writer, p *inspector.DeviceProfile) {
	fmt.Fprintf(out, "Device %s (%s), MTU %d\n", p.Address, p.AddrType, p.MTU)
	for _, svc := range p.Services {
		fmt.Fprintf(out, "%s [0x%04x-0x%04x]\n", serviceColor.Sprint("Service "+labelled(svc.UUID, svc.Name)), svc.Start, svc.End)
		for _, ch := range svc.Characteristics {
			fmt.Fprintf(out, "  %s handle 0x%04x, value 0x%04x, %s\n",
				charColor.Sprint("Characteristic "+labelled(ch.UUID, ch.Name)), ch.Handle, ch.ValueHandle, strings.Join(ch.Properties, " "))
			switch {
			case ch.ReadError != "":
				fmt.Fprintf(out, "    value: %s\n", errorColor.Sprint(ch.ReadError))
			case ch.Value != "":
				fmt.Fprintf(out, "    value: %s\n", ch.Value)
			}
			for _, d := range ch.Descriptors {
				fmt.Fprintf(out, "    Descriptor %s handle 0x%04x\n", labelled(d.UUID, d.Name), d.Handle)
			}
		}
	}
}
