package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blip/internal/advdata"
	"github.com/srg/blip/scanner"
)

// processSlice bounds each Process call so Ctrl+C is noticed promptly
const processSlice = 200 * time.Millisecond

type scanFlags struct {
	duration time.Duration
	format   string
	passive  bool
	watch    bool
	logFile  string
	name     string
}

func newScanCmd() *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Every advertisement updates the device table; --watch prints devices as they
appear or change and --log appends each discovery as a JSON line to a file.

Examples:
  blip scan -d 5s
  blip scan --passive --format json
  blip scan --watch --name SensorTile --log scan.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, f)
		},
	}
	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 0, "Scan duration (default from config; 0 with --watch scans until Ctrl+C)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().BoolVar(&f.passive, "passive", false, "Passive scan (no scan requests)")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Print devices as they are discovered or change")
	cmd.Flags().StringVar(&f.logFile, "log", "", "Append each discovery as a JSON line to this file")
	cmd.Flags().StringVar(&f.name, "name", "", "Only show devices whose name contains this text")
	return cmd
}

// discoveryLog is one line of the --log file
type discoveryLog struct {
	Time      time.Time          `json:"time"`
	NewDevice bool               `json:"new_device"`
	NewData   bool               `json:"new_data"`
	Entry     *scanner.ScanEntry `json:"entry"`
}

func runScan(cmd *cobra.Command, f *scanFlags) error {
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
	duration := cfg.ScanTimeout
	if cmd.Flags().Changed("duration") || f.watch {
		duration = f.duration
	}

	var logOut io.WriteCloser
	if f.logFile != "" {
		if logOut, err = os.OpenFile(f.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
			return fmt.Errorf("failed to open scan log: %w", err)
		}
		defer logOut.Close()
	}

	opts, err := scannerOptions(cfg, logger)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	s := scanner.NewScanner(opts, logger)
	feed := scanner.NewEventFeed(256)
	s.SetObserver(feed)

	intr := watchInterrupt()
	defer intr.Stop()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", duration, "Done")
	if !f.watch {
		progress.Start()
		defer progress.Stop()
	}

	if err := s.Start(f.passive); err != nil {
		return err
	}
	defer func() {
		if err := s.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop scan")
		}
	}()

	out := cmd.OutOrStdout()
	started := time.Now()
	for !intr.Interrupted() {
		slice := processSlice
		if duration > 0 {
			remaining := duration - time.Since(started)
			if remaining <= 0 {
				break
			}
			slice = min(slice, remaining)
		}
		if err := s.Process(slice); err != nil {
			return err
		}
		if err := drainEvents(feed, out, logOut, f); err != nil {
			return err
		}
	}
	progress.Callback()("Done")
	logDuration(logger, "Scan finished", started)
	if feed.Dropped() > 0 {
		logger.WithField("dropped", feed.Dropped()).Warn("Discovery events dropped")
	}

	devices := filterDevices(s.Devices(), f.name)
	if f.watch && f.format == "table" {
		fmt.Fprintf(out, "%d devices discovered\n", len(devices))
		return nil
	}
	return displayDevices(out, devices, f.format)
}

func drainEvents(feed *scanner.EventFeed, out io.Writer, logOut io.Writer, f *scanFlags) error {
	for {
		select {
		case ev := <-feed.Events():
			if logOut != nil {
				line, err := json.Marshal(discoveryLog{Time: ev.Timestamp, NewDevice: ev.NewDevice, NewData: ev.NewData, Entry: ev.Entry})
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(logOut, "%s\n", line); err != nil {
					return fmt.Errorf("failed to write scan log: %w", err)
				}
			}
			if f.watch && (ev.NewDevice || ev.NewData) && matchesName(ev.Entry, f.name) {
				printEvent(out, ev)
			}
		default:
			return nil
		}
	}
}

var (
	newDeviceColor = color.New(color.FgGreen, color.Bold)
	updateColor    = color.New(color.FgYellow)
)

func printEvent(out io.Writer, ev scanner.Event) {
	label := updateColor.Sprint("update")
	if ev.NewDevice {
		label = newDeviceColor.Sprint("new   ")
	}
	name := ev.Entry.Name()
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(out, "%s %s %s %d dBm %s\n", ev.Timestamp.Format("15:04:05"), label, ev.Entry.Addr, ev.Entry.RSSI, name)
}

func matchesName(e *scanner.ScanEntry, name string) bool {
	return name == "" || strings.Contains(strings.ToLower(e.Name()), strings.ToLower(name))
}

func filterDevices(devices []*scanner.ScanEntry, name string) []*scanner.ScanEntry {
	out := devices[:0:0]
	for _, d := range devices {
		if matchesName(d, name) {
			out = append(out, d)
		}
	}
	return out
}

func displayDevices(out io.Writer, devices []*scanner.ScanEntry, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tTYPE\tRSSI\tCONN\tNAME\tSERVICES")
	for _, d := range devices {
		name := d.Name()
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(advertisedServices(d), ",")
		if len(services) > 40 {
			services = services[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%t\t%s\t%s\n", d.Addr, d.AddrType, d.RSSI, d.Connectable, name, services)
	}
	return w.Flush()
}

var serviceListTypes = []advdata.Type{
	advdata.Complete16BServices, advdata.Incomplete16BServices,
	advdata.Complete32BServices, advdata.Incomplete32BServices,
	advdata.Complete128BServices, advdata.Incomplete128BServices,
}

func advertisedServices(d *scanner.ScanEntry) []string {
	var out []string
	for _, t := range serviceListTypes {
		if v := d.ValueText(t); v != "" {
			out = append(out, v)
		}
	}
	return out
}
