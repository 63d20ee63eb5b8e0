package main

import (
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

const exampleDeviceAddress = "11:22:33:44:55:66"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blip",
		Short: "Bluetooth Low Energy client driving bluepy-helper",
		Long: `Bluetooth Low Energy (BLE) command-line client that talks to a
bluepy-helper process over its line protocol:

- Scan and discover nearby BLE devices
- Inspect GATT services, characteristics, and descriptors
- Read from and write to characteristics
- Subscribe to notifications, decode SensorTile payloads, or hand them to a Lua script`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("helper", "", "Helper command line (e.g. \"sudo /usr/lib/bluepy-helper\")")
	flags.String("transport", "", "Helper transport: pipe or pty")
	flags.Int("iface", 0, "HCI controller index (hciN)")
	flags.String("names-file", "", "uuids.json file merged over the built-in names")
	flags.BoolP("verbose", "v", false, "Verbose output")

	root.AddCommand(newScanCmd(), newInspectCmd(), newReadCmd(), newWriteCmd(), newSubscribeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
