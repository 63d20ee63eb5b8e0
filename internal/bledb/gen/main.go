// Package main builds a uuids.json name table from Nordic Semiconductor's
// bluetooth-numbers-database.
//
// The downloaded files are cached; the output loads with bledb.LoadFile or
// the --names flag of blip.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/srg/blip/internal/bledb"
)

const (
	baseURL           = "https://raw.githubusercontent.com/NordicSemiconductor/bluetooth-numbers-database/master/v1/"
	serviceURL        = baseURL + "service_uuids.json"
	characteristicURL = baseURL + "characteristic_uuids.json"
	descriptorURL     = baseURL + "descriptor_uuids.json"
)

type source struct {
	file string
	url  string
	kind bledb.Kind
}

var sources = []source{
	{"services.json", serviceURL, bledb.Service},
	{"characteristics.json", characteristicURL, bledb.Characteristic},
	{"descriptors.json", descriptorURL, bledb.Descriptor},
}

func main() {
	cacheDir := flag.String("cache", "../../.tmp/bledb-cache", "download cache directory")
	out := flag.String("out", "uuids.json", "output file")
	flag.Parse()

	if err := run(*cacheDir, *out); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cacheDir, out string) error {
	var entries []bledb.Entry
	for _, src := range sources {
		path, err := ensureCached(cacheDir, src.file, src.url)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to read cached file %s: %w", path, err)
		}
		parsed, err := bledb.LoadNordic(f, src.kind)
		f.Close()
		if err != nil {
			return err
		}
		entries = append(entries, parsed...)
	}

	data, err := json.MarshalIndent(bledb.Sections(entries), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Println("Generated", out, "with", len(entries), "entries")
	return nil
}

// ensureCached downloads url into the cache unless it is already there
func ensureCached(cacheDir, filename, url string) (string, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	path := filepath.Join(cacheDir, filename)
	if _, err := os.Stat(path); err == nil {
		fmt.Println("Using cached file", filename)
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check cache file %s: %w", filename, err)
	}

	fmt.Println("Downloading", filename)
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %d", filename, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body for %s: %w", filename, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write cache file %s: %w", filename, err)
	}
	return path, nil
}
