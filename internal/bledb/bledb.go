// Package bledb maps Bluetooth assigned numbers to human-readable names.
//
// A small built-in table covers the common SIG services, characteristics and
// descriptors plus the SensorTile vendor profile. Larger tables load from a
// uuids.json file (sections of [number, cname, name] triples) or from the
// Nordic bluetooth-numbers-database JSON that ./gen downloads.
package bledb

//go:generate go run ./gen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/srg/blip/btle"
)

// Registry holds assigned-number names and their camel-case attribute aliases
type Registry struct {
	names map[btle.UUID]string
	attrs map[string]btle.UUID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[btle.UUID]string),
		attrs: make(map[string]btle.UUID),
	}
}

// Add registers name for u; a later name for the same identifier wins
func (r *Registry) Add(u btle.UUID, name string) {
	if name == "" {
		return
	}
	r.names[u] = name
	r.attrs[CapitaliseName(name)] = u
}

// Merge copies every entry of other into r
func (r *Registry) Merge(other *Registry) {
	if other == nil {
		return
	}
	for u, n := range other.names {
		r.names[u] = n
	}
	for a, u := range other.attrs {
		r.attrs[a] = u
	}
}

// Name returns the common name of u, "" when unknown
func (r *Registry) Name(u btle.UUID) string {
	return r.names[u]
}

// ByAttr looks an identifier up by its camel-case alias, e.g. "batteryLevel"
func (r *Registry) ByAttr(attr string) (btle.UUID, bool) {
	u, ok := r.attrs[attr]
	return u, ok
}

// Len returns the number of named identifiers
func (r *Registry) Len() int {
	return len(r.names)
}

// Attrs lists the camel-case aliases in sorted order
func (r *Registry) Attrs() []string {
	out := make([]string, 0, len(r.attrs))
	for a := range r.attrs {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Table snapshots the registry as a name table
func (r *Registry) Table() *btle.NameTable {
	return btle.NewNameTable(r.names)
}

// CapitaliseName turns a description into a camel-case alias:
// "Heart Rate Measurement" -> "heartRateMeasurement".
func CapitaliseName(descr string) string {
	descr = strings.NewReplacer("(", " ", ")", " ", "-", " ").Replace(descr)
	words := strings.Split(descr, " ")

	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for _, w := range words[1:] {
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(strings.ToLower(w[1:]))
	}
	return b.String()
}

var (
	builtinOnce sync.Once
	builtin     *Registry
)

// Builtin returns the shared built-in registry
func Builtin() *Registry {
	builtinOnce.Do(func() {
		builtin = NewRegistry()
		for _, e := range builtinEntries {
			builtin.Add(btle.MustParseUUID(e.uuid), e.name)
		}
	})
	return builtin
}

// Lookup resolves any accepted identifier form against the built-in table
func Lookup(id string) string {
	u, err := btle.ParseUUID(id)
	if err != nil {
		return ""
	}
	return Builtin().Name(u)
}

// Load reads a uuids.json document: an object of sections, each a list of
// [number, cname, name] triples. Numbers may be JSON integers or hex strings.
// The third column wins when both names are present.
func Load(r io.Reader) (*Registry, error) {
	var doc map[string][][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid uuid names document: %w", err)
	}

	reg := NewRegistry()
	for section, rows := range doc {
		for i, row := range rows {
			if len(row) < 2 {
				return nil, fmt.Errorf("%s[%d]: expected [number, cname, name]", section, i)
			}
			u, err := parseNumber(row[0])
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", section, i, err)
			}
			for _, raw := range row[1:] {
				var name string
				if err := json.Unmarshal(raw, &name); err != nil {
					return nil, fmt.Errorf("%s[%d]: name is not a string", section, i)
				}
				reg.Add(u, name)
			}
		}
	}
	return reg, nil
}

func parseNumber(raw json.RawMessage) (btle.UUID, error) {
	var num json.Number
	if !bytes.HasPrefix(raw, []byte(`"`)) && json.Unmarshal(raw, &num) == nil {
		v, err := num.Int64()
		if err != nil || v < 0 || v > 0xFFFFFFFF {
			return btle.UUID{}, fmt.Errorf("short identifier %s out of range", num)
		}
		return btle.UUIDFromInt(uint32(v)), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return btle.UUID{}, fmt.Errorf("identifier must be a number or string")
	}
	return btle.ParseUUID(s)
}

// LoadFile reads a uuids.json file and merges it over the built-in table
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open uuid names file: %w", err)
	}
	defer f.Close()

	loaded, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	reg := NewRegistry()
	reg.Merge(Builtin())
	reg.Merge(loaded)
	return reg, nil
}

// Kind is the category of a Nordic database file
type Kind string

const (
	Service        Kind = "Service"
	Characteristic Kind = "Characteristic"
	Descriptor     Kind = "Descriptor"
	Vendor         Kind = "Vendor"
)

// Entry is one named assigned number
type Entry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Kind Kind   `json:"-"`
}

// LoadNordic parses a Nordic bluetooth-numbers-database array.
// Vendor files use a numeric "id" instead of "uuid".
func LoadNordic(r io.Reader, kind Kind) ([]Entry, error) {
	var arr []map[string]interface{}
	if err := json.NewDecoder(r).Decode(&arr); err != nil {
		return nil, fmt.Errorf("failed to parse %s database: %w", kind, err)
	}

	entries := make([]Entry, 0, len(arr))
	for _, v := range arr {
		id := ""
		if kind == Vendor {
			switch raw := v["id"].(type) {
			case float64:
				id = fmt.Sprintf("%d", int(raw))
			case string:
				id = raw
			}
		} else if u, ok := v["uuid"].(string); ok {
			id = u
		}
		name, _ := v["name"].(string)
		if id != "" && name != "" {
			entries = append(entries, Entry{UUID: id, Name: name, Kind: kind})
		}
	}
	return entries, nil
}

// Sections groups Nordic entries into a uuids.json document, skipping vendors
// and duplicate identifiers (first name wins).
func Sections(entries []Entry) map[string][][]string {
	out := make(map[string][][]string)
	seen := make(map[btle.UUID]bool)
	for _, e := range entries {
		if e.Kind == Vendor {
			continue
		}
		u, err := btle.ParseUUID(e.UUID)
		if err != nil || seen[u] {
			continue
		}
		seen[u] = true
		section := strings.ToLower(string(e.Kind)) + "_UUIDs"
		number := u.String()
		if short, ok := u.Short(); ok {
			number = fmt.Sprintf("0x%04X", short)
		}
		out[section] = append(out[section], []string{number, e.Name, e.Name})
	}
	return out
}
