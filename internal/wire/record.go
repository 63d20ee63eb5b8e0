package wire

import "fmt"

// ValueType tags the decoded form of a field value
type ValueType int

const (
	Absent ValueType = iota
	Text
	Int
	Bytes
)

// Value is a single decoded field value
type Value struct {
	Type  ValueType
	Str   string
	Int   int64
	Bytes []byte
}

// String renders the value for logs
func (v Value) String() string {
	switch v.Type {
	case Text:
		return v.Str
	case Int:
		return fmt.Sprintf("0x%X", v.Int)
	case Bytes:
		return fmt.Sprintf("%x", v.Bytes)
	default:
		return "<none>"
	}
}

// Response kinds carried in the rsp tag
const (
	KindStatus       = "stat"
	KindNotification = "ntfy"
	KindIndication   = "ind"
	KindError        = "err"
	KindScan         = "scan"
	KindManagement   = "mgmt"
	KindFind         = "find"
	KindDescriptors  = "desc"
	KindRead         = "rd"
	KindWrite        = "wr"
	KindOOB          = "oob"
)

// Record is one decoded line: tag to the ordered list of its values.
// A tag repeats when the helper reports several items in one response.
type Record map[string][]Value

// Kind returns the response type indicator
func (r Record) Kind() string {
	return r.Str("rsp")
}

// Has reports whether tag carries at least one value
func (r Record) Has(tag string) bool {
	return len(r[tag]) > 0
}

// Str returns the first value of tag as text, "" when missing or not text
func (r Record) Str(tag string) string {
	vals := r[tag]
	if len(vals) == 0 || vals[0].Type != Text {
		return ""
	}
	return vals[0].Str
}

// Int returns the first value of tag as an integer
func (r Record) Int(tag string) (int64, bool) {
	vals := r[tag]
	if len(vals) == 0 || vals[0].Type != Int {
		return 0, false
	}
	return vals[0].Int, true
}

// Bytes returns the first value of tag as raw bytes; absent values yield an empty slice
func (r Record) Bytes(tag string) []byte {
	vals := r[tag]
	if len(vals) == 0 {
		return nil
	}
	switch vals[0].Type {
	case Bytes:
		return vals[0].Bytes
	case Absent:
		return []byte{}
	default:
		return nil
	}
}

// Strs returns every text value of tag, in wire order
func (r Record) Strs(tag string) []string {
	out := make([]string, 0, len(r[tag]))
	for _, v := range r[tag] {
		out = append(out, v.Str)
	}
	return out
}

// Ints returns every integer value of tag, in wire order
func (r Record) Ints(tag string) []int64 {
	out := make([]int64, 0, len(r[tag]))
	for _, v := range r[tag] {
		out = append(out, v.Int)
	}
	return out
}

// State returns the state field of a status record
func (r Record) State() string {
	return r.Str("state")
}

// Code returns the code field of mgmt and err records
func (r Record) Code() string {
	return r.Str("code")
}

// ErrorStatus returns the estat/emsg pair attached to failures, rendered as text
func (r Record) ErrorStatus() (status, msg string) {
	if vals := r["estat"]; len(vals) > 0 && vals[0].Type != Absent {
		status = vals[0].String()
	}
	if vals := r["emsg"]; len(vals) > 0 && vals[0].Type != Absent {
		msg = vals[0].String()
	}
	return status, msg
}
