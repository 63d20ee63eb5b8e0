package wire

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/srg/blip/btle"
)

// FieldSeparator splits tag=value segments within one response line
const FieldSeparator = "\x1e"

// IsIgnorable reports whether a raw line is a comment, keepalive or empty read
func IsIgnorable(line string) bool {
	return line == "" || line == "\n" || strings.HasPrefix(line, "#")
}

// Decode parses one response line into a Record.
// The record must carry an rsp tag.
func Decode(line string) (Record, error) {
	rec := make(Record)
	for _, item := range strings.Split(strings.TrimRight(line, "\r\n \t"), FieldSeparator) {
		tag, tval, ok := strings.Cut(item, "=")
		if !ok {
			return nil, btle.NewError(btle.KindDecode, "cannot understand response segment %q", item)
		}
		val, err := decodeValue(tval)
		if err != nil {
			return nil, err
		}
		rec[tag] = append(rec[tag], val)
	}

	if !rec.Has("rsp") {
		return nil, btle.NewError(btle.KindDecode, "no response type indicator in %q", line)
	}
	return rec, nil
}

func decodeValue(tval string) (Value, error) {
	if tval == "" {
		return Value{Type: Absent}, nil
	}

	switch tval[0] {
	case '$', '\'':
		return Value{Type: Text, Str: tval[1:]}, nil
	case 'h':
		n, err := strconv.ParseInt(tval[1:], 16, 64)
		if err != nil {
			return Value{}, &btle.Error{Kind: btle.KindDecode, Msg: "cannot understand response value " + strconv.Quote(tval), Err: err}
		}
		return Value{Type: Int, Int: n}, nil
	case 'b':
		b, err := hex.DecodeString(tval[1:])
		if err != nil {
			return Value{}, &btle.Error{Kind: btle.KindDecode, Msg: "cannot understand response value " + strconv.Quote(tval), Err: err}
		}
		return Value{Type: Bytes, Bytes: b}, nil
	default:
		return Value{}, btle.NewError(btle.KindDecode, "cannot understand response value %q", tval)
	}
}
