package itinerary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes a snapshot as canonical JSON: stops sorted by
// (day, order_index), object keys in lexical order, strings NFC normalized,
// no HTML escaping and no insignificant whitespace.
//
// Two snapshots holding the same stops always encode to the same bytes, which
// is what Digest and the golden scenario files rely on.
func MarshalCanonical(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, s := range Sort(snap) {
		if i > 0 {
			buf.WriteByte(',')
		}
		id, err := marshalCanonicalString(s.EntityID)
		if err != nil {
			return nil, fmt.Errorf("stop[%d]: %w", i, err)
		}
		buf.WriteString(`{"day":`)
		buf.WriteString(strconv.Itoa(s.Day))
		buf.WriteString(`,"entity_id":`)
		buf.Write(id)
		buf.WriteString(`,"order_index":`)
		buf.WriteString(strconv.Itoa(s.OrderIndex))
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalCanonicalString produces a JSON string with NFC normalization.
// Only control characters, backslash and quote are escaped.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. Escape sequences are consumed
// pairwise so an escaped backslash followed by "u2028" is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+6 <= len(data) {
			switch string(data[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5
				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
