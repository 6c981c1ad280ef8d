package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/evsync/internal/ir"
)

// parseOffsetMap parses "stream=offset,stream=offset". An empty string is
// the empty map.
func parseOffsetMap(s string) (ir.OffsetMap, error) {
	m := ir.OffsetMap{}
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	for _, part := range strings.Split(s, ",") {
		stream, off, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || stream == "" {
			return nil, fmt.Errorf("invalid offset entry %q: want stream=offset", part)
		}
		n, err := strconv.ParseUint(off, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid offset entry %q: %w", part, err)
		}
		m[ir.StreamID(stream)] = ir.Offset(n)
	}
	return m, nil
}

// parseKey parses "lamport/stream/offset". Stream ids may contain '/'.
func parseKey(s string) (ir.EventKey, error) {
	first := strings.Index(s, "/")
	last := strings.LastIndex(s, "/")
	if first < 0 || first == last {
		return ir.EventKey{}, fmt.Errorf("invalid event key %q: want lamport/stream/offset", s)
	}
	lamport, err := strconv.ParseUint(s[:first], 10, 64)
	if err != nil {
		return ir.EventKey{}, fmt.Errorf("invalid event key %q: lamport: %w", s, err)
	}
	offset, err := strconv.ParseUint(s[last+1:], 10, 64)
	if err != nil {
		return ir.EventKey{}, fmt.Errorf("invalid event key %q: offset: %w", s, err)
	}
	return ir.EventKey{
		Lamport: ir.Lamport(lamport),
		Stream:  ir.StreamID(s[first+1 : last]),
		Offset:  ir.Offset(offset),
	}, nil
}

// formatKey is the inverse of parseKey.
func formatKey(k ir.EventKey) string {
	return fmt.Sprintf("%d/%s/%d", k.Lamport, k.Stream, k.Offset)
}

// parseWhere turns repeated --tags values into a selection: tags within one
// value are all required, separate values are alternatives.
func parseWhere(values []string) ir.Where {
	where := ir.AllEvents
	first := true
	for _, v := range values {
		var tags []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) == 0 {
			continue
		}
		if first {
			where = ir.Tags(tags...)
			first = false
			continue
		}
		where = where.Or(ir.Tags(tags...))
	}
	return where
}

// formatOffsets renders an offset map in parseOffsetMap syntax with
// streams sorted.
func formatOffsets(m ir.OffsetMap) string {
	parts := make([]string, 0, len(m))
	for _, stream := range m.Streams() {
		parts = append(parts, fmt.Sprintf("%s=%d", stream, m[stream]))
	}
	return strings.Join(parts, ",")
}

// formatEvent renders one event as a text line.
func formatEvent(e ir.Event) string {
	return fmt.Sprintf("%s\t%s\t%s", formatKey(e.Key()), strings.Join(e.Tags, ","), string(e.Payload))
}
