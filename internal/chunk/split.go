package chunk

import "github.com/roach88/evsync/internal/ir"

// Split cuts a finite batch into consecutive pieces of at most size
// events. A size below one keeps the batch whole. An empty batch yields
// no pieces.
func Split(events []ir.Event, size int) [][]ir.Event {
	if len(events) == 0 {
		return nil
	}
	if size < 1 || len(events) <= size {
		return [][]ir.Event{events}
	}

	pieces := make([][]ir.Event, 0, (len(events)+size-1)/size)
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		pieces = append(pieces, events[start:end:end])
	}
	return pieces
}
