package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/roach88/evsync/internal/ir"
)

// marshalOffsets converts an OffsetMap to canonical JSON TEXT.
func marshalOffsets(m ir.OffsetMap) (string, error) {
	data, err := ir.MarshalCanonical(m.Copy())
	if err != nil {
		return "", fmt.Errorf("marshal offsets: %w", err)
	}
	return string(data), nil
}

// marshalHorizon converts an optional key to canonical JSON TEXT or NULL.
func marshalHorizon(k *ir.EventKey) (sql.NullString, error) {
	if k == nil {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalCanonical(*k)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal horizon: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalOffsets(data string) (ir.OffsetMap, error) {
	out := ir.OffsetMap{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal offsets: %w", err)
	}
	return out, nil
}

func unmarshalHorizon(data sql.NullString) (*ir.EventKey, error) {
	if !data.Valid {
		return nil, nil
	}
	var k ir.EventKey
	if err := json.Unmarshal([]byte(data.String), &k); err != nil {
		return nil, fmt.Errorf("unmarshal horizon: %w", err)
	}
	return &k, nil
}

// sqlInt converts a uint64 counter to an INTEGER column value.
// SQLite integers are signed 64-bit.
func sqlInt[T ~uint64](v T) (int64, error) {
	if uint64(v) > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds SQLite INTEGER range", uint64(v))
	}
	return int64(v), nil
}

// keyArgs returns (lamport, stream, offset) query arguments for a key.
func keyArgs(k ir.EventKey) (int64, string, int64, error) {
	lamport, err := sqlInt(k.Lamport)
	if err != nil {
		return 0, "", 0, fmt.Errorf("lamport: %w", err)
	}
	offset, err := sqlInt(k.Offset)
	if err != nil {
		return 0, "", 0, fmt.Errorf("offset: %w", err)
	}
	return lamport, string(k.Stream), offset, nil
}
