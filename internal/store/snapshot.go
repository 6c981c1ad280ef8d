package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/evsync/internal/ir"
)

// keyAtOrAfter matches rows whose (lamport, stream, event_offset) is >= the
// key bound to the three ? placeholders (each bound twice or thrice).
const keyAtOrAfter = `(lamport > ?
	OR (lamport = ? AND stream > ?)
	OR (lamport = ? AND stream = ? AND event_offset >= ?))`

const snapshotColumns = `semantics, session, version, lamport, stream, event_offset, offsets, horizon, cycle, state`

// StoreSnapshot saves a snapshot. Storing a snapshot with the same
// (semantics, session, version, event key) again is a no-op.
func (s *Store) StoreSnapshot(ctx context.Context, snap ir.Snapshot) error {
	id, err := ir.SnapshotID(snap.Semantics, snap.Session, snap.Version, snap.EventKey)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	lamport, stream, offset, err := keyArgs(snap.EventKey)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	offsets, err := marshalOffsets(snap.Offsets)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	horizon, err := marshalHorizon(snap.Horizon)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	state := []byte(snap.State)
	if state == nil {
		state = []byte{}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, `+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		snap.Semantics,
		snap.Session,
		snap.Version,
		lamport,
		stream,
		offset,
		offsets,
		horizon,
		snap.Cycle,
		state,
	)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// RetrieveSnapshot returns the snapshot with the highest event key for an
// entity. ok is false when none exists.
func (s *Store) RetrieveSnapshot(ctx context.Context, semantics, session string, version int) (ir.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE semantics = ? AND session = ? AND version = ?
		ORDER BY lamport DESC, stream COLLATE BINARY DESC, event_offset DESC
		LIMIT 1
	`, semantics, session, version)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Snapshot{}, false, nil
	}
	if err != nil {
		return ir.Snapshot{}, false, fmt.Errorf("retrieve snapshot: %w", err)
	}
	return snap, true, nil
}

// InvalidateSnapshots deletes every snapshot of an entity whose event key
// is at or after key, across all versions. Returns the number deleted.
func (s *Store) InvalidateSnapshots(ctx context.Context, semantics, session string, key ir.EventKey) (int64, error) {
	lamport, stream, offset, err := keyArgs(key)
	if err != nil {
		return 0, fmt.Errorf("invalidate snapshots: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE semantics = ? AND session = ? AND `+keyAtOrAfter,
		semantics, session,
		lamport,
		lamport, stream,
		lamport, stream, offset,
	)
	if err != nil {
		return 0, fmt.Errorf("invalidate snapshots: %w", err)
	}
	return res.RowsAffected()
}

// InvalidateAll deletes every snapshot of a semantics.
func (s *Store) InvalidateAll(ctx context.Context, semantics string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE semantics = ?`, semantics)
	if err != nil {
		return 0, fmt.Errorf("invalidate all snapshots: %w", err)
	}
	return res.RowsAffected()
}

// ListSnapshots returns snapshots ordered by (semantics, session, version,
// event key). An empty semantics lists everything.
//
// Returns an empty slice (not nil) when nothing is stored.
func (s *Store) ListSnapshots(ctx context.Context, semantics string) ([]ir.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	var args []any
	if semantics != "" {
		query += ` WHERE semantics = ?`
		args = append(args, semantics)
	}
	query += ` ORDER BY semantics COLLATE BINARY, session COLLATE BINARY, version, lamport, stream COLLATE BINARY, event_offset`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := []ir.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (ir.Snapshot, error) {
	var (
		snap        ir.Snapshot
		lamport     int64
		stream      string
		offset      int64
		offsetsJSON string
		horizonJSON sql.NullString
		state       []byte
	)
	if err := row.Scan(
		&snap.Semantics,
		&snap.Session,
		&snap.Version,
		&lamport,
		&stream,
		&offset,
		&offsetsJSON,
		&horizonJSON,
		&snap.Cycle,
		&state,
	); err != nil {
		return ir.Snapshot{}, err
	}

	offsets, err := unmarshalOffsets(offsetsJSON)
	if err != nil {
		return ir.Snapshot{}, err
	}
	horizon, err := unmarshalHorizon(horizonJSON)
	if err != nil {
		return ir.Snapshot{}, err
	}

	snap.EventKey = ir.EventKey{Lamport: ir.Lamport(lamport), Stream: ir.StreamID(stream), Offset: ir.Offset(offset)}
	snap.Offsets = offsets
	snap.Horizon = horizon
	snap.State = state
	return snap, nil
}
