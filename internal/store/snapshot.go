package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/changewatch/internal/apperr"
	"github.com/roach88/changewatch/internal/record"
)

// timeLayout is fixed width so that lexical order of created_at matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Snapshot is one stored observation of a source.
type Snapshot struct {
	ID          int64           `json:"id"`
	Source      string          `json:"source"`
	ContentHash string          `json:"content_hash"`
	ItemCount   int             `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
	Records     []record.Record `json:"records,omitempty"`
}

// SourceSummary describes the stored history of one source.
type SourceSummary struct {
	Source    string    `json:"source"`
	Snapshots int       `json:"snapshots"`
	LatestAt  time.Time `json:"latest_at"`
}

// Save appends a snapshot of records for source and returns its id.
// An empty record list is stored as a snapshot with zero items.
func (s *Store) Save(ctx context.Context, source string, records []record.Record) (int64, error) {
	if err := checkSource("store.save", source); err != nil {
		return 0, err
	}

	createdAt := s.now().UTC().Format(timeLayout)
	payload := record.MarshalRecords(records)
	hash := record.DatasetHash(records)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Storage("store.save", source, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (source_name, content_hash, records, item_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, source, hash, string(payload), len(records), createdAt)
	if err != nil {
		return 0, apperr.Storage("store.save", source, fmt.Errorf("insert snapshot: %w", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Storage("store.save", source, fmt.Errorf("last insert id: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Storage("store.save", source, fmt.Errorf("commit: %w", err))
	}

	return id, nil
}

// Latest returns the records of the newest snapshot of source.
// found is false when source has no snapshots; a stored empty snapshot
// returns an empty, non-nil slice with found true.
func (s *Store) Latest(ctx context.Context, source string) (records []record.Record, found bool, err error) {
	if err := checkSource("store.latest", source); err != nil {
		return nil, false, err
	}

	var payload string
	err = s.db.QueryRowContext(ctx, `
		SELECT records
		FROM snapshots
		WHERE source_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, source).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Storage("store.latest", source, fmt.Errorf("query latest snapshot: %w", err))
	}

	records, err = record.UnmarshalRecords([]byte(payload))
	if err != nil {
		return nil, false, apperr.Storage("store.latest", source, fmt.Errorf("decode snapshot: %w", err))
	}
	return records, true, nil
}

// Prune deletes all but the keep most recent snapshots of source and
// returns the number of rows removed. Runs in its own transaction.
func (s *Store) Prune(ctx context.Context, source string, keep int) (int64, error) {
	if err := checkSource("store.prune", source); err != nil {
		return 0, err
	}
	if keep < 1 {
		return 0, apperr.Validation("store.prune", source, "keep must be at least 1, got %d", keep)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Storage("store.prune", source, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE source_name = ?
		  AND id NOT IN (
			SELECT id FROM snapshots
			WHERE source_name = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		  )
	`, source, source, keep)
	if err != nil {
		return 0, apperr.Storage("store.prune", source, fmt.Errorf("delete snapshots: %w", err))
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storage("store.prune", source, fmt.Errorf("rows affected: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Storage("store.prune", source, fmt.Errorf("commit: %w", err))
	}

	return deleted, nil
}

// List returns snapshot metadata for source, newest first, without records.
// A limit of zero or less returns every snapshot.
func (s *Store) List(ctx context.Context, source string, limit int) ([]Snapshot, error) {
	if err := checkSource("store.list", source); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_name, content_hash, item_count, created_at
		FROM snapshots
		WHERE source_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, source, limit)
	if err != nil {
		return nil, apperr.Storage("store.list", source, fmt.Errorf("query snapshots: %w", err))
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		var (
			snap      Snapshot
			createdAt string
		)
		if err := rows.Scan(&snap.ID, &snap.Source, &snap.ContentHash, &snap.ItemCount, &createdAt); err != nil {
			return nil, apperr.Storage("store.list", source, fmt.Errorf("scan snapshot: %w", err))
		}
		if snap.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, apperr.Storage("store.list", source, err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("store.list", source, fmt.Errorf("iterate snapshots: %w", err))
	}

	return snapshots, nil
}

// Get returns one snapshot including its records. found is false when no
// snapshot has the given id.
func (s *Store) Get(ctx context.Context, id int64) (snap Snapshot, found bool, err error) {
	var (
		payload   string
		createdAt string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, source_name, content_hash, records, item_count, created_at
		FROM snapshots
		WHERE id = ?
	`, id).Scan(&snap.ID, &snap.Source, &snap.ContentHash, &payload, &snap.ItemCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, apperr.Storage("store.get", "", fmt.Errorf("query snapshot %d: %w", id, err))
	}

	if snap.CreatedAt, err = parseTime(createdAt); err != nil {
		return Snapshot{}, false, apperr.Storage("store.get", snap.Source, err)
	}
	if snap.Records, err = record.UnmarshalRecords([]byte(payload)); err != nil {
		return Snapshot{}, false, apperr.Storage("store.get", snap.Source, fmt.Errorf("decode snapshot %d: %w", id, err))
	}
	return snap, true, nil
}

// Sources lists every source with stored history, ordered by name.
func (s *Store) Sources(ctx context.Context) ([]SourceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_name, COUNT(*), MAX(created_at)
		FROM snapshots
		GROUP BY source_name
		ORDER BY source_name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, apperr.Storage("store.sources", "", fmt.Errorf("query sources: %w", err))
	}
	defer rows.Close()

	sources := []SourceSummary{}
	for rows.Next() {
		var (
			sum    SourceSummary
			latest string
		)
		if err := rows.Scan(&sum.Source, &sum.Snapshots, &latest); err != nil {
			return nil, apperr.Storage("store.sources", "", fmt.Errorf("scan source: %w", err))
		}
		if sum.LatestAt, err = parseTime(latest); err != nil {
			return nil, apperr.Storage("store.sources", sum.Source, err)
		}
		sources = append(sources, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("store.sources", "", fmt.Errorf("iterate sources: %w", err))
	}

	return sources, nil
}

func checkSource(op, source string) error {
	if strings.TrimSpace(source) == "" {
		return apperr.Validation(op, source, "source name is empty")
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}
