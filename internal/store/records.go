package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"music-enricher/internal/shared"
)

const recordColumns = "id, provider, provider_id, kind, name, url, stats_json, details_json, entity_id, fetched_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*shared.ProviderRecord, error) {
	var (
		r          shared.ProviderRecord
		kind       string
		url        sql.NullString
		stats      sql.NullString
		details    sql.NullString
		entityID   sql.NullInt64
		fetchedRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&r.ID, &r.Provider, &r.ProviderID, &kind, &r.Name, &url,
		&stats, &details, &entityID, &fetchedRaw, &updatedRaw); err != nil {
		return nil, err
	}
	r.Kind = shared.Kind(kind)
	r.URL = url.String
	r.EntityID = entityID.Int64
	r.FetchedAt = parseTime(fetchedRaw)
	r.UpdatedAt = parseTime(updatedRaw)
	if stats.String != "" {
		if err := json.Unmarshal([]byte(stats.String), &r.Stats); err != nil {
			return nil, fmt.Errorf("decode stats for record %s: %w", r.ID, err)
		}
	}
	if details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &r.Details); err != nil {
			return nil, fmt.Errorf("decode details for record %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func (s *Store) queryRecord(ctx context.Context, where string, args ...any) (*shared.ProviderRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM provider_records WHERE `+where, args...)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// UpsertRecord creates the record or refreshes its data, keyed by
// (provider, provider_id). The connection column is never touched.
func (s *Store) UpsertRecord(ctx context.Context, r shared.ProviderRecord) (*shared.ProviderRecord, error) {
	return s.insertRecord(ctx, r, `ON CONFLICT(provider, provider_id) DO UPDATE SET
            kind = excluded.kind,
            name = excluded.name,
            url = excluded.url,
            stats_json = excluded.stats_json,
            details_json = excluded.details_json,
            fetched_at = excluded.fetched_at,
            updated_at = excluded.updated_at`)
}

// InsertRecordIfAbsent creates the record unless one with the same
// (provider, provider_id) exists, and returns the stored row either way.
// An existing record keeps its data.
func (s *Store) InsertRecordIfAbsent(ctx context.Context, r shared.ProviderRecord) (*shared.ProviderRecord, error) {
	return s.insertRecord(ctx, r, `ON CONFLICT(provider, provider_id) DO NOTHING`)
}

func (s *Store) insertRecord(ctx context.Context, r shared.ProviderRecord, onConflict string) (*shared.ProviderRecord, error) {
	if r.Provider == "" || r.ProviderID == "" {
		return nil, errors.New("record provider and provider id are required")
	}
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	details, err := json.Marshal(r.Details)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	now := s.now()
	fetched := r.FetchedAt
	if fetched.IsZero() {
		fetched = now
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO provider_records (id, provider, provider_id, kind, name, url, stats_json, details_json, fetched_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         `+onConflict,
		uuid.NewString(), r.Provider, r.ProviderID, string(r.Kind), r.Name, nullableString(r.URL),
		string(stats), string(details), formatTime(fetched), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert record: %w", err)
	}
	return s.FindRecord(ctx, r.Provider, r.ProviderID)
}

// GetRecord fetches a record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (*shared.ProviderRecord, error) {
	return s.queryRecord(ctx, `id = ?`, id)
}

// FindRecord fetches a record by its provider-side id.
func (s *Store) FindRecord(ctx context.Context, provider, providerID string) (*shared.ProviderRecord, error) {
	return s.queryRecord(ctx, `provider = ? AND provider_id = ?`, provider, providerID)
}

// ConnectedRecord returns the provider's record connected to entityID, if any.
func (s *Store) ConnectedRecord(ctx context.Context, provider string, entityID int64) (*shared.ProviderRecord, error) {
	return s.queryRecord(ctx, `provider = ? AND entity_id = ?`, provider, entityID)
}

// RecordsForEntity returns every record connected to entityID.
func (s *Store) RecordsForEntity(ctx context.Context, entityID int64) ([]shared.ProviderRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM provider_records WHERE entity_id = ? ORDER BY provider`, entityID)
	if err != nil {
		return nil, fmt.Errorf("records for entity: %w", err)
	}
	defer rows.Close()
	var out []shared.ProviderRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ConnectRecord attaches an unconnected record to entityID. Connecting a
// record to the entity it is already connected to is a no-op. A record
// connected elsewhere, or an entity that already has a record from the same
// provider, yields ErrConflict.
func (s *Store) ConnectRecord(ctx context.Context, recordID string, entityID int64) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE provider_records SET entity_id = ?, updated_at = ? WHERE id = ? AND entity_id IS NULL`,
		entityID, formatTime(s.now()), recordID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: entity %d already has a record from this provider", ErrConflict, entityID)
		}
		return fmt.Errorf("connect record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	switch {
	case current == nil:
		return fmt.Errorf("record %s not found", recordID)
	case current.EntityID == entityID:
		return nil
	default:
		return fmt.Errorf("%w: record %s is connected to entity %d", ErrConflict, recordID, current.EntityID)
	}
}

// Reconnect moves a record to entityID, disconnecting whatever record of the
// same provider the entity had. It is the only operation that reassigns.
func (s *Store) Reconnect(ctx context.Context, recordID string, entityID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var provider string
		if err := tx.QueryRowContext(ctx, `SELECT provider FROM provider_records WHERE id = ?`, recordID).Scan(&provider); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("record %s not found", recordID)
			}
			return err
		}
		now := formatTime(s.now())
		if _, err := tx.ExecContext(ctx,
			`UPDATE provider_records SET entity_id = NULL, updated_at = ? WHERE provider = ? AND entity_id = ? AND id <> ?`,
			now, provider, entityID, recordID); err != nil {
			return fmt.Errorf("disconnect previous record: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE provider_records SET entity_id = ?, updated_at = ? WHERE id = ?`,
			entityID, now, recordID); err != nil {
			return fmt.Errorf("reconnect record: %w", err)
		}
		return nil
	})
}
