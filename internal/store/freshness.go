package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"music-enricher/internal/shared"
)

// Freshness returns the mark for (entityID, provider), or nil when the
// entity was never fetched from that provider.
func (s *Store) Freshness(ctx context.Context, entityID int64, provider string) (*shared.FreshnessMark, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT last_fetched_at FROM freshness WHERE entity_id = ? AND provider = ?`, entityID, provider).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get freshness: %w", err)
	}
	return &shared.FreshnessMark{EntityID: entityID, Provider: provider, LastFetchedAt: parseTime(raw)}, nil
}

// MarkFetched records that entityID was fetched from provider at.
func (s *Store) MarkFetched(ctx context.Context, entityID int64, provider string, at time.Time) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO freshness (entity_id, provider, last_fetched_at) VALUES (?, ?, ?)
         ON CONFLICT(entity_id, provider) DO UPDATE SET last_fetched_at = excluded.last_fetched_at`,
		entityID, provider, formatTime(at))
	if err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	return nil
}

// ClearFreshness forgets the mark so the next identification runs.
func (s *Store) ClearFreshness(ctx context.Context, entityID int64, provider string) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM freshness WHERE entity_id = ? AND provider = ?`, entityID, provider)
	if err != nil {
		return fmt.Errorf("clear freshness: %w", err)
	}
	return nil
}
