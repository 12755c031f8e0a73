package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"music-enricher/internal/shared"
)

const entityColumns = "id, kind, name, simplified_name, artist_id, album_id, file_path, duration_seconds, external_id, created_at"

func scanEntity(scanner interface{ Scan(dest ...any) error }) (*shared.LocalEntity, error) {
	var (
		e          shared.LocalEntity
		kind       string
		artistID   sql.NullInt64
		albumID    sql.NullInt64
		filePath   sql.NullString
		duration   sql.NullFloat64
		externalID sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&e.ID, &kind, &e.Name, &e.SimplifiedName, &artistID, &albumID,
		&filePath, &duration, &externalID, &createdRaw); err != nil {
		return nil, err
	}
	e.Kind = shared.Kind(kind)
	e.ArtistID = artistID.Int64
	e.AlbumID = albumID.Int64
	e.FilePath = filePath.String
	e.DurationSeconds = duration.Float64
	e.ExternalID = externalID.String
	e.CreatedAt = parseTime(createdRaw)
	return &e, nil
}

func scanEntities(rows *sql.Rows) ([]shared.LocalEntity, error) {
	defer rows.Close()
	var out []shared.LocalEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// CreateEntity inserts a local entity. SimplifiedName is derived from Name.
func (s *Store) CreateEntity(ctx context.Context, e shared.LocalEntity) (*shared.LocalEntity, error) {
	if _, err := shared.ParseKind(string(e.Kind)); err != nil {
		return nil, err
	}
	if e.Name == "" {
		return nil, errors.New("entity name is required")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO entities (kind, name, simplified_name, artist_id, album_id, file_path, duration_seconds, external_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.Name, shared.SimplifyName(e.Name),
		nullableInt(e.ArtistID), nullableInt(e.AlbumID), nullableString(e.FilePath),
		nullableFloat(e.DurationSeconds), nullableString(e.ExternalID), formatTime(s.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetEntity(ctx, id)
}

// UpsertEntityByExternalID inserts or refreshes an imported entity keyed by
// (kind, external_id). It reports whether a new row was created.
func (s *Store) UpsertEntityByExternalID(ctx context.Context, e shared.LocalEntity) (*shared.LocalEntity, bool, error) {
	if e.ExternalID == "" {
		return nil, false, errors.New("external id is required")
	}
	existing, err := s.FindEntityByExternalID(ctx, e.Kind, e.ExternalID)
	if err != nil {
		return nil, false, err
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO entities (kind, name, simplified_name, artist_id, album_id, file_path, duration_seconds, external_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(kind, external_id) DO UPDATE SET
            name = excluded.name,
            simplified_name = excluded.simplified_name,
            artist_id = excluded.artist_id,
            album_id = excluded.album_id,
            file_path = excluded.file_path,
            duration_seconds = excluded.duration_seconds`,
		string(e.Kind), e.Name, shared.SimplifyName(e.Name),
		nullableInt(e.ArtistID), nullableInt(e.AlbumID), nullableString(e.FilePath),
		nullableFloat(e.DurationSeconds), e.ExternalID, formatTime(s.now()),
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert entity: %w", err)
	}
	stored, err := s.FindEntityByExternalID(ctx, e.Kind, e.ExternalID)
	if err != nil {
		return nil, false, err
	}
	return stored, existing == nil, nil
}

// GetEntity fetches an entity by id. It returns nil when absent.
func (s *Store) GetEntity(ctx context.Context, id int64) (*shared.LocalEntity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

// FindEntityByExternalID fetches an imported entity.
func (s *Store) FindEntityByExternalID(ctx context.Context, kind shared.Kind, externalID string) (*shared.LocalEntity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND external_id = ?`, string(kind), externalID)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entity by external id: %w", err)
	}
	return e, nil
}

// ListEntities returns entities of kind, or all entities when kind is empty,
// ordered by id.
func (s *Store) ListEntities(ctx context.Context, kind shared.Kind) ([]shared.LocalEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return scanEntities(rows)
}

// FindEntitiesBySimplifiedName returns entities of kind whose simplified name
// equals simplified.
func (s *Store) FindEntitiesBySimplifiedName(ctx context.Context, kind shared.Kind, simplified string) ([]shared.LocalEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND simplified_name = ? ORDER BY id`,
		string(kind), simplified)
	if err != nil {
		return nil, fmt.Errorf("find entities by name: %w", err)
	}
	return scanEntities(rows)
}
