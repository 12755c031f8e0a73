package interfaces

import (
	"context"

	"music-enricher/internal/api/navidrome"
	"music-enricher/internal/core/fingerprint"
	"music-enricher/internal/core/reconcile"
	"music-enricher/internal/shared"
)

// LibraryStore defines the persistence operations used by the commands
type LibraryStore interface {
	// CreateEntity adds a local entity
	CreateEntity(ctx context.Context, e shared.LocalEntity) (*shared.LocalEntity, error)

	// GetEntity returns the entity, or nil when absent
	GetEntity(ctx context.Context, id int64) (*shared.LocalEntity, error)

	// ListEntities returns entities of kind, or all when kind is empty
	ListEntities(ctx context.Context, kind shared.Kind) ([]shared.LocalEntity, error)

	// RecordsForEntity returns the records connected to an entity
	RecordsForEntity(ctx context.Context, entityID int64) ([]shared.ProviderRecord, error)

	// ClearFreshness forces the next identification with provider to run
	ClearFreshness(ctx context.Context, entityID int64, provider string) error

	Ping(ctx context.Context) error
	Close() error
}

// ReconcileService defines entity identification
type ReconcileService interface {
	// Providers lists the registered providers in run order
	Providers() []string

	// Identify runs every provider that supports the entity's kind
	Identify(ctx context.Context, entityID int64) (reconcile.Report, error)

	// IdentifyWith runs a single provider
	IdentifyWith(ctx context.Context, provider string, entityID int64) (reconcile.Outcome, error)

	// Reconnect moves a record to another entity
	Reconnect(ctx context.Context, provider, recordID string, entityID int64) error
}

// FileResolver identifies an audio file by its acoustic fingerprint
type FileResolver interface {
	Identify(ctx context.Context, path string, local fingerprint.LocalMetadata) (*fingerprint.Match, error)
}

// LibrarySource walks a media server's library
type LibrarySource interface {
	Authenticate() error
	Walk(ctx context.Context, fn func(navidrome.Artist) error) error
}
