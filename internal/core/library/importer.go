// Package library imports a music server's library into the local entity graph.
package library

import (
	"context"
	"fmt"
	"log/slog"

	"music-enricher/internal/api/navidrome"
	"music-enricher/internal/shared"
)

// Source walks a library artist by artist.
type Source interface {
	Walk(ctx context.Context, fn func(navidrome.Artist) error) error
}

// Store persists imported entities.
type Store interface {
	UpsertEntityByExternalID(ctx context.Context, e shared.LocalEntity) (*shared.LocalEntity, bool, error)
}

// Stats counts imported entities.
type Stats struct {
	Artists int
	Albums  int
	Tracks  int
	Created int
	Updated int
	Skipped int
}

// Importer upserts artists, albums and tracks keyed by their server ids, so
// running it again refreshes entities instead of duplicating them.
type Importer struct {
	store    Store
	logger   *slog.Logger
	warnings *shared.WarningCollector
	// Progress, if set, is called after each artist.
	Progress func(Stats)
}

func NewImporter(st Store, logger *slog.Logger, warnings *shared.WarningCollector) *Importer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Importer{store: st, logger: logger.With(slog.String("component", "import")), warnings: warnings}
}

// Import walks src and upserts everything it yields.
func (im *Importer) Import(ctx context.Context, src Source) (Stats, error) {
	var stats Stats
	err := src.Walk(ctx, func(a navidrome.Artist) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := im.importArtist(ctx, a, &stats); err != nil {
			return err
		}
		if im.Progress != nil {
			im.Progress(stats)
		}
		return nil
	})
	im.logger.Info("import finished",
		slog.Int("artists", stats.Artists),
		slog.Int("albums", stats.Albums),
		slog.Int("tracks", stats.Tracks),
		slog.Int("created", stats.Created),
		slog.Int("skipped", stats.Skipped))
	return stats, err
}

func (im *Importer) importArtist(ctx context.Context, a navidrome.Artist, stats *Stats) error {
	artist, err := im.upsert(ctx, shared.LocalEntity{
		Kind:       shared.KindArtist,
		Name:       a.Name,
		ExternalID: navidrome.ArtistExternalID(a.ID),
	}, stats)
	if err != nil {
		return err
	}
	if artist == nil {
		return nil
	}
	stats.Artists++

	for _, al := range a.Albums {
		album, err := im.upsert(ctx, shared.LocalEntity{
			Kind:       shared.KindAlbum,
			Name:       al.Name,
			ArtistID:   artist.ID,
			ExternalID: navidrome.AlbumExternalID(al.ID),
		}, stats)
		if err != nil {
			return err
		}
		if album == nil {
			continue
		}
		stats.Albums++

		for _, tr := range al.Tracks {
			track, err := im.upsert(ctx, shared.LocalEntity{
				Kind:            shared.KindTrack,
				Name:            tr.Title,
				ArtistID:        artist.ID,
				AlbumID:         album.ID,
				FilePath:        tr.Path,
				DurationSeconds: float64(tr.DurationSeconds),
				ExternalID:      navidrome.TrackExternalID(tr.ID),
			}, stats)
			if err != nil {
				return err
			}
			if track != nil {
				stats.Tracks++
			}
		}
	}
	return nil
}

// upsert returns nil without error for items that cannot be imported.
func (im *Importer) upsert(ctx context.Context, e shared.LocalEntity, stats *Stats) (*shared.LocalEntity, error) {
	if e.Name == "" {
		stats.Skipped++
		im.warnings.AddImportSkippedWarning(e.ExternalID, fmt.Sprintf("%s without a name", e.Kind))
		return nil, nil
	}
	stored, created, err := im.store.UpsertEntityByExternalID(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("import %s %q: %w", e.Kind, e.Name, err)
	}
	if created {
		stats.Created++
	} else {
		stats.Updated++
	}
	return stored, nil
}
