package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"music-enricher/internal/notify"
	"music-enricher/internal/shared"
	"music-enricher/internal/store"
)

// discover stores related records it has not seen before and connects each to the single local
// entity with the same simplified name that has no record from its
// provider. The entity's own artist or album wins when several match.
// Ambiguous names are skipped and no local entity is ever created.
func (r *Reconciler) discover(ctx context.Context, logger *slog.Logger, entity shared.LocalEntity, related []shared.ProviderRecord) {
	for _, rec := range related {
		if rec.ProviderID == "" || rec.Provider == "" {
			continue
		}
		if rec.Kind != shared.KindArtist && rec.Kind != shared.KindAlbum {
			continue
		}
		rec.FetchedAt = r.now()

		var stored *shared.ProviderRecord
		if err := r.write(ctx, func(ctx context.Context) error {
			var err error
			stored, err = r.store.InsertRecordIfAbsent(ctx, rec)
			return err
		}); err != nil {
			logger.Warn("failed to store related record", slog.String("provider_id", rec.ProviderID), slog.Any("error", err))
			continue
		}
		if stored.Connected() {
			continue
		}

		target, err := r.discoveryTarget(ctx, entity, *stored)
		if err != nil {
			logger.Warn("related record lookup failed", slog.String("record_id", stored.ID), slog.Any("error", err))
			continue
		}
		if target == nil {
			continue
		}

		err = r.write(ctx, func(ctx context.Context) error {
			return r.store.ConnectRecord(ctx, stored.ID, target.ID)
		})
		switch {
		case errors.Is(err, store.ErrConflict):
			logger.Debug("related record connected concurrently", slog.String("record_id", stored.ID))
			continue
		case err != nil:
			logger.Warn("failed to connect related record", slog.String("record_id", stored.ID), slog.Any("error", err))
			continue
		}
		logger.Info("related record discovered",
			slog.String("related_provider", stored.Provider),
			slog.String("record_id", stored.ID),
			slog.Int64("target_entity_id", target.ID),
			slog.String("name", stored.Name))
		r.invalidate(ctx, *target, stored.Provider, stored.ID, notify.ReasonDiscovered)
	}
}

func (r *Reconciler) discoveryTarget(ctx context.Context, entity shared.LocalEntity, rec shared.ProviderRecord) (*shared.LocalEntity, error) {
	simplified := shared.SimplifyName(rec.Name)
	if simplified == "" {
		return nil, nil
	}
	matches, err := r.store.FindEntitiesBySimplifiedName(ctx, rec.Kind, simplified)
	if err != nil {
		return nil, err
	}

	var free []shared.LocalEntity
	for _, m := range matches {
		connected, err := r.store.ConnectedRecord(ctx, rec.Provider, m.ID)
		if err != nil {
			return nil, err
		}
		if connected == nil {
			free = append(free, m)
		}
	}

	linked := entity.AlbumID
	if rec.Kind == shared.KindArtist {
		linked = entity.ArtistID
	}
	for i := range free {
		if linked != 0 && free[i].ID == linked {
			return &free[i], nil
		}
	}
	if len(free) == 1 {
		return &free[0], nil
	}
	if len(free) > 1 {
		r.logger.Debug("ambiguous related record skipped",
			slog.String("record_id", rec.ID),
			slog.String("name", rec.Name),
			slog.Int("matches", len(free)))
	}
	return nil, nil
}
