// Package reconcile connects provider records to the local entity graph.
//
// Identification of one entity with one provider is idempotent: a fresh
// freshness mark or a concurrent identification of the same pair turns the
// call into a no-op, records are upserted by provider id, and a record is
// only ever connected to an entity that has no record from that provider.
// Reassignment happens through Reconnect alone.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/sync/errgroup"

	"music-enricher/internal/api/provider"
	"music-enricher/internal/inflight"
	"music-enricher/internal/metrics"
	"music-enricher/internal/notify"
	"music-enricher/internal/shared"
	"music-enricher/internal/store"
)

// DefaultWindow is how long a freshness mark suppresses re-identification.
const DefaultWindow = 168 * time.Hour

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnsupported     = errors.New("provider does not support entity kind")
	ErrEntityNotFound  = errors.New("entity not found")
)

// Store is the persistence the reconciler needs.
type Store interface {
	GetEntity(ctx context.Context, id int64) (*shared.LocalEntity, error)
	FindEntitiesBySimplifiedName(ctx context.Context, kind shared.Kind, simplified string) ([]shared.LocalEntity, error)
	UpsertRecord(ctx context.Context, r shared.ProviderRecord) (*shared.ProviderRecord, error)
	InsertRecordIfAbsent(ctx context.Context, r shared.ProviderRecord) (*shared.ProviderRecord, error)
	GetRecord(ctx context.Context, id string) (*shared.ProviderRecord, error)
	ConnectedRecord(ctx context.Context, provider string, entityID int64) (*shared.ProviderRecord, error)
	ConnectRecord(ctx context.Context, recordID string, entityID int64) error
	Reconnect(ctx context.Context, recordID string, entityID int64) error
	Freshness(ctx context.Context, entityID int64, provider string) (*shared.FreshnessMark, error)
	MarkFetched(ctx context.Context, entityID int64, provider string, at time.Time) error
	ClearFreshness(ctx context.Context, entityID int64, provider string) error
}

// Config controls freshness and write retries.
type Config struct {
	Window    time.Duration            `mapstructure:"window" yaml:"window" json:"window"`
	Providers map[string]time.Duration `mapstructure:"providers" yaml:"providers" json:"providers,omitempty"`
	Retry     shared.RetryConfig       `mapstructure:"retry" yaml:"retry" json:"retry"`
}

// DefaultConfig returns a one-week freshness window.
func DefaultConfig() Config {
	return Config{
		Window: DefaultWindow,
		Retry:  shared.DefaultRetryConfig(),
	}
}

// WindowFor returns the freshness window of provider.
func (c Config) WindowFor(provider string) time.Duration {
	if w, ok := c.Providers[provider]; ok {
		return w
	}
	return c.Window
}

// Options carries optional collaborators.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Notifier notify.Notifier
	Warnings *shared.WarningCollector
	Now      func() time.Time
}

type job struct {
	provider string
	entityID int64
}

// Reconciler identifies local entities with providers.
type Reconciler struct {
	store       Store
	identifiers map[string]Identifier
	order       []string
	cfg         Config
	retry       *shared.Retryer
	inflight    *inflight.Set[job]
	identify    func(context.Context, job) (Outcome, error)
	logger      *slog.Logger
	metrics     *metrics.Metrics
	notifier    notify.Notifier
	warnings    *shared.WarningCollector
	now         func() time.Time
}

// New creates a Reconciler over the given identifiers. The MusicBrainz
// identifier, if present, runs before the others in Identify.
func New(st Store, identifiers []Identifier, cfg Config, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("component", "reconciler"))
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Window <= 0 && cfg.Providers == nil {
		cfg.Window = DefaultWindow
	}

	r := &Reconciler{
		store:       st,
		identifiers: make(map[string]Identifier, len(identifiers)),
		cfg:         cfg,
		retry:       shared.NewRetryer(cfg.Retry, logger, nil),
		inflight:    inflight.NewSet[job](),
		logger:      logger,
		metrics:     opts.Metrics,
		notifier:    notifier,
		warnings:    opts.Warnings,
		now:         now,
	}
	for _, id := range identifiers {
		name := id.Provider()
		if _, dup := r.identifiers[name]; dup {
			continue
		}
		r.identifiers[name] = id
		r.order = append(r.order, name)
	}
	r.identify = inflight.Wrap(r.inflight, func(j job) job { return j }, r.identifyOnce)
	return r
}

// Providers returns the registered provider names in registration order.
func (r *Reconciler) Providers() []string {
	return slices.Clone(r.order)
}

// IdentifyWith identifies one entity with one provider.
func (r *Reconciler) IdentifyWith(ctx context.Context, providerName string, entityID int64) (Outcome, error) {
	if _, ok := r.identifiers[providerName]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	outcome, err := r.identify(ctx, job{provider: providerName, entityID: entityID})
	if errors.Is(err, inflight.ErrBusy) {
		r.logger.Debug("identification already in flight",
			slog.String("provider", providerName), slog.Int64("entity_id", entityID))
		outcome, err = OutcomeInFlight, nil
	}
	if outcome != "" {
		r.metrics.Outcome(providerName, string(outcome))
	}
	return outcome, err
}

// Identify runs every provider supporting the entity's kind. MusicBrainz
// goes first so later providers can use its ids; the rest run concurrently
// and one provider's failure does not stop the others.
func (r *Reconciler) Identify(ctx context.Context, entityID int64) (Report, error) {
	entity, err := r.entity(ctx, entityID)
	if err != nil {
		return Report{EntityID: entityID}, err
	}
	report := Report{EntityID: entity.ID, Kind: entity.Kind}

	var providers []string
	for _, name := range r.order {
		if r.identifiers[name].Supports(entity.Kind) {
			providers = append(providers, name)
		}
	}
	results := make([]ProviderResult, len(providers))
	errs := make([]error, len(providers))
	run := func(i int) {
		outcome, err := r.IdentifyWith(ctx, providers[i], entityID)
		results[i] = ProviderResult{Provider: providers[i], Outcome: outcome}
		if err != nil {
			results[i].Error = err.Error()
			errs[i] = err
		}
	}

	canonical := slices.Index(providers, shared.ProviderMusicBrainz)
	if canonical >= 0 {
		run(canonical)
	}
	var g errgroup.Group
	for i := range providers {
		if i == canonical {
			continue
		}
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	return report, errors.Join(errs...)
}

func (r *Reconciler) entity(ctx context.Context, id int64) (*shared.LocalEntity, error) {
	entity, err := r.store.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	return entity, nil
}

func (r *Reconciler) identifyOnce(ctx context.Context, j job) (Outcome, error) {
	ident := r.identifiers[j.provider]
	entity, err := r.entity(ctx, j.entityID)
	if err != nil {
		return OutcomeFailed, err
	}
	if !ident.Supports(entity.Kind) {
		return OutcomeFailed, fmt.Errorf("%w: %s cannot identify %s entities", ErrUnsupported, j.provider, entity.Kind)
	}
	logger := r.logger.With(slog.String("provider", j.provider), slog.Int64("entity_id", entity.ID))

	mark, err := r.store.Freshness(ctx, entity.ID, j.provider)
	if err != nil {
		return OutcomeFailed, err
	}
	if mark != nil && mark.Age(r.now()) < r.cfg.WindowFor(j.provider) {
		logger.Debug("skipping fresh entity", slog.Time("last_fetched_at", mark.LastFetchedAt))
		return OutcomeFresh, nil
	}

	subject, err := r.subject(ctx, *entity)
	if err != nil {
		return OutcomeFailed, err
	}
	if err := r.write(ctx, func(ctx context.Context) error {
		return r.store.MarkFetched(ctx, entity.ID, j.provider, r.now())
	}); err != nil {
		return OutcomeFailed, fmt.Errorf("mark fetched: %w", err)
	}

	res, err := ident.Identify(ctx, subject)
	if err != nil {
		if errors.Is(err, provider.ErrFatal) {
			r.warnings.AddMissingMetadataWarning(j.provider, entity.ID, err.Error())
			// the entity may gain the missing field before the window ends
			if cerr := r.write(ctx, func(ctx context.Context) error {
				return r.store.ClearFreshness(ctx, entity.ID, j.provider)
			}); cerr != nil {
				logger.Warn("failed to clear freshness mark", slog.Any("error", cerr))
			}
		} else {
			r.warnings.AddProviderFailureWarning(j.provider, entity.ID, err.Error())
		}
		logger.Warn("identification failed", slog.Any("error", err))
		return OutcomeFailed, fmt.Errorf("%s: %w", j.provider, err)
	}
	if res == nil || res.Record.ProviderID == "" {
		r.warnings.AddNotFoundWarning(j.provider, entity.ID, entity.Name)
		logger.Debug("no provider match", slog.String("name", entity.Name))
		return OutcomeNotFound, nil
	}

	res.Record.Provider = j.provider
	res.Record.Kind = entity.Kind
	res.Record.FetchedAt = r.now()
	outcome, err := r.merge(ctx, logger, *entity, res.Record)
	if err != nil {
		return OutcomeFailed, err
	}
	r.discover(ctx, logger, *entity, res.Related)
	return outcome, nil
}

// subject loads the linked artist and album and the MusicBrainz ids of the
// entity and its relatives.
func (r *Reconciler) subject(ctx context.Context, e shared.LocalEntity) (Subject, error) {
	s := Subject{Entity: e}
	var err error
	if e.ArtistID != 0 {
		if s.Artist, err = r.store.GetEntity(ctx, e.ArtistID); err != nil {
			return s, err
		}
	}
	if e.AlbumID != 0 {
		if s.Album, err = r.store.GetEntity(ctx, e.AlbumID); err != nil {
			return s, err
		}
	}
	if s.MBID, err = r.mbid(ctx, e.ID); err != nil {
		return s, err
	}
	if s.Artist != nil {
		if s.ArtistMBID, err = r.mbid(ctx, s.Artist.ID); err != nil {
			return s, err
		}
	}
	if s.Album != nil {
		if s.AlbumMBID, err = r.mbid(ctx, s.Album.ID); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (r *Reconciler) mbid(ctx context.Context, entityID int64) (string, error) {
	rec, err := r.store.ConnectedRecord(ctx, shared.ProviderMusicBrainz, entityID)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.ProviderID, nil
}

var ignoreTimestamps = cmpopts.IgnoreFields(shared.ProviderRecord{}, "FetchedAt", "UpdatedAt")

// merge upserts rec and connects it to the entity unless that would reassign
// a connection.
func (r *Reconciler) merge(ctx context.Context, logger *slog.Logger, entity shared.LocalEntity, rec shared.ProviderRecord) (Outcome, error) {
	before, err := r.store.ConnectedRecord(ctx, rec.Provider, entity.ID)
	if err != nil {
		return OutcomeFailed, err
	}

	var stored *shared.ProviderRecord
	if err := r.write(ctx, func(ctx context.Context) error {
		var err error
		stored, err = r.store.UpsertRecord(ctx, rec)
		return err
	}); err != nil {
		return OutcomeFailed, err
	}

	conflict := func(reason string) (Outcome, error) {
		logger.Warn("connection conflict",
			slog.String("record_id", stored.ID),
			slog.String("provider_id", stored.ProviderID),
			slog.String("reason", reason))
		r.warnings.AddConflictWarning(rec.Provider, entity.ID, stored.ID)
		return OutcomeConflict, nil
	}
	switch {
	case stored.EntityID == entity.ID:
	case stored.EntityID != 0:
		return conflict(fmt.Sprintf("record belongs to entity %d", stored.EntityID))
	case before != nil && before.ID != stored.ID:
		return conflict(fmt.Sprintf("entity is connected to record %s", before.ID))
	default:
		err := r.write(ctx, func(ctx context.Context) error {
			return r.store.ConnectRecord(ctx, stored.ID, entity.ID)
		})
		if errors.Is(err, store.ErrConflict) {
			return conflict(err.Error())
		}
		if err != nil {
			return OutcomeFailed, err
		}
	}

	after, err := r.store.GetRecord(ctx, stored.ID)
	if err != nil {
		return OutcomeFailed, err
	}
	if before != nil && cmp.Equal(before, after, ignoreTimestamps) {
		logger.Debug("record unchanged", slog.String("record_id", stored.ID))
		return OutcomeUnchanged, nil
	}

	reason := notify.ReasonUpdated
	if before == nil {
		reason = notify.ReasonConnected
	}
	if after != nil && before != nil {
		logger.Debug("record changed", slog.String("diff", cmp.Diff(before, after, ignoreTimestamps)))
	}
	logger.Info("record "+reason, slog.String("record_id", stored.ID), slog.String("name", stored.Name))
	r.invalidate(ctx, entity, rec.Provider, stored.ID, reason)
	return OutcomeUpdated, nil
}

func (r *Reconciler) invalidate(ctx context.Context, entity shared.LocalEntity, providerName, recordID, reason string) {
	err := r.notifier.Send(ctx, notify.EventInvalidated, notify.Invalidation{
		EntityID: entity.ID,
		Kind:     string(entity.Kind),
		Provider: providerName,
		RecordID: recordID,
		Reason:   reason,
	})
	if err != nil {
		r.logger.Warn("failed to send invalidation", slog.Int64("entity_id", entity.ID), slog.Any("error", err))
	}
}

// write retries a store write. Conflicts are not retried.
func (r *Reconciler) write(ctx context.Context, op func(ctx context.Context) error) error {
	return r.retry.Do(ctx, func(ctx context.Context) error {
		err := op(ctx)
		if errors.Is(err, store.ErrConflict) {
			return shared.Permanent(err)
		}
		return err
	})
}

// Reconnect explicitly moves a record to entityID, disconnecting the record
// the entity previously had from the same provider.
func (r *Reconciler) Reconnect(ctx context.Context, providerName, recordID string, entityID int64) error {
	rec, err := r.store.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %s not found", recordID)
	}
	if rec.Provider != providerName {
		return fmt.Errorf("record %s belongs to %s, not %s", recordID, rec.Provider, providerName)
	}
	entity, err := r.entity(ctx, entityID)
	if err != nil {
		return err
	}
	if rec.Kind != entity.Kind {
		return fmt.Errorf("cannot connect %s record to %s entity", rec.Kind, entity.Kind)
	}
	if rec.EntityID == entityID {
		return nil
	}

	if err := r.write(ctx, func(ctx context.Context) error {
		return r.store.Reconnect(ctx, recordID, entityID)
	}); err != nil {
		return err
	}
	r.logger.Info("record reconnected",
		slog.String("provider", providerName),
		slog.String("record_id", recordID),
		slog.Int64("entity_id", entityID),
		slog.Int64("previous_entity_id", rec.EntityID))

	r.invalidate(ctx, *entity, providerName, recordID, notify.ReasonReconnected)
	if rec.EntityID != 0 {
		if prev, err := r.store.GetEntity(ctx, rec.EntityID); err == nil && prev != nil {
			r.invalidate(ctx, *prev, providerName, recordID, notify.ReasonDisconnected)
		}
	}
	return nil
}
