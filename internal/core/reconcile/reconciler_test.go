package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music-enricher/internal/api/provider"
	"music-enricher/internal/metrics"
	"music-enricher/internal/notify"
	"music-enricher/internal/shared"
	"music-enricher/internal/store"
	"music-enricher/internal/testsupport"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeIdentifier struct {
	name    string
	kinds   []shared.Kind
	calls   atomic.Int32
	respond func(Subject) (*Result, error)
	started chan struct{}
	release chan struct{}
}

func (f *fakeIdentifier) Provider() string { return f.name }

func (f *fakeIdentifier) Supports(kind shared.Kind) bool {
	if len(f.kinds) == 0 {
		return true
	}
	for _, k := range f.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (f *fakeIdentifier) Identify(ctx context.Context, s Subject) (*Result, error) {
	f.calls.Add(1)
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.respond(s)
}

func recordResult(provider, id, name string, popularity int) func(Subject) (*Result, error) {
	return func(Subject) (*Result, error) {
		return &Result{Record: shared.ProviderRecord{
			Provider:   provider,
			ProviderID: id,
			Name:       name,
			Stats:      shared.RecordStats{Popularity: popularity},
		}}, nil
	}
}

type env struct {
	store    *store.Store
	rec      *Reconciler
	clock    *clock
	events   <-chan notify.Event
	warnings *shared.WarningCollector
	metrics  *metrics.Metrics
}

func newEnv(t *testing.T, cfg Config, ids ...Identifier) *env {
	t.Helper()
	st := testsupport.NewStore(t)
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	bus := notify.NewBus(nil, nil)
	events, unsubscribe := bus.Subscribe(64)
	t.Cleanup(unsubscribe)
	warnings := shared.NewWarningCollector(true)
	m := metrics.New(prometheus.NewRegistry())

	cfg.Retry = shared.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	r := New(st, ids, cfg, Options{
		Logger:   testsupport.Logger(t),
		Metrics:  m,
		Notifier: bus,
		Warnings: warnings,
		Now:      clk.Now,
	})
	return &env{store: st, rec: r, clock: clk, events: events, warnings: warnings, metrics: m}
}

func (e *env) drain() []notify.Invalidation {
	var out []notify.Invalidation
	for {
		select {
		case ev := <-e.events:
			out = append(out, ev.Payload.(notify.Invalidation))
		default:
			return out
		}
	}
}

func TestIdentifyWithConnectsRecordOnce(t *testing.T) {
	ctx := context.Background()
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: recordResult(shared.ProviderSpotify, "sp-1", "Radiohead", 80)}
	e := newEnv(t, DefaultConfig(), sp)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	rec, err := e.store.ConnectedRecord(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "sp-1", rec.ProviderID)
	assert.Equal(t, shared.KindArtist, rec.Kind)
	assert.Equal(t, 80, rec.Stats.Popularity)

	events := e.drain()
	require.Len(t, events, 1)
	assert.Equal(t, notify.Invalidation{
		EntityID: artist.ID, Kind: "artist", Provider: shared.ProviderSpotify, RecordID: rec.ID, Reason: notify.ReasonConnected,
	}, events[0])

	// a second identification inside the window is a no-op
	outcome, err = e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFresh, outcome)
	assert.False(t, outcome.Ran())
	assert.EqualValues(t, 1, sp.calls.Load())
	assert.Empty(t, e.drain())

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Outcomes.WithLabelValues(shared.ProviderSpotify, "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Outcomes.WithLabelValues(shared.ProviderSpotify, "fresh")))
}

func TestFreshnessRespected(t *testing.T) {
	ctx := context.Background()
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: recordResult(shared.ProviderSpotify, "sp-1", "Radiohead", 80)}
	e := newEnv(t, Config{Window: 7 * 24 * time.Hour}, sp)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})

	require.NoError(t, e.store.MarkFetched(ctx, artist.ID, shared.ProviderSpotify, e.clock.Now().Add(-time.Hour)))

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFresh, outcome)
	assert.Zero(t, sp.calls.Load())

	e.clock.Advance(7 * 24 * time.Hour)
	outcome, err = e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.EqualValues(t, 1, sp.calls.Load())
}

func TestProviderWindowOverride(t *testing.T) {
	ctx := context.Background()
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: recordResult(shared.ProviderSpotify, "sp-1", "Radiohead", 80)}
	cfg := Config{Window: 7 * 24 * time.Hour, Providers: map[string]time.Duration{shared.ProviderSpotify: 30 * time.Minute}}
	e := newEnv(t, cfg, sp)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})
	require.NoError(t, e.store.MarkFetched(ctx, artist.ID, shared.ProviderSpotify, e.clock.Now().Add(-time.Hour)))

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, 30*time.Minute, cfg.WindowFor(shared.ProviderSpotify))
	assert.Equal(t, 7*24*time.Hour, cfg.WindowFor(shared.ProviderLastFM))
}

func TestRefetchUnchangedAndUpdated(t *testing.T) {
	ctx := context.Background()
	var popularity atomic.Int32
	popularity.Store(80)
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: func(s Subject) (*Result, error) {
		return recordResult(shared.ProviderSpotify, "sp-1", "Radiohead", int(popularity.Load()))(s)
	}}
	e := newEnv(t, Config{Window: time.Hour}, sp)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	first, err := e.store.ConnectedRecord(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	e.drain()

	e.clock.Advance(2 * time.Hour)
	outcome, err = e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Empty(t, e.drain())

	popularity.Store(81)
	e.clock.Advance(2 * time.Hour)
	outcome, err = e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	events := e.drain()
	require.Len(t, events, 1)
	assert.Equal(t, notify.ReasonUpdated, events[0].Reason)

	after, err := e.store.ConnectedRecord(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, after.ID, "record updated in place")
	assert.Equal(t, 81, after.Stats.Popularity)
}

func TestConcurrentIdentificationIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	sp := &fakeIdentifier{
		name:    shared.ProviderSpotify,
		respond: recordResult(shared.ProviderSpotify, "sp-1", "Radiohead", 80),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := newEnv(t, DefaultConfig(), sp)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})

	var (
		wg      sync.WaitGroup
		outcome Outcome
		err     error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome, err = e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	}()
	<-sp.started

	second, secondErr := e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, secondErr)
	assert.Equal(t, OutcomeInFlight, second)
	assert.False(t, second.Ran())

	close(sp.release)
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.EqualValues(t, 1, sp.calls.Load())
}

func TestConcurrentEntitiesConnectAtMostOnce(t *testing.T) {
	ctx := context.Background()
	// every entity resolves to the same provider record
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: recordResult(shared.ProviderSpotify, "sp-shared", "Radiohead", 80)}
	e := newEnv(t, DefaultConfig(), sp)

	const n = 8
	ids := make([]int64, n)
	for i := range n {
		ids[i] = testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"}).ID
	}

	outcomes := make([]Outcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = e.rec.IdentifyWith(ctx, shared.ProviderSpotify, ids[i])
		}()
	}
	wg.Wait()

	updated, conflicts := 0, 0
	for i := range n {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeUpdated:
			updated++
		case OutcomeConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, updated)
	assert.Equal(t, n-1, conflicts)
	assert.Len(t, e.warnings.GetWarningsByType()[shared.ConnectionConflictWarning], n-1)

	rec, err := e.store.FindRecord(ctx, shared.ProviderSpotify, "sp-shared")
	require.NoError(t, err)
	assert.True(t, rec.Connected())
}

func TestConflictWhenEntityHasAnotherRecord(t *testing.T) {
	ctx := context.Background()
	var id atomic.Value
	id.Store("sp-1")
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: func(s Subject) (*Result, error) {
		return recordResult(shared.ProviderSpotify, id.Load().(string), "Radiohead", 80)(s)
	}}
	e := newEnv(t, Config{Window: time.Hour}, sp)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)

	id.Store("sp-2")
	e.clock.Advance(2 * time.Hour)
	outcome, err = e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, outcome)

	rec, err := e.store.ConnectedRecord(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, "sp-1", rec.ProviderID, "never reassigned silently")

	other, err := e.store.FindRecord(ctx, shared.ProviderSpotify, "sp-2")
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.False(t, other.Connected())

	require.NoError(t, e.rec.Reconnect(ctx, shared.ProviderSpotify, other.ID, artist.ID))
	rec, err = e.store.ConnectedRecord(ctx, shared.ProviderSpotify, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, "sp-2", rec.ProviderID)
}

func TestNotFoundAndFailureKeepFreshnessMark(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("upstream exploded")
	lf := &fakeIdentifier{name: shared.ProviderLastFM, respond: func(Subject) (*Result, error) { return nil, nil }}
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: func(Subject) (*Result, error) { return nil, boom }}
	e := newEnv(t, DefaultConfig(), lf, sp)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Nobody"})

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderLastFM, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, outcome)

	outcome, err = e.rec.IdentifyWith(ctx, shared.ProviderSpotify, artist.ID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeFailed, outcome)

	for _, p := range []string{shared.ProviderLastFM, shared.ProviderSpotify} {
		mark, err := e.store.Freshness(ctx, artist.ID, p)
		require.NoError(t, err)
		require.NotNil(t, mark, p)
		assert.True(t, mark.LastFetchedAt.Equal(e.clock.Now()))

		outcome, err := e.rec.IdentifyWith(ctx, p, artist.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFresh, outcome)
	}

	grouped := e.warnings.GetWarningsByType()
	assert.Len(t, grouped[shared.ProviderNotFoundWarning], 1)
	assert.Len(t, grouped[shared.ProviderFailureWarning], 1)
}

func TestIdentifyRunsMusicBrainzFirst(t *testing.T) {
	ctx := context.Background()
	var seen atomic.Value
	mb := &fakeIdentifier{name: shared.ProviderMusicBrainz, respond: recordResult(shared.ProviderMusicBrainz, "mb-artist", "Radiohead", 0)}
	adb := &fakeIdentifier{
		name:  shared.ProviderAudioDB,
		kinds: []shared.Kind{shared.KindArtist, shared.KindAlbum},
		respond: func(s Subject) (*Result, error) {
			seen.Store(s.MBID)
			return recordResult(shared.ProviderAudioDB, "adb-1", "Radiohead", 0)(s)
		},
	}
	boom := errors.New("lastfm down")
	lf := &fakeIdentifier{name: shared.ProviderLastFM, respond: func(Subject) (*Result, error) { return nil, boom }}
	fp := &fakeIdentifier{name: shared.ProviderAcoustID, kinds: []shared.Kind{shared.KindTrack}}

	// registration order puts MusicBrainz last
	e := newEnv(t, DefaultConfig(), adb, lf, fp, mb)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})

	report, err := e.rec.Identify(ctx, artist.ID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, artist.ID, report.EntityID)
	assert.Len(t, report.Results, 3, "acoustid does not identify artists")
	assert.Equal(t, OutcomeUpdated, report.Outcome(shared.ProviderMusicBrainz))
	assert.Equal(t, OutcomeUpdated, report.Outcome(shared.ProviderAudioDB))
	assert.Equal(t, OutcomeFailed, report.Outcome(shared.ProviderLastFM))
	assert.Equal(t, Outcome(""), report.Outcome(shared.ProviderAcoustID))
	assert.True(t, report.Changed())
	assert.Equal(t, "mb-artist", seen.Load())
	assert.Zero(t, fp.calls.Load())
}

func TestIdentifyWithRejectsUnknownAndUnsupported(t *testing.T) {
	ctx := context.Background()
	fp := &fakeIdentifier{name: shared.ProviderAcoustID, kinds: []shared.Kind{shared.KindTrack}}
	e := newEnv(t, DefaultConfig(), fp)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})

	_, err := e.rec.IdentifyWith(ctx, "napster", artist.ID)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = e.rec.IdentifyWith(ctx, shared.ProviderAcoustID, artist.ID)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = e.rec.IdentifyWith(ctx, shared.ProviderAcoustID, 9999)
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, err = e.rec.Identify(ctx, 9999)
	assert.ErrorIs(t, err, ErrEntityNotFound)
	assert.Equal(t, []string{shared.ProviderAcoustID}, e.rec.Providers())
}

func TestTransitiveDiscovery(t *testing.T) {
	ctx := context.Background()
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: func(Subject) (*Result, error) {
		return &Result{
			Record: shared.ProviderRecord{ProviderID: "sp-track", Name: "Foo"},
			Related: []shared.ProviderRecord{
				{Provider: shared.ProviderSpotify, ProviderID: "sp-artist", Kind: shared.KindArtist, Name: "Bär"},
				{Provider: shared.ProviderSpotify, ProviderID: "sp-album", Kind: shared.KindAlbum, Name: "Foo Album"},
				{Provider: shared.ProviderSpotify, ProviderID: "sp-guest", Kind: shared.KindArtist, Name: "Guest"},
				{Provider: shared.ProviderSpotify, ProviderID: "sp-nobody", Kind: shared.KindArtist, Name: "Nobody Local"},
			},
		}, nil
	}}
	e := newEnv(t, DefaultConfig(), sp)

	linkedArtist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Bar"})
	decoy := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "BAR"})
	album := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindAlbum, Name: "Foo Album", ArtistID: linkedArtist.ID})
	guestA := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Guest"})
	guestB := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "guest"})
	track := testsupport.NewEntity(t, e.store, shared.LocalEntity{
		Kind: shared.KindTrack, Name: "Foo", ArtistID: linkedArtist.ID, AlbumID: album.ID,
	})
	before, err := e.store.ListEntities(ctx, "")
	require.NoError(t, err)

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderSpotify, track.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)

	connected := func(id int64) string {
		rec, err := e.store.ConnectedRecord(ctx, shared.ProviderSpotify, id)
		require.NoError(t, err)
		if rec == nil {
			return ""
		}
		return rec.ProviderID
	}
	assert.Equal(t, "sp-track", connected(track.ID))
	assert.Equal(t, "sp-artist", connected(linkedArtist.ID), "linked artist preferred over same-name entity")
	assert.Equal(t, "", connected(decoy.ID))
	assert.Equal(t, "sp-album", connected(album.ID))
	assert.Equal(t, "", connected(guestA.ID), "ambiguous names are skipped")
	assert.Equal(t, "", connected(guestB.ID))

	guest, err := e.store.FindRecord(ctx, shared.ProviderSpotify, "sp-guest")
	require.NoError(t, err)
	require.NotNil(t, guest)
	assert.False(t, guest.Connected())

	after, err := e.store.ListEntities(ctx, "")
	require.NoError(t, err)
	assert.Len(t, after, len(before), "discovery never creates entities")

	var reasons []string
	for _, ev := range e.drain() {
		reasons = append(reasons, ev.Reason)
	}
	assert.ElementsMatch(t, []string{notify.ReasonConnected, notify.ReasonDiscovered, notify.ReasonDiscovered}, reasons)
}

func TestDiscoveryKeepsConnectedRecordData(t *testing.T) {
	ctx := context.Background()
	mb := &fakeIdentifier{name: shared.ProviderMusicBrainz, respond: func(Subject) (*Result, error) {
		return &Result{
			Record: shared.ProviderRecord{ProviderID: "mb-track", Name: "Foo"},
			Related: []shared.ProviderRecord{
				{Provider: shared.ProviderMusicBrainz, ProviderID: "mb-artist", Kind: shared.KindArtist, Name: "Bar"},
			},
		}, nil
	}}
	e := newEnv(t, DefaultConfig(), mb)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Bar"})
	track := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindTrack, Name: "Foo", ArtistID: artist.ID})

	full, err := e.store.UpsertRecord(ctx, shared.ProviderRecord{
		Provider:   shared.ProviderMusicBrainz,
		ProviderID: "mb-artist",
		Kind:       shared.KindArtist,
		Name:       "Bar",
		Details:    shared.RecordDetails{Genres: []string{"rock", "indie"}, Type: "Group"},
	})
	require.NoError(t, err)
	require.NoError(t, e.store.ConnectRecord(ctx, full.ID, artist.ID))

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderMusicBrainz, track.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)

	got, err := e.store.FindRecord(ctx, shared.ProviderMusicBrainz, "mb-artist")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, full.ID, got.ID)
	assert.Equal(t, artist.ID, got.EntityID)
	assert.Equal(t, []string{"rock", "indie"}, got.Details.Genres)
	assert.Equal(t, "Group", got.Details.Type)

	for _, ev := range e.drain() {
		assert.NotEqual(t, artist.ID, ev.EntityID, "artist data did not change")
	}
}

func TestMissingMetadataClearsFreshnessMark(t *testing.T) {
	ctx := context.Background()
	adb := &fakeIdentifier{name: shared.ProviderAudioDB, respond: func(Subject) (*Result, error) {
		return nil, provider.MissingMetadata("musicbrainz id")
	}}
	e := newEnv(t, DefaultConfig(), adb)
	artist := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Bar"})

	outcome, err := e.rec.IdentifyWith(ctx, shared.ProviderAudioDB, artist.ID)
	assert.ErrorIs(t, err, provider.ErrFatal)
	assert.Equal(t, OutcomeFailed, outcome)

	mark, err := e.store.Freshness(ctx, artist.ID, shared.ProviderAudioDB)
	require.NoError(t, err)
	assert.Nil(t, mark)

	outcome, err = e.rec.IdentifyWith(ctx, shared.ProviderAudioDB, artist.ID)
	assert.ErrorIs(t, err, provider.ErrFatal)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, int32(2), adb.calls.Load())

	grouped := e.warnings.GetWarningsByType()
	assert.Len(t, grouped[shared.MissingMetadataWarning], 2)
}

func TestReconnectNotifiesBothEntities(t *testing.T) {
	ctx := context.Background()
	sp := &fakeIdentifier{name: shared.ProviderSpotify, respond: recordResult(shared.ProviderSpotify, "sp-1", "Radiohead", 80)}
	e := newEnv(t, DefaultConfig(), sp)
	wrong := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead"})
	right := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindArtist, Name: "Radiohead (UK)"})
	album := testsupport.NewEntity(t, e.store, shared.LocalEntity{Kind: shared.KindAlbum, Name: "OK Computer"})

	_, err := e.rec.IdentifyWith(ctx, shared.ProviderSpotify, wrong.ID)
	require.NoError(t, err)
	rec, err := e.store.ConnectedRecord(ctx, shared.ProviderSpotify, wrong.ID)
	require.NoError(t, err)
	e.drain()

	assert.Error(t, e.rec.Reconnect(ctx, shared.ProviderLastFM, rec.ID, right.ID), "provider mismatch")
	assert.Error(t, e.rec.Reconnect(ctx, shared.ProviderSpotify, rec.ID, album.ID), "kind mismatch")
	assert.Error(t, e.rec.Reconnect(ctx, shared.ProviderSpotify, "missing", right.ID))

	require.NoError(t, e.rec.Reconnect(ctx, shared.ProviderSpotify, rec.ID, right.ID))
	assert.Nil(t, mustConnected(t, e.store, wrong.ID))
	assert.Equal(t, rec.ID, mustConnected(t, e.store, right.ID).ID)

	events := e.drain()
	require.Len(t, events, 2)
	assert.Equal(t, right.ID, events[0].EntityID)
	assert.Equal(t, notify.ReasonReconnected, events[0].Reason)
	assert.Equal(t, wrong.ID, events[1].EntityID)
	assert.Equal(t, notify.ReasonDisconnected, events[1].Reason)

	// reconnecting to the current entity is a no-op
	require.NoError(t, e.rec.Reconnect(ctx, shared.ProviderSpotify, rec.ID, right.ID))
	assert.Empty(t, e.drain())
}

func mustConnected(t *testing.T, st *store.Store, entityID int64) *shared.ProviderRecord {
	t.Helper()
	rec, err := st.ConnectedRecord(context.Background(), shared.ProviderSpotify, entityID)
	require.NoError(t, err)
	return rec
}

func TestOutcomeRan(t *testing.T) {
	for _, o := range []Outcome{OutcomeNotFound, OutcomeUnchanged, OutcomeUpdated, OutcomeConflict, OutcomeFailed} {
		assert.True(t, o.Ran(), o)
	}
	assert.True(t, OutcomeUpdated.Changed())
	assert.False(t, OutcomeUnchanged.Changed())
}
