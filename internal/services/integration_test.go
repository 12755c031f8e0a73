package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music-enricher/internal/core/reconcile"
	"music-enricher/internal/notify"
	"music-enricher/internal/shared"
	"music-enricher/internal/testsupport"
)

const (
	mbURL      = "https://mb.example.test/ws/2/"
	audioDBURL = "https://adb.example.test/api/v1/json/"
)

func TestIdentifyArtistEndToEnd(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, mbURL+"artist",
		httpmock.NewStringResponder(200, `{"count":1,"artists":[{"id":"mb-bjork","name":"Björk","score":100}]}`))
	transport.RegisterResponder(http.MethodGet, mbURL+"artist/mb-bjork",
		httpmock.NewStringResponder(200, `{"id":"mb-bjork","name":"Björk","type":"Person","country":"IS","genres":[{"name":"art pop"}]}`))
	transport.RegisterResponder(http.MethodGet, audioDBURL+"2/artist-mb.php",
		httpmock.NewStringResponder(200, `{"artists":[{"idArtist":"111","strArtist":"Björk","strMusicBrainzID":"mb-bjork","strGenre":"Electronic"}]}`))

	cfg := testConfig(t)
	fast := func(interval *time.Duration, retry *shared.RetryConfig) {
		*interval = time.Millisecond
		*retry = shared.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	}
	cfg.Providers.MusicBrainz.Client.BaseURL = mbURL
	fast(&cfg.Providers.MusicBrainz.Client.Pipeline.Interval, &cfg.Providers.MusicBrainz.Client.Pipeline.Retry)
	cfg.Providers.AudioDB.Client.BaseURL = audioDBURL
	fast(&cfg.Providers.AudioDB.Client.Pipeline.Interval, &cfg.Providers.AudioDB.Client.Pipeline.Retry)

	ctx := context.Background()
	container, err := NewServiceContainer(ctx, cfg, testsupport.Logger(t), Options{
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)
	defer container.Close()

	events, unsubscribe := container.Events.Subscribe(8)
	defer unsubscribe()

	artist, err := container.Store.CreateEntity(ctx, shared.LocalEntity{Kind: shared.KindArtist, Name: "Björk"})
	require.NoError(t, err)

	report, err := container.Reconciler.Identify(ctx, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeUpdated, report.Outcome(shared.ProviderMusicBrainz))
	assert.Equal(t, reconcile.OutcomeUpdated, report.Outcome(shared.ProviderAudioDB))

	records, err := container.Store.RecordsForEntity(ctx, artist.ID)
	require.NoError(t, err)
	byProvider := map[string]shared.ProviderRecord{}
	for _, r := range records {
		byProvider[r.Provider] = r
	}
	require.Len(t, byProvider, 2)
	assert.Equal(t, "mb-bjork", byProvider[shared.ProviderMusicBrainz].ProviderID)
	assert.Equal(t, "111", byProvider[shared.ProviderAudioDB].ProviderID)

	for range 2 {
		select {
		case ev := <-events:
			inv, ok := ev.Payload.(notify.Invalidation)
			require.True(t, ok)
			assert.Equal(t, artist.ID, inv.EntityID)
			assert.Equal(t, notify.ReasonConnected, inv.Reason)
		case <-time.After(time.Second):
			t.Fatal("missing invalidation event")
		}
	}

	report, err = container.Reconciler.Identify(ctx, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeFresh, report.Outcome(shared.ProviderMusicBrainz))
	assert.Equal(t, reconcile.OutcomeFresh, report.Outcome(shared.ProviderAudioDB))

	assert.Equal(t, 1.0, testutil.ToFloat64(container.Metrics.Outcomes.WithLabelValues(shared.ProviderMusicBrainz, "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(container.Metrics.Outcomes.WithLabelValues(shared.ProviderMusicBrainz, "fresh")))
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET "+mbURL+"artist/mb-bjork"])
}

func TestForcedIdentificationRefetches(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, mbURL+"artist",
		httpmock.NewStringResponder(200, `{"count":1,"artists":[{"id":"mb-sigur","name":"Sigur Rós","score":100}]}`))
	transport.RegisterResponder(http.MethodGet, mbURL+"artist/mb-sigur",
		httpmock.NewStringResponder(200, `{"id":"mb-sigur","name":"Sigur Rós","type":"Group"}`))

	cfg := testConfig(t)
	cfg.Providers.AudioDB.Enabled = false
	cfg.Providers.MusicBrainz.Client.BaseURL = mbURL
	cfg.Providers.MusicBrainz.Client.Pipeline.Interval = time.Millisecond

	ctx := context.Background()
	container, err := NewServiceContainer(ctx, cfg, testsupport.Logger(t), Options{
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)
	defer container.Close()

	artist, err := container.Store.CreateEntity(ctx, shared.LocalEntity{Kind: shared.KindArtist, Name: "Sigur Rós"})
	require.NoError(t, err)

	outcome, err := container.Reconciler.IdentifyWith(ctx, shared.ProviderMusicBrainz, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeUpdated, outcome)

	require.NoError(t, container.Store.ClearFreshness(ctx, artist.ID, shared.ProviderMusicBrainz))
	outcome, err = container.Reconciler.IdentifyWith(ctx, shared.ProviderMusicBrainz, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeUnchanged, outcome)
}
