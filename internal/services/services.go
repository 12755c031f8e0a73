package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"music-enricher/internal/api/acoustid"
	"music-enricher/internal/api/audiodb"
	"music-enricher/internal/api/lastfm"
	"music-enricher/internal/api/musicbrainz"
	"music-enricher/internal/api/navidrome"
	"music-enricher/internal/api/provider"
	"music-enricher/internal/api/spotify"
	"music-enricher/internal/config"
	"music-enricher/internal/core/fingerprint"
	"music-enricher/internal/core/library"
	"music-enricher/internal/core/reconcile"
	"music-enricher/internal/httpapi"
	"music-enricher/internal/interfaces"
	"music-enricher/internal/metrics"
	"music-enricher/internal/notify"
	"music-enricher/internal/shared"
	"music-enricher/internal/store"
)

// ErrNoResolver is returned when fingerprinting is requested without AcoustID.
var ErrNoResolver = errors.New("fingerprint identification needs the acoustid provider enabled")

// Options overrides collaborators, mostly for tests.
type Options struct {
	HTTPClient *http.Client
	// Fingerprinter replaces the fpcalc runner.
	Fingerprinter fingerprint.Fingerprinter
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Config     *config.Config
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Warnings   *shared.WarningCollector
	Events     *notify.Bus
	Store      interfaces.LibraryStore
	Resolver   interfaces.FileResolver
	Reconciler interfaces.ReconcileService

	db         *store.Store
	httpClient *http.Client
	mqtt       *notify.MQTTPublisher
	closers    []func()
}

// NewServiceContainer opens the store and builds every enabled provider
// client, the fingerprint resolver and the reconciler.
func NewServiceContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &ServiceContainer{
		Config:     cfg,
		Logger:     logger,
		Registry:   registry,
		Metrics:    metrics.New(registry),
		Warnings:   shared.NewWarningCollector(true),
		httpClient: httpClient,
	}
	c.Events = notify.NewBus(logger, c.Metrics)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	c.db = db
	c.Store = db

	identifiers, err := c.buildIdentifiers(opts)
	if err != nil {
		c.Close()
		return nil, err
	}

	notifiers := notify.Multi{c.Events}
	if cfg.MQTT.Enabled {
		pub := notify.NewMQTTPublisher(cfg.MQTT, logger)
		if err := pub.Connect(ctx); err != nil {
			logger.Warn("mqtt disabled, broker unreachable", slog.String("broker", cfg.MQTT.Broker), slog.Any("error", err))
		} else {
			c.mqtt = pub
			notifiers = append(notifiers, pub)
		}
	}

	c.Reconciler = reconcile.New(db, identifiers, cfg.Freshness, reconcile.Options{
		Logger:   logger,
		Metrics:  c.Metrics,
		Notifier: notifiers,
		Warnings: c.Warnings,
	})
	logger.Debug("services ready",
		slog.String("database", db.Path()),
		slog.Any("providers", c.Reconciler.Providers()))
	return c, nil
}

// buildIdentifiers creates the enabled clients in run order. The MusicBrainz
// client is also built when only AcoustID is enabled, for cross-validation.
func (c *ServiceContainer) buildIdentifiers(opts Options) ([]reconcile.Identifier, error) {
	p := c.Config.Providers
	popts := provider.Options{HTTPClient: c.httpClient, Logger: c.Logger, Metrics: c.Metrics}
	var identifiers []reconcile.Identifier

	var mb *musicbrainz.Client
	if p.MusicBrainz.Enabled || p.AcoustID.Enabled {
		client, err := musicbrainz.NewClientWithConfig(p.MusicBrainz.Client, popts)
		if err != nil {
			return nil, fmt.Errorf("musicbrainz: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		mb = client
	}
	if p.MusicBrainz.Enabled {
		identifiers = append(identifiers, reconcile.NewMusicBrainz(mb))
	}

	if p.AcoustID.Enabled {
		client, err := acoustid.NewClientWithConfig(p.AcoustID.Client, popts)
		if err != nil {
			return nil, fmt.Errorf("acoustid: %w", err)
		}
		c.closers = append(c.closers, client.Close)

		fp := opts.Fingerprinter
		if fp == nil {
			fp = fingerprint.Fpcalc{Path: c.Config.Fingerprint.FpcalcPath, Timeout: c.Config.Fingerprint.Timeout}
		}
		resolver := fingerprint.NewResolver(fp, client, mb, c.Config.Fingerprint.Gates, c.Logger)
		c.Resolver = resolver
		identifiers = append(identifiers, reconcile.NewAcoustID(resolver))
	}

	if p.LastFM.Enabled {
		client, err := lastfm.NewClientWithConfig(p.LastFM.Client, popts)
		if err != nil {
			return nil, fmt.Errorf("lastfm: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		identifiers = append(identifiers, reconcile.NewLastFM(client))
	}

	if p.Spotify.Enabled {
		client, err := spotify.NewClientWithConfig(p.Spotify.Client, popts)
		if err != nil {
			return nil, fmt.Errorf("spotify: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		identifiers = append(identifiers, reconcile.NewSpotify(client))
	}

	if p.AudioDB.Enabled {
		client, err := audiodb.NewClientWithConfig(p.AudioDB.Client, popts)
		if err != nil {
			return nil, fmt.Errorf("audiodb: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		identifiers = append(identifiers, reconcile.NewAudioDB(client))
	}
	return identifiers, nil
}

// FileResolver returns the fingerprint resolver, or ErrNoResolver.
func (c *ServiceContainer) FileResolver() (interfaces.FileResolver, error) {
	if c.Resolver == nil {
		return nil, ErrNoResolver
	}
	return c.Resolver, nil
}

// Navidrome returns an authenticated media server client.
func (c *ServiceContainer) Navidrome() (interfaces.LibrarySource, error) {
	client := navidrome.NewClient(c.Config.Navidrome, c.httpClient, c.Logger)
	if err := client.Authenticate(); err != nil {
		return nil, err
	}
	return client, nil
}

// Importer returns a library importer writing to the store.
func (c *ServiceContainer) Importer() *library.Importer {
	return library.NewImporter(c.db, c.Logger, c.Warnings)
}

// HTTPServer returns the API server over the container's services.
func (c *ServiceContainer) HTTPServer() *httpapi.Server {
	return httpapi.New(c.db, c.Reconciler, httpapi.Options{
		Logger:   c.Logger,
		Gatherer: c.Registry,
		Events:   c.Events,
	})
}

// Close stops the provider queues, disconnects from the broker and closes
// the store.
func (c *ServiceContainer) Close() error {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	if c.mqtt != nil {
		c.mqtt.Close()
		c.mqtt = nil
	}
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
