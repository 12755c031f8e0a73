// Package config loads and saves the application settings. Values come from
// the defaults, then the config file, then MUSIC_ENRICHER_* environment
// variables, then explicitly set command line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"music-enricher/internal/api/acoustid"
	"music-enricher/internal/api/audiodb"
	"music-enricher/internal/api/lastfm"
	"music-enricher/internal/api/musicbrainz"
	"music-enricher/internal/api/navidrome"
	"music-enricher/internal/api/provider"
	"music-enricher/internal/api/spotify"
	"music-enricher/internal/core/fingerprint"
	"music-enricher/internal/core/reconcile"
	"music-enricher/internal/logging"
	"music-enricher/internal/notify"
	"music-enricher/internal/ratelimit"
	"music-enricher/internal/shared"
)

const (
	AppName   = "music-enricher"
	EnvPrefix = "MUSIC_ENRICHER"
	FileName  = "config.yaml"
)

const redacted = "********"

// Config is the complete application configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database" json:"database"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging" json:"logging"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http" json:"http"`
	Freshness   reconcile.Config  `mapstructure:"freshness" yaml:"freshness" json:"freshness"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" yaml:"fingerprint" json:"fingerprint"`
	Providers   ProvidersConfig   `mapstructure:"providers" yaml:"providers" json:"providers"`
	Navidrome   navidrome.Config  `mapstructure:"navidrome" yaml:"navidrome" json:"navidrome"`
	MQTT        notify.MQTTConfig `mapstructure:"mqtt" yaml:"mqtt" json:"mqtt"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level" json:"level"`
	Format  string `mapstructure:"format" yaml:"format" json:"format"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color" json:"no_color"`
}

// HTTPConfig applies to the shared HTTP client used by every provider.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type FingerprintConfig struct {
	FpcalcPath string            `mapstructure:"fpcalc_path" yaml:"fpcalc_path" json:"fpcalc_path"`
	Timeout    time.Duration     `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Gates      fingerprint.Gates `mapstructure:",squash" yaml:",inline" json:"gates"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// Provider wraps a client configuration with an on/off switch.
type Provider[C any] struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Client  C    `mapstructure:",squash" yaml:",inline" json:"client"`
}

type ProvidersConfig struct {
	MusicBrainz Provider[musicbrainz.Config] `mapstructure:"musicbrainz" yaml:"musicbrainz" json:"musicbrainz"`
	AcoustID    Provider[acoustid.Config]    `mapstructure:"acoustid" yaml:"acoustid" json:"acoustid"`
	LastFM      Provider[lastfm.Config]      `mapstructure:"lastfm" yaml:"lastfm" json:"lastfm"`
	Spotify     Provider[spotify.Config]     `mapstructure:"spotify" yaml:"spotify" json:"spotify"`
	AudioDB     Provider[audiodb.Config]     `mapstructure:"audiodb" yaml:"audiodb" json:"audiodb"`
}

// Enabled returns the names of the enabled providers.
func (p ProvidersConfig) Enabled() []string {
	var names []string
	for _, e := range []struct {
		name string
		on   bool
	}{
		{shared.ProviderMusicBrainz, p.MusicBrainz.Enabled},
		{shared.ProviderAcoustID, p.AcoustID.Enabled},
		{shared.ProviderLastFM, p.LastFM.Enabled},
		{shared.ProviderSpotify, p.Spotify.Enabled},
		{shared.ProviderAudioDB, p.AudioDB.Enabled},
	} {
		if e.on {
			names = append(names, e.name)
		}
	}
	return names
}

// envKeys are bound explicitly so that keys absent from the config file can
// still be set from the environment.
var envKeys = []string{
	"database.path",
	"logging.level",
	"logging.format",
	"logging.no_color",
	"http.timeout",
	"freshness.window",
	"fingerprint.fpcalc_path",
	"fingerprint.timeout",
	"fingerprint.min_confidence",
	"providers.musicbrainz.enabled",
	"providers.musicbrainz.base_url",
	"providers.musicbrainz.user_agent",
	"providers.acoustid.enabled",
	"providers.acoustid.api_key",
	"providers.lastfm.enabled",
	"providers.lastfm.api_key",
	"providers.spotify.enabled",
	"providers.spotify.client_id",
	"providers.spotify.client_secret",
	"providers.spotify.market",
	"providers.audiodb.enabled",
	"providers.audiodb.api_key",
	"navidrome.url",
	"navidrome.username",
	"navidrome.password",
	"mqtt.enabled",
	"mqtt.broker",
	"mqtt.username",
	"mqtt.password",
	"mqtt.topic_prefix",
	"server.addr",
}

// Dir returns the per-user configuration directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = "."
	}
	return filepath.Join(base, AppName)
}

// DefaultPath returns the config file location used when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), FileName)
}

// Default returns a configuration that works without any file. Providers that
// need credentials start disabled.
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Path: filepath.Join(Dir(), "library.db")},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
		HTTP:      HTTPConfig{Timeout: 30 * time.Second},
		Freshness: reconcile.DefaultConfig(),
		Fingerprint: FingerprintConfig{
			FpcalcPath: "fpcalc",
			Timeout:    30 * time.Second,
			Gates:      fingerprint.DefaultGates(),
		},
		Providers: ProvidersConfig{
			MusicBrainz: Provider[musicbrainz.Config]{Enabled: true, Client: musicbrainz.DefaultConfig()},
			AcoustID:    Provider[acoustid.Config]{Client: acoustid.DefaultConfig()},
			LastFM:      Provider[lastfm.Config]{Client: lastfm.DefaultConfig()},
			Spotify:     Provider[spotify.Config]{Client: spotify.DefaultConfig()},
			AudioDB:     Provider[audiodb.Config]{Enabled: true, Client: audiodb.DefaultConfig()},
		},
		MQTT:   notify.MQTTConfig{TopicPrefix: AppName, QoS: 1},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

// FlagBinding maps a config key onto a command line flag. The flag only
// overrides the config when it was set explicitly.
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// Load reads path (DefaultPath when empty) over the defaults. A missing file
// is not an error. The format follows the file extension.
func Load(path string, flags ...FlagBinding) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	for _, b := range flags {
		if b.Flag == nil || !b.Flag.Changed {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", b.Flag.Name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// Unmarshal merges slices element-wise, so configured bands replace the
	// defaults rather than overlaying them.
	if v.IsSet("fingerprint.duration_bands") {
		cfg.Fingerprint.Gates.DurationBands = nil
		if err := v.UnmarshalKey("fingerprint.duration_bands", &cfg.Fingerprint.Gates.DurationBands); err != nil {
			return nil, fmt.Errorf("failed to unmarshal duration bands: %w", err)
		}
	}
	cfg.nameProviders()
	return cfg, nil
}

// nameProviders restores the pipeline names, which are never read from a file.
func (c *Config) nameProviders() {
	c.Providers.MusicBrainz.Client.Pipeline.Name = shared.ProviderMusicBrainz
	c.Providers.AcoustID.Client.Pipeline.Name = shared.ProviderAcoustID
	c.Providers.LastFM.Client.Pipeline.Name = shared.ProviderLastFM
	c.Providers.Spotify.Client.Pipeline.Name = shared.ProviderSpotify
	c.Providers.AudioDB.Client.Pipeline.Name = shared.ProviderAudioDB
}

// Save writes cfg as YAML, replacing path atomically.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close config file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, errors.New("http.timeout must not be negative"))
	}
	if c.Freshness.Window < 0 {
		errs = append(errs, errors.New("freshness.window must not be negative"))
	}
	for name, window := range c.Freshness.Providers {
		if window < 0 {
			errs = append(errs, fmt.Errorf("freshness.providers.%s must not be negative", name))
		}
	}
	if err := c.Fingerprint.Gates.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fingerprint: %w", err))
	}

	p := c.Providers
	errs = append(errs, validatePipeline(shared.ProviderMusicBrainz, p.MusicBrainz.Enabled, p.MusicBrainz.Client.Pipeline))
	errs = append(errs, validatePipeline(shared.ProviderAcoustID, p.AcoustID.Enabled, p.AcoustID.Client.Pipeline))
	errs = append(errs, validatePipeline(shared.ProviderLastFM, p.LastFM.Enabled, p.LastFM.Client.Pipeline))
	errs = append(errs, validatePipeline(shared.ProviderSpotify, p.Spotify.Enabled, p.Spotify.Client.Pipeline))
	errs = append(errs, validatePipeline(shared.ProviderAudioDB, p.AudioDB.Enabled, p.AudioDB.Client.Pipeline))
	if p.AcoustID.Enabled && p.AcoustID.Client.APIKey == "" {
		errs = append(errs, errors.New("providers.acoustid.api_key is required when enabled"))
	}
	if p.LastFM.Enabled && p.LastFM.Client.APIKey == "" {
		errs = append(errs, errors.New("providers.lastfm.api_key is required when enabled"))
	}
	if p.Spotify.Enabled && (p.Spotify.Client.ClientID == "" || p.Spotify.Client.ClientSecret == "") {
		errs = append(errs, errors.New("providers.spotify.client_id and client_secret are required when enabled"))
	}
	if p.AudioDB.Enabled && p.AudioDB.Client.APIKey == "" {
		errs = append(errs, errors.New("providers.audiodb.api_key is required when enabled"))
	}

	if err := c.MQTT.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	return errors.Join(errs...)
}

func validatePipeline(name string, enabled bool, cfg provider.Config) error {
	if !enabled {
		return nil
	}
	var errs []error
	if _, err := ratelimit.ParseMode(cfg.Mode); err != nil {
		errs = append(errs, fmt.Errorf("providers.%s.mode: %w", name, err))
	}
	if cfg.Interval < 0 || cfg.Cooldown < 0 || cfg.CacheWindow < 0 || cfg.Timeout < 0 {
		errs = append(errs, fmt.Errorf("providers.%s: durations must not be negative", name))
	}
	if cfg.CacheSize < 0 || cfg.MaxPending < 0 {
		errs = append(errs, fmt.Errorf("providers.%s: sizes must not be negative", name))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Providers.AcoustID.Client.APIKey)
	mask(&out.Providers.LastFM.Client.APIKey)
	mask(&out.Providers.Spotify.Client.ClientSecret)
	mask(&out.Navidrome.Password)
	mask(&out.MQTT.Password)
	return &out
}
