// Package commands implements the music-enricher command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"music-enricher/internal/config"
	"music-enricher/internal/logging"
	"music-enricher/internal/services"
	"music-enricher/internal/shared"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
	noColor    bool

	// serviceOptions is set by tests to stub out network access.
	serviceOptions services.Options
}

// NewRootCommand creates the music-enricher command tree.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, &rootOptions{})
}

func newRootCommand(version string, o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "music-enricher",
		Version: version,
		Short:   "Identify a local music library against online catalogs.",
		Long: `music-enricher connects the artists, albums and tracks of a local library to
their counterparts at MusicBrainz, AcoustID, Last.fm, Spotify and TheAudioDB.

Entities are identified by acoustic fingerprint or by name, records are kept
fresh for a configurable window, and every change is announced on the event
bus and, optionally, an MQTT broker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	flags.String("db", "", "Library database path")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")
	flags.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&o.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newIdentifyCommand(o),
		newIdentifyFileCommand(o),
		newShowCommand(o),
		newEntitiesCommand(o),
		newImportCommand(o),
		newReconnectCommand(o),
		newServeCommand(o),
		newConfigCommand(o),
		newVersionCommand(version),
	)
	return cmd
}

// loadConfig reads the config with the persistent flags applied on top.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg, err := config.Load(o.configPath,
		config.FlagBinding{Key: "database.path", Flag: flags.Lookup("db")},
		config.FlagBinding{Key: "logging.level", Flag: flags.Lookup("log-level")},
		config.FlagBinding{Key: "logging.format", Flag: flags.Lookup("log-format")},
	)
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
	if o.noColor {
		cfg.Logging.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// services loads the config and builds the service container. The caller
// must Close it.
func (o *rootOptions) services(cmd *cobra.Command) (*services.ServiceContainer, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	shared.InitializeColors(cfg.Logging.NoColor)

	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cmd.ErrOrStderr(),
		NoColor: cfg.Logging.NoColor,
	})
	if err != nil {
		return nil, err
	}

	return services.NewServiceContainer(cmd.Context(), cfg, logger, o.serviceOptions)
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "music-enricher %s\n", version)
		},
	}
}
