package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"music-enricher/internal/core/tags"
	"music-enricher/internal/shared"
)

func newEntitiesCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List and add local library entities.",
	}
	cmd.AddCommand(newEntitiesListCommand(o), newEntitiesAddCommand(o))
	return cmd
}

func newEntitiesListCommand(o *rootOptions) *cobra.Command {
	var (
		kind   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities, optionally of one kind.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var k shared.Kind
			if kind != "" {
				parsed, err := shared.ParseKind(kind)
				if err != nil {
					return err
				}
				k = parsed
			}
			c, err := o.services(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			entities, err := c.Store.ListEntities(cmd.Context(), k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if entities == nil {
					entities = []shared.LocalEntity{}
				}
				return writeJSON(out, entities)
			}
			if len(entities) == 0 {
				shared.ColorMuted.Fprintln(out, "No entities.")
				return nil
			}
			rows := make([][]string, 0, len(entities))
			for _, e := range entities {
				rows = append(rows, []string{
					strconv.FormatInt(e.ID, 10),
					string(e.Kind),
					e.Name,
					idString(e.ArtistID),
					idString(e.AlbumID),
					formatDuration(e.DurationSeconds),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Kind", "Name", "Artist", "Album", "Duration"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only entities of this kind (artist, album, track)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newEntitiesAddCommand(o *rootOptions) *cobra.Command {
	var (
		artistID int64
		albumID  int64
		file     string
		duration float64
	)
	cmd := &cobra.Command{
		Use:   "add <kind> [name]",
		Short: "Add an entity to the library.",
		Long: `Add creates a local artist, album or track. For a track given with --file
and no name, the name and duration are read from the file's tags.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := shared.ParseKind(args[0])
			if err != nil {
				return err
			}
			e := shared.LocalEntity{
				Kind:            k,
				ArtistID:        artistID,
				AlbumID:         albumID,
				FilePath:        file,
				DurationSeconds: duration,
			}
			if len(args) == 2 {
				e.Name = args[1]
			}
			if file != "" {
				if !shared.FileExists(file) {
					return fmt.Errorf("file not found: %s", file)
				}
				if e.Name == "" {
					t, err := tags.Read(file)
					if err != nil {
						return fmt.Errorf("read tags: %w", err)
					}
					e.Name = t.Title
					if e.DurationSeconds == 0 {
						e.DurationSeconds = t.DurationSeconds
					}
				}
			}
			if e.Name == "" {
				return errors.New("a name is required")
			}

			c, err := o.services(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			created, err := c.Store.CreateEntity(cmd.Context(), e)
			if err != nil {
				return err
			}
			shared.ColorSuccess.Fprintf(cmd.OutOrStdout(), "Created %s #%d %s\n", created.Kind, created.ID, created.Name)
			return nil
		},
	}
	cmd.Flags().Int64Var(&artistID, "artist-id", 0, "Parent artist entity")
	cmd.Flags().Int64Var(&albumID, "album-id", 0, "Parent album entity")
	cmd.Flags().StringVar(&file, "file", "", "Audio file of a track")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Duration in seconds")
	return cmd
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	s := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
