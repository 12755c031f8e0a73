package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"music-enricher/internal/core/library"
	"music-enricher/internal/shared"
)

func newImportCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a library from a media server.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "navidrome",
		Short: "Import artists, albums and tracks from Navidrome.",
		Long: `Import walks the configured Navidrome (Subsonic) server and upserts every
artist, album and track into the local library. Running it again refreshes the
imported entities instead of duplicating them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.services(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			src, err := c.Navidrome()
			if err != nil {
				return err
			}

			bar := newProgress(cmd.OutOrStdout(), 0, "Importing artists")
			importer := c.Importer()
			importer.Progress = func(s library.Stats) { bar.SetCurrent(s.Artists) }
			stats, err := importer.Import(cmd.Context(), src)
			bar.Finish()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Artists", "Albums", "Tracks", "Created", "Updated", "Skipped"},
				[][]string{{
					fmt.Sprint(stats.Artists), fmt.Sprint(stats.Albums), fmt.Sprint(stats.Tracks),
					fmt.Sprint(stats.Created), fmt.Sprint(stats.Updated), fmt.Sprint(stats.Skipped),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			c.Warnings.PrintSummary(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("import interrupted: %w", err)
			}
			shared.ColorSuccess.Fprintln(out, "Import complete.")
			return nil
		},
	})
	return cmd
}
