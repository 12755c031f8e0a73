package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"music-enricher/internal/shared"
)

func newShowCommand(o *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show an entity and its provider records.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := shared.ParseEntityID(args[0])
			if err != nil {
				return err
			}
			c, err := o.services(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			entity, err := c.Store.GetEntity(ctx, id)
			if err != nil {
				return err
			}
			if entity == nil {
				return fmt.Errorf("entity %d not found", id)
			}
			records, err := c.Store.RecordsForEntity(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if records == nil {
					records = []shared.ProviderRecord{}
				}
				return writeJSON(out, struct {
					Entity  *shared.LocalEntity     `json:"entity"`
					Records []shared.ProviderRecord `json:"records"`
				}{entity, records})
			}

			shared.ColorHeading.Fprintf(out, "#%d %s (%s)\n", entity.ID, entity.Name, entity.Kind)
			if entity.FilePath != "" {
				fmt.Fprintf(out, "File: %s\n", entity.FilePath)
			}
			if len(records) == 0 {
				shared.ColorMuted.Fprintln(out, "No provider records.")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.Provider,
					shared.TruncateString(r.ProviderID, 40),
					r.Name,
					formatStats(r.Stats),
					r.FetchedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Provider", "Provider ID", "Name", "Stats", "Fetched"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func formatStats(s shared.RecordStats) string {
	var parts []string
	if s.Listeners > 0 {
		parts = append(parts, fmt.Sprintf("%d listeners", s.Listeners))
	}
	if s.Playcount > 0 {
		parts = append(parts, fmt.Sprintf("%d plays", s.Playcount))
	}
	if s.Popularity > 0 {
		parts = append(parts, fmt.Sprintf("popularity %d", s.Popularity))
	}
	if s.Followers > 0 {
		parts = append(parts, fmt.Sprintf("%d followers", s.Followers))
	}
	if s.Position > 0 {
		parts = append(parts, fmt.Sprintf("track %d/%d", s.Position, s.TrackCount))
	}
	return joinNonEmpty(parts...)
}
