package commands

import (
	"github.com/spf13/cobra"

	"music-enricher/internal/shared"
)

func newReconnectCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconnect <provider> <record-id> <entity-id>",
		Short: "Move a provider record to another entity.",
		Long: `Reconnect attaches a provider record to a different local entity, for
correcting a wrong identification. The record's previous entity is freed and
both entities are announced as invalidated.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, recordID := args[0], args[1]
			id, err := shared.ParseEntityID(args[2])
			if err != nil {
				return err
			}
			c, err := o.services(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Reconciler.Reconnect(cmd.Context(), provider, recordID, id); err != nil {
				return err
			}
			shared.ColorSuccess.Fprintf(cmd.OutOrStdout(), "Connected %s record %s to entity #%d\n", provider, recordID, id)
			return nil
		},
	}
}
