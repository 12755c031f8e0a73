package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"music-enricher/internal/core/fingerprint"
	"music-enricher/internal/core/tags"
	"music-enricher/internal/shared"
)

type identifyFileOptions struct {
	artist string
	title  string
	album  string
	json   bool
}

func newIdentifyFileCommand(o *rootOptions) *cobra.Command {
	opts := &identifyFileOptions{}
	cmd := &cobra.Command{
		Use:   "identify-file <path>",
		Short: "Identify an audio file by its acoustic fingerprint.",
		Long: `Identify-file fingerprints a FLAC or MP3 file with fpcalc, looks it up at
AcoustID and cross-validates the best candidate against MusicBrainz. The file's
own tags rank the candidates; --artist, --title and --album override them.
Nothing is written to the library.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !shared.FileExists(path) {
				return fmt.Errorf("file not found: %s", path)
			}

			t, err := tags.Read(path)
			if err != nil {
				shared.ColorWarning.Fprintf(cmd.ErrOrStderr(), "Could not read tags, ranking without them: %v\n", err)
				t = &tags.Tags{}
			}
			local := localMetadata(t, opts)

			c, err := o.services(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			resolver, err := c.FileResolver()
			if err != nil {
				return err
			}
			match, err := resolver.Identify(cmd.Context(), path, local)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, match)
			}
			if match == nil {
				shared.ColorWarning.Fprintln(out, "No confident match.")
				return nil
			}
			printMatch(cmd, match, t)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.artist, "artist", "", "Artist to rank candidates against")
	cmd.Flags().StringVar(&opts.title, "title", "", "Title to rank candidates against")
	cmd.Flags().StringVar(&opts.album, "album", "", "Album to rank candidates against")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the match as JSON")
	return cmd
}

func localMetadata(t *tags.Tags, opts *identifyFileOptions) fingerprint.LocalMetadata {
	local := fingerprint.LocalMetadata{
		Title:           t.Title,
		Artist:          t.Artist,
		Artists:         t.Artists,
		Album:           t.Album,
		DurationSeconds: t.DurationSeconds,
	}
	if opts.title != "" {
		local.Title = opts.title
	}
	if opts.artist != "" {
		local.Artist = opts.artist
		local.Artists = []string{opts.artist}
	}
	if opts.album != "" {
		local.Album = opts.album
	}
	return local
}

func printMatch(cmd *cobra.Command, m *fingerprint.Match, t *tags.Tags) {
	artists := make([]string, 0, len(m.Artists))
	for _, a := range m.Artists {
		artists = append(artists, a.Name)
	}
	rows := [][]string{
		{"Title", m.Title},
		{"Artists", strings.Join(artists, ", ")},
		{"Recording", m.RecordingID},
		{"AcoustID", m.AcoustID},
		{"Score", fmt.Sprintf("%.2f", m.Score)},
	}
	if m.ReleaseGroup != nil {
		rg := m.ReleaseGroup
		rows = append(rows,
			[]string{"Release group", fmt.Sprintf("%s (%s)", rg.Title, rg.ID)},
			[]string{"Type", joinNonEmpty(append([]string{rg.Type}, rg.SecondaryTypes...)...)},
		)
	}
	if m.Position > 0 {
		rows = append(rows, []string{"Position", fmt.Sprintf("%d/%d", m.Position, m.TrackCount)})
	}
	if len(m.Genres) > 0 {
		rows = append(rows, []string{"Genres", strings.Join(m.Genres, ", ")})
	}
	if t.Cover != nil {
		rows = append(rows, []string{"Embedded cover", fmt.Sprintf("%s, %d bytes", t.Cover.MIME, t.Cover.Size)})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
}
