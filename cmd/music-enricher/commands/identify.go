package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"music-enricher/internal/core/reconcile"
	"music-enricher/internal/interfaces"
	"music-enricher/internal/shared"
)

type identifyOptions struct {
	provider    string
	all         bool
	kind        string
	concurrency int
	force       bool
	json        bool
}

func newIdentifyCommand(o *rootOptions) *cobra.Command {
	opts := &identifyOptions{}
	cmd := &cobra.Command{
		Use:   "identify [entity-id...]",
		Short: "Identify local entities with the enabled providers.",
		Long: `Identify runs every enabled provider that supports each entity's kind.
MusicBrainz runs first so the others can use its ids. Entities fetched within
the freshness window are skipped unless --force is given.`,
		Args: func(_ *cobra.Command, args []string) error {
			if !opts.all && len(args) == 0 {
				return errors.New("give one or more entity ids, or --all")
			}
			if opts.all && len(args) > 0 {
				return errors.New("--all cannot be combined with entity ids")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentify(cmd, o, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "Only run this provider")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Identify every entity in the library")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "With --all, only entities of this kind (artist, album, track)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 4, "Entities identified in parallel")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Ignore the freshness window")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print reports as JSON")
	return cmd
}

// entityResult is the outcome of identifying one entity.
type entityResult struct {
	Report reconcile.Report `json:"report"`
	Name   string           `json:"name"`
	Error  string           `json:"error,omitempty"`
}

func runIdentify(cmd *cobra.Command, o *rootOptions, opts *identifyOptions, args []string) error {
	c, err := o.services(cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx := cmd.Context()

	providers := c.Reconciler.Providers()
	if opts.provider != "" {
		if !slices.Contains(providers, opts.provider) {
			return fmt.Errorf("provider %q is not enabled (enabled: %s)", opts.provider, strings.Join(providers, ", "))
		}
		providers = []string{opts.provider}
	}

	entities, err := selectEntities(ctx, c.Store, args, opts)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		shared.ColorWarning.Fprintln(cmd.ErrOrStderr(), "No entities to identify.")
		return nil
	}

	if opts.force {
		for _, e := range entities {
			for _, p := range providers {
				if err := c.Store.ClearFreshness(ctx, e.ID, p); err != nil {
					return err
				}
			}
		}
	}

	results := identifyAll(ctx, c.Reconciler, entities, opts, newProgress(cmd.OutOrStdout(), len(entities), "Identifying"))

	out := cmd.OutOrStdout()
	if opts.json {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		printIdentifyResults(cmd, results)
	}
	c.Warnings.PrintSummary(cmd.ErrOrStderr())

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entities could not be identified", failed, len(results))
	}
	return nil
}

// selectEntities resolves the ids on the command line, or every entity with --all.
func selectEntities(ctx context.Context, st interfaces.LibraryStore, args []string, opts *identifyOptions) ([]shared.LocalEntity, error) {
	if opts.all {
		var kind shared.Kind
		if opts.kind != "" {
			k, err := shared.ParseKind(opts.kind)
			if err != nil {
				return nil, err
			}
			kind = k
		}
		return st.ListEntities(ctx, kind)
	}

	entities := make([]shared.LocalEntity, 0, len(args))
	for _, arg := range args {
		id, err := shared.ParseEntityID(arg)
		if err != nil {
			return nil, err
		}
		e, err := st.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, fmt.Errorf("entity %d not found", id)
		}
		entities = append(entities, *e)
	}
	return entities, nil
}

// identifyAll runs at most opts.concurrency identifications at a time. One
// entity's failure does not stop the others.
func identifyAll(ctx context.Context, rec interfaces.ReconcileService, entities []shared.LocalEntity, opts *identifyOptions, bar *progress) []entityResult {
	defer bar.Finish()

	limit := opts.concurrency
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(int64(limit))
	results := make([]entityResult, len(entities))

	var g errgroup.Group
	for i, e := range entities {
		results[i] = entityResult{Name: e.Name, Report: reconcile.Report{EntityID: e.ID, Kind: e.Kind}}
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Error = err.Error()
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			defer bar.Increment()
			results[i] = identifyEntity(ctx, rec, e, opts.provider)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func identifyEntity(ctx context.Context, rec interfaces.ReconcileService, e shared.LocalEntity, provider string) entityResult {
	res := entityResult{Name: e.Name, Report: reconcile.Report{EntityID: e.ID, Kind: e.Kind}}
	if provider == "" {
		report, err := rec.Identify(ctx, e.ID)
		res.Report = report
		res.Report.Kind = e.Kind
		if err != nil && len(report.Results) == 0 {
			res.Error = err.Error()
		}
		return res
	}

	outcome, err := rec.IdentifyWith(ctx, provider, e.ID)
	if errors.Is(err, reconcile.ErrUnsupported) {
		return res
	}
	if outcome == "" {
		res.Error = err.Error()
		return res
	}
	pr := reconcile.ProviderResult{Provider: provider, Outcome: outcome}
	if err != nil {
		pr.Error = err.Error()
	}
	res.Report.Results = []reconcile.ProviderResult{pr}
	return res
}

func printIdentifyResults(cmd *cobra.Command, results []entityResult) {
	var rows [][]string
	changed := 0
	for _, r := range results {
		label := fmt.Sprintf("#%d %s", r.Report.EntityID, r.Name)
		if r.Error != "" {
			rows = append(rows, []string{label, string(r.Report.Kind), "", shared.ColorError.Sprint("error"), shared.TruncateString(r.Error, 60)})
			continue
		}
		if len(r.Report.Results) == 0 {
			rows = append(rows, []string{label, string(r.Report.Kind), "", shared.ColorMuted.Sprint("no providers"), ""})
			continue
		}
		for i, pr := range r.Report.Results {
			if i > 0 {
				label = ""
			}
			if pr.Outcome.Changed() {
				changed++
			}
			rows = append(rows, []string{label, string(r.Report.Kind), pr.Provider, outcomeColor(pr.Outcome), shared.TruncateString(pr.Error, 60)})
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Entity", "Kind", "Provider", "Outcome", "Error"}, rows, nil))
	shared.ColorSuccess.Fprintf(out, "%d entities identified, %d provider records updated.\n", len(results), changed)
}
