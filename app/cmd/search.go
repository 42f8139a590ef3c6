package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/triagelabs/searchgate/adapters"
	"github.com/triagelabs/searchgate/app/picker"
	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/query"
	"github.com/triagelabs/searchgate/refine"
	"github.com/triagelabs/searchgate/sizing"
)

type searchFlags struct {
	source       string
	condition    string
	intervention string
	term         string
	author       string
	drug         string
	ingredient   string
	pageSize     int
	maxPages     int
	maxItems     int
	budget       int64
	progressive  bool
	interactive  bool
}

// newSearchCmd performs a one-shot bounded search against a single source.
func newSearchCmd() *cobra.Command {
	flags := searchFlags{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a bounded search against one data source",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(flags)
			if err != nil {
				return err
			}
			registry := adapters.NewRegistry(globalCfg.Endpoints())
			fetch, err := registry.Fetcher(q.SourceKind())
			if err != nil {
				return err
			}
			if flags.progressive {
				return runProgressive(cmd.Context(), q, fetch, flags)
			}
			return runBounded(cmd.Context(), q, fetch, flags)
		},
	}
	cmd.Flags().StringVar(&flags.source, "source", string(query.SourceClinicalTrials), "Data source: clinical-trials, literature, drugs")
	cmd.Flags().StringVar(&flags.condition, "condition", "", "Clinical trial condition filter")
	cmd.Flags().StringVar(&flags.intervention, "intervention", "", "Clinical trial intervention filter")
	cmd.Flags().StringVar(&flags.term, "term", "", "Literature search term")
	cmd.Flags().StringVar(&flags.author, "author", "", "Literature author filter")
	cmd.Flags().StringVar(&flags.drug, "drug", "", "Drug brand name filter")
	cmd.Flags().StringVar(&flags.ingredient, "ingredient", "", "Drug active ingredient filter")
	cmd.Flags().IntVar(&flags.pageSize, "page-size", 25, "Items requested per page")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 5, "Progressive loading page cap")
	cmd.Flags().IntVar(&flags.maxItems, "max-items", 0, "Progressive loading item cap (0 = unlimited)")
	cmd.Flags().Int64Var(&flags.budget, "budget", 0, "Size budget in bytes (defaults to configured max)")
	cmd.Flags().BoolVar(&flags.progressive, "progressive", false, "Load page by page instead of one shot")
	cmd.Flags().BoolVar(&flags.interactive, "interactive", false, "Pick refinements interactively on overflow")
	return cmd
}

func buildQuery(flags searchFlags) (query.Descriptor, error) {
	switch query.SourceKind(flags.source) {
	case query.SourceClinicalTrials:
		return &query.ClinicalTrialQuery{
			Condition:    flags.condition,
			Intervention: flags.intervention,
			Size:         flags.pageSize,
		}, nil
	case query.SourceLiterature:
		return &query.LiteratureQuery{
			Term:             flags.term,
			Author:           flags.author,
			IncludeAbstracts: true,
			Size:             flags.pageSize,
		}, nil
	case query.SourceDrugs:
		return &query.DrugQuery{
			Name:       flags.drug,
			Ingredient: flags.ingredient,
			Size:       flags.pageSize,
		}, nil
	default:
		return nil, fmt.Errorf("unknown source %q", flags.source)
	}
}

func runBounded(ctx context.Context, q query.Descriptor, fetch loader.PageFetcher, flags searchFlags) error {
	page, err := fetch(ctx, q, q.PageToken())
	if err != nil {
		return err
	}
	check, err := sizing.CheckSizeLimit(page.Items, string(q.SourceKind()))
	if err != nil {
		return err
	}
	if check.WithinLimit {
		return printItems(page.Items, check.Metrics)
	}

	fmt.Fprintf(os.Stderr, "Result is %s, %s over the %s budget.\n",
		sizing.FormatSize(check.Metrics.SizeBytes),
		sizing.FormatSize(check.Exceeded.ExceedsByBytes),
		sizing.FormatSize(sizing.Current().MaxBytes))
	set := refine.SuggestRefinements(q, check.Metrics, sizing.Current().MaxBytes)

	if !flags.interactive {
		fmt.Fprintln(os.Stderr, "Suggested refinements:")
		for _, opt := range set.Options {
			fmt.Fprintf(os.Stderr, "  [%s] %s: %s (est. -%d%%)\n",
				opt.ID, opt.Label, opt.Description, int(opt.EstimatedReductionRatio*100))
		}
		fmt.Fprintf(os.Stderr, "Suggested actions: %s\n", strings.Join(check.Exceeded.SuggestedActions, "; "))
		return fmt.Errorf("result over size budget; re-run with --interactive or a narrower query")
	}

	chosen, err := picker.Run(set)
	if err != nil {
		return err
	}
	if len(chosen) == 0 {
		return fmt.Errorf("no refinements chosen")
	}
	applied := refine.ApplyRefinements(q, chosen)
	if !applied.Success {
		return fmt.Errorf("refinement not applicable to %s queries", q.SourceKind())
	}
	retry, err := fetch(ctx, applied.Query, applied.Query.PageToken())
	if err != nil {
		return err
	}
	recheck, err := sizing.CheckSizeLimit(retry.Items, string(q.SourceKind()))
	if err != nil {
		return err
	}
	if !recheck.WithinLimit {
		return fmt.Errorf("still %s over budget after refinement; try progressive loading",
			sizing.FormatSize(recheck.Exceeded.ExceedsByBytes))
	}
	return printItems(retry.Items, recheck.Metrics)
}

func runProgressive(ctx context.Context, q query.Descriptor, fetch loader.PageFetcher, flags searchFlags) error {
	budget := flags.budget
	if budget <= 0 {
		budget = sizing.Current().MaxBytes
	}
	cfg := loader.Config{
		MaxPages:        flags.maxPages,
		MaxItems:        flags.maxItems,
		SizeBudgetBytes: budget,
	}

	var result *loader.Result
	var loadErr error
	if flags.interactive {
		result, loadErr = picker.RunProgress(string(q.SourceKind()), func(onBatch loader.BatchFunc) (*loader.Result, error) {
			return loader.Load(ctx, q, fetch, onBatch, cfg)
		})
	} else {
		result, loadErr = loader.Load(ctx, q, fetch, func(info loader.BatchInfo) error {
			fmt.Fprintf(os.Stderr, "page %d: +%d items (%d total, %s)\n",
				info.PageIndex, info.ItemsInBatch, info.CumulativeItems, sizing.FormatSize(info.CumulativeSizeBytes))
			return nil
		}, cfg)
	}
	if result == nil {
		return loadErr
	}
	fmt.Fprintf(os.Stderr, "loaded %d items over %d pages, stopped: %s\n",
		result.TotalLoaded, result.PagesLoaded, result.StoppedReason)
	if loadErr != nil {
		fmt.Fprintf(os.Stderr, "load ended early: %v\n", loadErr)
	}
	metrics, err := sizing.Measure(result.Items, string(q.SourceKind()))
	if err != nil {
		return err
	}
	return printItems(result.Items, metrics)
}

func printItems(items []json.RawMessage, metrics sizing.Metrics) error {
	fmt.Fprintf(os.Stderr, "%d items, %s\n", metrics.ItemCount, sizing.FormatSize(metrics.SizeBytes))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
