package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medallion/internal/merge"
	"medallion/internal/ui"
)

var mergeEnsureTables bool

var mergeCmd = &cobra.Command{
	Use:   "merge [entity]",
	Short: "Merge new snapshots into the conformed table",
	Long: `Merge newly observed snapshots into the conformed table.

The scan starts at the target's low-water mark minus the lookback window, so
late-arriving snapshots within that window are picked up. An empty target
triggers a full history scan. Without an entity argument every configured
entity is merged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeEnsureTables, "ensure-tables", false, "Create missing target tables before merging")
	rootCmd.AddCommand(mergeCmd)
}

// entityProgress is the bar shown while multiple entities run back to back.
// A single entity goes straight to its summary table; nil means no bar.
func entityProgress(count int) *ui.ProgressBar {
	if flagQuiet || count < 2 {
		return nil
	}
	return ui.NewProgressBar(count)
}

func runMerge(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	cfg, err := loadPipelineConfig()
	if err != nil {
		ui.ShowError(err)
		return err
	}

	entities, err := selectEntities(cfg, name)
	if err != nil {
		ui.ShowError(err)
		return err
	}

	svc, err := connectService(cfg)
	if err != nil {
		ui.ShowError(err)
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	term := ui.NewUI(flagVerbose, flagQuiet)
	hooks := runHooks(cfg)
	bar := entityProgress(len(entities))

	type outcome struct {
		entity string
		result merge.Result
	}
	outcomes := make([]outcome, 0, len(entities))

	for i, entity := range entities {
		if mergeEnsureTables {
			term.StartProgress(fmt.Sprintf("Ensuring tables for %s", entity.Name))
			if err := svc.EnsureTables(ctx, entity); err != nil {
				term.FailProgress(fmt.Sprintf("Table creation failed for %s", entity.Name))
				ui.ShowError(err)
				return err
			}
			term.StopProgress(fmt.Sprintf("Tables ready for %s", entity.Name))
		}

		es := svc.Entity(entity)
		result, err := mergeEngine(es, entity, cfg.Pipeline, hooks).Apply(ctx)
		if err != nil {
			ui.ShowError(fmt.Errorf("merge failed for %s: %w", entity.Name, err))
			return err
		}
		outcomes = append(outcomes, outcome{entity: entity.Name, result: result})

		if bar != nil {
			bar.Update(i+1, entity.Name, result.Inserted+result.Updated > 0)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if !flagQuiet {
		renderer := ui.NewSummaryRenderer(true)
		for _, o := range outcomes {
			renderer.RenderMergeResult(os.Stdout, o.entity, o.result)
		}
	}
	return nil
}
