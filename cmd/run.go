package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"medallion/internal/ui"
)

var runEnsureTables bool

var runCmd = &cobra.Command{
	Use:   "run [entity]",
	Short: "Run one full pipeline cycle: merge, then history check",
	Long: `Run one full pipeline cycle for an entity: merge new snapshots into the
conformed table, then bring the attribute history up to date. The history
check uses a single instant for the whole cycle, so every interval opened in
one run shares the same valid_from. Without an entity argument every
configured entity runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCycle,
}

func init() {
	runCmd.Flags().BoolVar(&runEnsureTables, "ensure-tables", false, "Create missing target tables before running")
	rootCmd.AddCommand(runCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
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
	renderer := ui.NewSummaryRenderer(true)
	asOf := time.Now().UTC()

	for _, entity := range entities {
		if runEnsureTables {
			term.StartProgress(fmt.Sprintf("Ensuring tables for %s", entity.Name))
			if err := svc.EnsureTables(ctx, entity); err != nil {
				term.FailProgress(fmt.Sprintf("Table creation failed for %s", entity.Name))
				ui.ShowError(err)
				return err
			}
			term.StopProgress(fmt.Sprintf("Tables ready for %s", entity.Name))
		}

		es := svc.Entity(entity)

		mergeResult, err := mergeEngine(es, entity, cfg.Pipeline, hooks).Apply(ctx)
		if err != nil {
			ui.ShowError(fmt.Errorf("merge failed for %s: %w", entity.Name, err))
			return err
		}

		checkResult, err := ledgerEngine(es, entity, hooks).SnapshotCheck(ctx, asOf)
		if err != nil {
			ui.ShowError(fmt.Errorf("history check failed for %s: %w", entity.Name, err))
			return err
		}

		if !flagQuiet {
			renderer.RenderMergeResult(os.Stdout, entity.Name, mergeResult)
			renderer.RenderCheckResult(os.Stdout, entity.Name, checkResult)
		}
	}

	if !flagQuiet {
		ui.PrintSuccess("Pipeline cycle completed")
	}
	return nil
}
