package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"medallion/internal/ui"
)

var checkAsOf string

var checkCmd = &cobra.Command{
	Use:   "check [entity]",
	Short: "Update attribute history from the conformed table",
	Long: `Compare each conformed row's tracked attributes with its open history
interval and record the differences: new keys open an interval, changed
tuples close the old interval and open a new one, unchanged tuples write
nothing. Without an entity argument every configured entity is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkAsOf, "as-of", "", "Validity instant for the check (RFC 3339, default now)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	asOf := time.Now().UTC()
	if checkAsOf != "" {
		parsed, err := time.Parse(time.RFC3339, checkAsOf)
		if err != nil {
			err = fmt.Errorf("invalid --as-of value %q: %w", checkAsOf, err)
			ui.ShowError(err)
			return err
		}
		asOf = parsed.UTC()
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
	hooks := runHooks(cfg)
	renderer := ui.NewSummaryRenderer(true)

	for _, entity := range entities {
		es := svc.Entity(entity)
		result, err := ledgerEngine(es, entity, hooks).SnapshotCheck(ctx, asOf)
		if err != nil {
			ui.ShowError(fmt.Errorf("history check failed for %s: %w", entity.Name, err))
			return err
		}

		if !flagQuiet {
			renderer.RenderCheckResult(os.Stdout, entity.Name, result)
		}
	}
	return nil
}
