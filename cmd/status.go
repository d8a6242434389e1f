package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"medallion/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status [entity]",
	Short: "Show table inventory, row counts, and merge cursors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	var rows []ui.StatusRow

	for _, entity := range entities {
		es := svc.Entity(entity)

		cursor := ""
		if mark, ok, err := es.Cursor(ctx); err == nil && ok {
			cursor = mark.Format("2006-01-02 15:04:05")
		}

		tables := []struct {
			layer string
			table string
		}{
			{"bronze", entity.SnapshotTable},
			{"silver", entity.ConformedTable},
			{"silver", entity.LedgerTable},
		}
		for _, tbl := range tables {
			count, err := svc.RowCount(ctx, tbl.table)
			if err != nil {
				ui.ShowError(err)
				return err
			}
			row := ui.StatusRow{Entity: entity.Name, Layer: tbl.layer, Table: tbl.table, Rows: count}
			if tbl.table == entity.ConformedTable {
				row.Cursor = cursor
			}
			rows = append(rows, row)
		}
	}

	ui.NewSummaryRenderer(true).RenderStatus(os.Stdout, rows)
	return nil
}
