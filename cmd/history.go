package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"medallion/internal/ui"
	"medallion/pkg/models"
)

var historyAt string

var historyCmd = &cobra.Command{
	Use:   "history <entity> <business-key>",
	Short: "Show the attribute history of one business key",
	Long: `Show the validity intervals recorded for one business key, oldest first.
With --at, show only the interval in effect at that instant instead.`,
	Args: cobra.ExactArgs(2),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyAt, "at", "", "Show the interval in effect at this instant (RFC 3339)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	key, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || key <= 0 {
		err = fmt.Errorf("business key must be a positive integer, got %q", args[1])
		ui.ShowError(err)
		return err
	}

	cfg, err := loadPipelineConfig()
	if err != nil {
		ui.ShowError(err)
		return err
	}

	entities, err := selectEntities(cfg, args[0])
	if err != nil {
		ui.ShowError(err)
		return err
	}
	entity := entities[0]

	svc, err := connectService(cfg)
	if err != nil {
		ui.ShowError(err)
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	es := svc.Entity(entity)
	engine := ledgerEngine(es, entity, nil)

	if historyAt != "" {
		at, err := time.Parse(time.RFC3339, historyAt)
		if err != nil {
			err = fmt.Errorf("invalid --at value %q: %w", historyAt, err)
			ui.ShowError(err)
			return err
		}

		interval, ok, err := engine.AsOf(ctx, key, at)
		if err != nil {
			ui.ShowError(err)
			return err
		}
		if !ok {
			ui.PrintWarning(fmt.Sprintf("No interval covers %s for key %d", at.Format(time.RFC3339), key))
			return nil
		}
		renderIntervals(entity, []models.LedgerInterval{interval})
		return nil
	}

	intervals, err := engine.History(ctx, key)
	if err != nil {
		ui.ShowError(err)
		return err
	}
	if len(intervals) == 0 {
		ui.PrintWarning(fmt.Sprintf("No history recorded for key %d", key))
		return nil
	}
	renderIntervals(entity, intervals)
	return nil
}

func renderIntervals(entity models.Entity, intervals []models.LedgerInterval) {
	table := ui.NewTable()

	header := []string{"VALID FROM", "VALID TO"}
	header = append(header, entity.TrackedFields...)
	table.AddHeader(header...)

	for _, interval := range intervals {
		row := []string{interval.ValidFrom.Format("2006-01-02 15:04:05"), "current"}
		if interval.ValidTo != nil {
			row[1] = interval.ValidTo.Format("2006-01-02 15:04:05")
		}
		for _, field := range entity.TrackedFields {
			row = append(row, formatAttribute(interval.Attributes[field]))
		}
		table.AddRow(row...)
	}
	table.Render()
}

func formatAttribute(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case time.Time:
		return val.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
