package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medallion/internal/aggregate"
	"medallion/internal/ui"
)

var (
	reportView string
	reportTop  int
)

var reportCmd = &cobra.Command{
	Use:   "report <entity>",
	Short: "Derive reporting views from the conformed table",
	Long: `Compute a reporting view over the current conformed rows. Views are
stateless and recomputed on every invocation:

  genres   per-genre title counts, revenue totals, and rating averages
  top      titles ranked by revenue
  yearly   release counts and totals per calendar year
  roi      return on investment for titles with known budget and revenue`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportView, "view", "genres", "Report view: genres, top, yearly, or roi")
	reportCmd.Flags().IntVar(&reportTop, "top", 10, "Number of entries for the top view")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
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

	rows, err := svc.Entity(entity).Rows(context.Background())
	if err != nil {
		ui.ShowError(err)
		return err
	}

	renderer := ui.NewSummaryRenderer(true)
	switch reportView {
	case "genres":
		renderer.RenderGenreRollup(os.Stdout, aggregate.GenreRollup(rows))
	case "top":
		renderer.RenderTopRevenue(os.Stdout, aggregate.TopByRevenue(rows, reportTop))
	case "yearly":
		renderer.RenderYearlyRollup(os.Stdout, aggregate.YearlyRollup(rows))
	case "roi":
		renderer.RenderROI(os.Stdout, aggregate.ROIRanking(rows))
	default:
		err := fmt.Errorf("unknown view %q: expected genres, top, yearly, or roi", reportView)
		ui.ShowError(err)
		return err
	}
	return nil
}
