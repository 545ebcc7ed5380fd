package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"deepfakeserver/internal/app"
	"deepfakeserver/internal/dto"
	"deepfakeserver/internal/models"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyLabel string
	historyStats bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded predictions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(cmd.Context())
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of predictions to show")
	historyCmd.Flags().StringVar(&historyLabel, "label", "", "only show REAL or FAKE predictions")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show totals instead of individual predictions")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context) error {
	label := models.Label(strings.ToUpper(strings.TrimSpace(historyLabel)))
	if label != "" && !label.Valid() {
		return fmt.Errorf("--label must be REAL or FAKE, got %q", historyLabel)
	}

	repo, err := app.OpenHistory(ctx, cfg)
	if err != nil {
		return err
	}
	if repo == nil {
		return fmt.Errorf("prediction history is disabled (HISTORY_DRIVER=%s)", cfg.HistoryDriver)
	}
	defer repo.Close()

	if historyStats {
		stats, err := repo.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("load stats: %w", err)
		}
		fmt.Printf("📊 Total: %d  FAKE: %d  REAL: %d\n", stats.Total, stats.Fake, stats.Real)
		fmt.Printf("   Average confidence: %.2f%%  Average duration: %.0f ms\n", stats.AverageConfidence, stats.AverageDurationMs)
		return nil
	}

	predictions, err := repo.GetAll(ctx, &dto.PredictionFilters{Label: label, Limit: max(historyLimit, 1)})
	if err != nil {
		return fmt.Errorf("list predictions: %w", err)
	}
	if len(predictions) == 0 {
		fmt.Println("No predictions recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tRESULT\tCONFIDENCE\tFACES\tFILE\tCREATED")
	fmt.Fprintln(w, "--\t------\t----------\t-----\t----\t-------")
	for _, p := range predictions {
		fmt.Fprintf(w, "%d\t%s\t%.2f%%\t%d/%d\t%s\t%s\n", p.ID, p.Label, p.Confidence,
			p.FacesDetected, p.FramesSampled, p.Filename, p.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
