package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/signcap/internal/catalog"
)

var historyFilter catalog.Filter

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded capture attempts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(cmd.Context(), historyFilter)
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyFilter.Label, "label", "l", "", "Only attempts for this label")
	historyCmd.Flags().StringVarP(&historyFilter.SessionID, "session", "s", "", "Only attempts from this capture session")
	historyCmd.Flags().IntVarP(&historyFilter.Limit, "limit", "n", 20, "Maximum number of attempts (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, f catalog.Filter) error {
	journal, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	// Use Background here because the main context might be cancelled already (due to Ctrl+C)
	defer journal.Close(context.Background())

	attempts, err := journal.List(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to list attempts: %w", err)
	}
	if len(attempts) == 0 {
		fmt.Println("No capture attempts recorded.")
		return nil
	}
	fmt.Println(renderHistory(attempts))
	return nil
}

func renderHistory(attempts []catalog.Attempt) string {
	headers := []string{"Recorded", "Session", "Label", "Index", "Outcome", "Frames", "Padded", "Truncated", "Video"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		session := a.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		rows = append(rows, []string{
			a.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			session,
			a.Label,
			strconv.Itoa(a.Index),
			string(a.Outcome),
			strconv.Itoa(a.Captured),
			strconv.Itoa(a.Padded),
			strconv.Itoa(a.Truncated),
			a.VideoPath,
		})
	}
	return renderTable(headers, rows, aligns)
}
