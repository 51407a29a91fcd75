package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/signcap/internal/catalog"
	"github.com/andresmejia3/signcap/internal/dataset"
	"github.com/andresmejia3/signcap/internal/labels"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-label progress toward the capture targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// labelStatus is one row of the status table.
type labelStatus struct {
	Name     string
	Class    int // position in the sorted label list used for training, -1 if absent
	Saved    int
	Target   int // 0 when the label is not in the queue
	Accepted int
	Rejected int
}

func runStatus(ctx context.Context) error {
	specs, err := labels.Load(cfg.Paths.LabelsFile, cfg.Capture.DefaultTarget)
	var loadErr *labels.ConfigLoadError
	if err != nil && !errors.As(err, &loadErr) {
		return err
	}

	var summaries []catalog.LabelSummary
	if journal, err := openCatalog(ctx); err != nil {
		logger.Warn("catalog unavailable", "error", err)
	} else {
		summaries, err = journal.Summary(ctx)
		if err != nil {
			logger.Warn("catalog summary failed", "error", err)
		}
		_ = journal.Close(ctx)
	}

	rows, err := collectStatus(openStore(), specs, summaries)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No labels configured and no sequences on disk.")
		return nil
	}

	fmt.Printf("Dataset: %s\n", cfg.Paths.DatasetDir)
	if loadErr != nil {
		fmt.Fprintf(os.Stderr, "⚠️  %v; showing default labels\n", loadErr)
	}
	fmt.Println(renderStatus(rows))
	return nil
}

// collectStatus merges the label queue, the dataset tree and the journal.
// Labels on disk that are not in the queue are listed after the queue.
func collectStatus(store *dataset.Store, specs []labels.Spec, summaries []catalog.LabelSummary) ([]labelStatus, error) {
	onDisk, err := store.Labels()
	if err != nil {
		return nil, fmt.Errorf("list dataset labels: %w", err)
	}

	var rows []labelStatus
	seen := map[string]bool{}
	add := func(name string, target int) error {
		saved, err := store.CountExisting(name)
		if err != nil {
			return err
		}
		row := labelStatus{Name: name, Class: slices.Index(onDisk, name), Saved: saved, Target: target}
		for _, s := range summaries {
			if s.Label == name {
				row.Accepted, row.Rejected = s.Accepted, s.Rejected
			}
		}
		rows = append(rows, row)
		seen[name] = true
		return nil
	}

	for _, spec := range specs {
		if err := add(spec.Name, spec.Target); err != nil {
			return nil, err
		}
	}
	for _, name := range onDisk {
		if !seen[name] {
			if err := add(name, 0); err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

func renderStatus(rows []labelStatus) string {
	headers := []string{"Class", "Label", "Saved", "Target", "Remaining", "Accepted", "Rejected"}
	aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		class := "-"
		if r.Class >= 0 {
			class = strconv.Itoa(r.Class)
		}
		target, remaining := "-", "-"
		if r.Target > 0 {
			target = strconv.Itoa(r.Target)
			remaining = strconv.Itoa(max(r.Target-r.Saved, 0))
		}
		out = append(out, []string{
			class,
			r.Name,
			strconv.Itoa(r.Saved),
			target,
			remaining,
			strconv.Itoa(r.Accepted),
			strconv.Itoa(r.Rejected),
		})
	}
	return renderTable(headers, out, aligns)
}
