package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/signcap/internal/dataset"
)

var verifyPrune bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-read every sequence and check its shape",
	Long: `Loads every keypoints.npy in the dataset and checks that it has shape
(sequence_length, keypoint_dim). Also reports index directories without an
artifact and gaps in the index numbering. --prune removes the empty
directories.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(openStore(), verifyPrune)
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyPrune, "prune", false, "Remove index directories that hold no artifact")
	rootCmd.AddCommand(verifyCmd)
}

// verifyProblem is one finding of verifyDataset.
type verifyProblem struct {
	Label string
	Index int
	Issue string
}

func runVerify(store *dataset.Store, prune bool) error {
	problems, checked, err := verifyDataset(store, cfg.Capture.SequenceLength, cfg.Capture.KeypointDim, prune)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		fmt.Printf("✅ %d sequences verified, shape (%d, %d)\n", checked, cfg.Capture.SequenceLength, cfg.Capture.KeypointDim)
		return nil
	}

	rows := make([][]string, 0, len(problems))
	for _, p := range problems {
		rows = append(rows, []string{p.Label, fmt.Sprint(p.Index), p.Issue})
	}
	fmt.Println(renderTable([]string{"Label", "Index", "Problem"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
	return fmt.Errorf("%d problems in %d sequences", len(problems), checked)
}

func verifyDataset(store *dataset.Store, length, dim int, prune bool) ([]verifyProblem, int, error) {
	names, err := store.Labels()
	if err != nil {
		return nil, 0, err
	}

	type key struct {
		label string
		index int
	}
	var all []key
	var problems []verifyProblem
	for _, name := range names {
		indices, err := store.Indices(name)
		if err != nil {
			return nil, 0, err
		}
		for pos, idx := range indices {
			all = append(all, key{name, idx})
			if idx != pos {
				problems = append(problems, verifyProblem{name, idx, fmt.Sprintf("gap: expected index %d", pos)})
			}
		}

		orphans, err := store.Orphans(name)
		if err != nil {
			return nil, 0, err
		}
		for _, idx := range orphans {
			if prune {
				if err := store.RemovePartial(name, idx); err != nil {
					return nil, 0, err
				}
				logger.Info("removed empty sequence directory", "label", name, "index", idx)
				continue
			}
			problems = append(problems, verifyProblem{name, idx, "directory without " + dataset.ArtifactName})
		}
	}

	bar := progressbar.NewOptions(len(all),
		progressbar.OptionSetDescription("🔍 Verifying"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	for _, k := range all {
		seq, err := store.ReadSequence(k.label, k.index)
		switch {
		case err != nil:
			problems = append(problems, verifyProblem{k.label, k.index, err.Error()})
		case seq.Len() != length || seq.Dim() != dim:
			problems = append(problems, verifyProblem{k.label, k.index, fmt.Sprintf("shape (%d, %d), want (%d, %d)", seq.Len(), seq.Dim(), length, dim)})
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	return problems, len(all), nil
}
