package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/signcap/internal/dataset"
	"github.com/andresmejia3/signcap/internal/labels"
)

var (
	resetYes         bool
	resetKeepJournal bool
)

var resetCmd = &cobra.Command{
	Use:   "reset [label...]",
	Short: "Delete recorded sequences for some labels or the whole dataset",
	Long:  "Deletes the named labels, or every label when none is given, after confirmation. The capture journal entries for those labels are removed too unless --keep-journal is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset(cmd.Context(), bufio.NewReader(os.Stdin), os.Stdout, args)
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().BoolVar(&resetKeepJournal, "keep-journal", false, "Keep capture journal entries")
	rootCmd.AddCommand(resetCmd)
}

func runReset(ctx context.Context, in *bufio.Reader, out io.Writer, args []string) error {
	store := openStore()
	if err := store.Lock(); err != nil {
		return fmt.Errorf("%w (stop the running capture first)", err)
	}
	defer store.Unlock()

	targets := make([]string, 0, len(args))
	for _, a := range args {
		name := labels.NormalizeName(a)
		if !labels.ValidName(name) {
			return fmt.Errorf("invalid label %q", a)
		}
		targets = append(targets, name)
	}
	all := len(targets) == 0
	if all {
		names, err := store.Labels()
		if err != nil {
			return err
		}
		targets = names
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "Nothing to reset.")
		return nil
	}

	prompt := fmt.Sprintf("⚠️  Delete all recorded sequences for %s?", strings.Join(targets, ", "))
	if all {
		prompt = fmt.Sprintf("⚠️  Delete the ENTIRE dataset in %s (%d labels)?", store.Root(), len(targets))
	}
	if !resetYes && !confirm(in, out, prompt) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	for _, name := range targets {
		fmt.Fprintf(out, "🗑️  Removing %s...\n", name)
		removeLabel(store, name)
	}

	if !resetKeepJournal {
		if err := forgetJournal(ctx, targets, all); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to clear capture journal: %v\n", err)
		}
	}

	fmt.Fprintln(out, "✨ Reset complete.")
	return nil
}

func forgetJournal(ctx context.Context, targets []string, all bool) error {
	journal, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	defer journal.Close(context.Background())

	if all {
		return journal.Forget(ctx, "")
	}
	for _, name := range targets {
		if err := journal.Forget(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeLabel(store *dataset.Store, label string) {
	if err := store.RemoveLabel(label); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", label, err)
	}
}
