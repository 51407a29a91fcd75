package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/signcap/internal/catalog"
	"github.com/andresmejia3/signcap/internal/config"
	"github.com/andresmejia3/signcap/internal/dataset"
	"github.com/andresmejia3/signcap/internal/logging"
)

var (
	// cfg is the loaded configuration shared by subcommands
	cfg *config.Config
	// logger is built from cfg once flags are parsed
	logger *slog.Logger

	cfgPath    string
	dbURL      string
	datasetDir string
)

// Version is the application version.
const Version = "0.1.0"

// exitCancelled is the conventional exit status after SIGINT.
const exitCancelled = 130

var rootCmd = &cobra.Command{
	Use:     "signcap",
	Short:   "Record labeled keypoint sequences for gesture classification",
	Version: Version, // This enables the --version flag
	// Errors are reported once, by Execute.
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, path, exists, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := applyGlobalFlags(loaded); err != nil {
			return err
		}
		cfg = loaded

		logger, err = logging.NewFromConfig(cfg, false)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if exists {
			logger.Debug("config loaded", "path", path)
		} else {
			logger.Debug("no config file, using defaults", "path", path)
		}
		return nil
	},
}

// applyGlobalFlags lets --dataset and --db override the file.
func applyGlobalFlags(c *config.Config) error {
	if datasetDir != "" {
		dir, err := config.ExpandPath(datasetDir)
		if err != nil {
			return err
		}
		c.Paths.DatasetDir = dir
	}
	if dbURL != "" {
		c.Catalog.URL = dbURL
		c.Catalog.Disabled = false
	}
	return nil
}

// openCatalog opens the configured journal. The SQLite default lives inside
// the dataset directory.
func openCatalog(ctx context.Context) (catalog.Catalog, error) {
	if cfg.Catalog.Disabled {
		return catalog.Nop{}, nil
	}
	target := cfg.Catalog.URL
	if target == "" {
		target = cfg.CatalogPath()
	}
	c, err := catalog.Open(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return c, nil
}

func openStore() *dataset.Store {
	return dataset.New(cfg.Paths.DatasetDir)
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "🛑 Cancelled.")
		os.Exit(exitCancelled)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default: ./signcap.toml or ~/.config/signcap/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the capture journal (default: SQLite inside the dataset)")
	rootCmd.PersistentFlags().StringVar(&datasetDir, "dataset", "", "Dataset root directory (overrides paths.dataset_dir)")
}
