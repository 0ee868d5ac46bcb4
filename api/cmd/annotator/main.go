package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // journal driver "pgx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // journal driver "sqlite"

	"image-annotator/api/internal/config"
	"image-annotator/api/internal/logging"
)

var (
	configPath string
	verbose    bool

	flagAddr          string
	flagRoot          string
	flagAnnotationDir string
	flagStatusMode    string
	flagWatch         bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "annotator",
	Short: "Local image annotation server",
	Long: `annotator serves a single-page UI for drawing labelled regions on images
and stores one JSON record per image under the active annotation directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, c)
		if verbose {
			c.Log.Level = "debug"
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		l, err := logging.New(c.Log.Level, c.Log.Dev)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		c.Addr = flagAddr
	}
	if flags.Changed("root") {
		c.RootDir = flagRoot
	}
	if flags.Changed("annotation-dir") {
		c.AnnotationDir = flagAnnotationDir
	}
	if flags.Changed("status-mode") {
		c.StatusMode = flagStatusMode
	}
	if flags.Changed("watch") {
		c.Watch.Enabled = flagWatch
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "directory holding properties_config.json and static/")
	rootCmd.PersistentFlags().StringVar(&flagAnnotationDir, "annotation-dir", "", "initial annotation directory (default <root>/annotations)")
	rootCmd.PersistentFlags().StringVar(&flagStatusMode, "status-mode", config.StatusModeTriState, "batch status mode: tristate or exists")

	serveCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:5000", "listen address")
	serveCmd.Flags().BoolVar(&flagWatch, "watch", false, "stream record changes on /annotation_events")

	statusCmd.Flags().IntVar(&statusWorkers, "workers", 0, "parallel reads (default from config)")

	journalHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "entries to show")
	journalPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "delete saves older than this age, e.g. 720h")
	_ = journalPurgeCmd.MarkFlagRequired("older-than")
	journalCmd.AddCommand(journalHistoryCmd, journalPurgeCmd)

	rootCmd.AddCommand(serveCmd, statusCmd, journalCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
