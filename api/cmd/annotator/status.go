package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"image-annotator/api/internal/status"
	"image-annotator/api/internal/store"
)

var statusWorkers int

var statusCmd = &cobra.Command{
	Use:   "status [filename...]",
	Short: "Print the annotation status of files in the annotation directory",
	Long: `Classifies each filename the same way the /batch_annotation_status endpoint does.

Example:
  annotator status --annotation-dir ./labels img_001.jpg img_002.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	workers := cfg.StatusWorkers
	if statusWorkers > 0 {
		workers = statusWorkers
	}
	dir := store.NewDirectory(cfg.ResolvedAnnotationDir())
	c := status.NewChecker(dir, status.Mode(cfg.StatusMode), workers, logger)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(c.Check(args))
}
