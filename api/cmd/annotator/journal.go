package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"image-annotator/api/internal/config"
	"image-annotator/api/internal/store"
)

var (
	historyLimit   int
	purgeOlderThan time.Duration
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect or prune the save journal",
}

var journalHistoryCmd = &cobra.Command{
	Use:   "history [filename]",
	Short: "Show recent saves of a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalHistory,
}

var journalPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old journal entries",
	Args:  cobra.NoArgs,
	RunE:  runJournalPurge,
}

func openJournal(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store.JournalRepo, error) {
	if cfg.Journal.Driver == "" {
		return nil, errors.New("save journal is disabled: set journal.driver or DATABASE_URL")
	}
	repo, err := store.OpenJournal(ctx, cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return nil, err
	}
	log.Info("journal connected",
		zap.String("driver", cfg.Journal.Driver),
		zap.String("db", safeDSNSummary(cfg.Journal.Driver, cfg.Journal.DSN)))
	return repo, nil
}

func runJournalHistory(cmd *cobra.Command, args []string) error {
	repo, err := openJournal(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	entries, err := repo.Recent(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func runJournalPurge(cmd *cobra.Command, args []string) error {
	repo, err := openJournal(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	n, err := repo.PurgeOlderThan(cmd.Context(), purgeOlderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
	return nil
}

// safeDSNSummary describes the database without credentials.
func safeDSNSummary(driver, dsn string) string {
	if driver != config.JournalDriverPgx {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "dsn: unparsed"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
