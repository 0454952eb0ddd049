package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"olie/internal/board"
	"olie/internal/config"
	"olie/internal/models"
	"olie/internal/snapshot"
	"olie/internal/storage/sqlite"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export board partitions to S3",
	Long: `Exports every board, or the one given with --board, as JSON to the configured S3
bucket. Each export writes a timestamped object and overwrites latest.json.`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().Int64("board", 0, "Only export this board id")
	snapshotCmd.Flags().Int("parallel", 4, "Maximum concurrent uploads")
	snapshotCmd.Flags().String("db", "", "Path to sqlite database file")
	snapshotCmd.Flags().String("driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.S3.Enabled() {
		return snapshot.ErrDisabled
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()

	client, err := snapshot.NewS3Client(ctx, cfg.S3)
	if err != nil {
		return err
	}
	exporter := snapshot.NewExporter(client, cfg.S3, logger)
	if err := exporter.CheckBucket(ctx); err != nil {
		return err
	}

	boardID, _ := cmd.Flags().GetInt64("board")
	parallel, _ := cmd.Flags().GetInt("parallel")
	return exportBoards(ctx, cfg, exporter, boardID, parallel, logger, cmd.OutOrStdout())
}

// exportBoards reads boards from the configured database and uploads their partitions.
// boardID 0 selects every board.
func exportBoards(ctx context.Context, cfg config.Config, exporter *snapshot.Exporter, boardID int64, parallel int, logger *slog.Logger, out io.Writer) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	store, err := sqlite.Open(cfg.Database.Driver, cfg.Database.Path, logger, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	var selected []models.Board
	if boardID != 0 {
		b, err := store.GetBoard(ctx, boardID)
		if err != nil {
			return err
		}
		selected = []models.Board{b}
	} else if selected, err = store.ListBoards(ctx); err != nil {
		return err
	}

	opts, err := cfg.Board.Options()
	if err != nil {
		return err
	}
	boards := board.NewRegistry(store, opts, logger)

	sources := make([]snapshot.Source, 0, len(selected))
	for _, b := range selected {
		m, err := boards.Get(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("load board %d: %w", b.ID, err)
		}
		sources = append(sources, snapshot.Source{Board: b, Partition: m.Snapshot()})
	}

	keys, err := exporter.ExportAll(ctx, sources, parallel)
	for _, key := range keys {
		if key != "" {
			fmt.Fprintln(out, key)
		}
	}
	if err != nil {
		return fmt.Errorf("export snapshots: %w", err)
	}
	logger.Info("snapshots exported", slog.Int("boards", len(sources)))
	return nil
}
