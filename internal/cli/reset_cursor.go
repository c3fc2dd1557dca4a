package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/nftrelay/internal/control"
	"github.com/vietddude/nftrelay/internal/core/cursor"
	"github.com/vietddude/nftrelay/internal/core/domain"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [block_height]",
	Short: "Reset the sync cursor so monitoring resumes after the given block",
	Long: `Overwrites the persisted sync cursor. Events after block_height are
delivered again the next time the relay monitors. Stop the relay first.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	height, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block height: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	if cfg.Database.URL == "" {
		fmt.Println("No database configured; the cursor only lives in a running relay")
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := control.OpenStorage(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Save overwrites unconditionally; UpdateBlock would refuse to move back.
	err = store.Cursors.Save(ctx, &domain.SyncCursor{
		Key:                cfg.Sync.CursorKey,
		LastProcessedBlock: height,
		State:              cursor.StateIdle,
	})
	if err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor %s to block %d\n", cfg.Sync.CursorKey, height)
}
