package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/nftrelay/internal/control"
	"github.com/vietddude/nftrelay/internal/infra/storage"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync cursor and recent transactions",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of journal entries to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	store, err := control.OpenStorage(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)

	key := cfg.Sync.CursorKey
	c, err := store.Cursors.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrCursorNotFound):
		fmt.Printf("No sync cursor %q yet\n", key)
	case err != nil:
		slog.Error("Failed to read cursor", "error", err)
		os.Exit(1)
	default:
		_, _ = fmt.Fprintln(w, "CURSOR\tBLOCK\tHASH\tSTATE\tUPDATED")
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			c.Key, c.LastProcessedBlock, c.LastBlockHash, c.State, c.UpdatedAt.Format(time.RFC3339))
		_ = w.Flush()
		fmt.Println()
	}

	recent, err := store.Journal.ListRecent(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to list transactions", "error", err)
		os.Exit(1)
	}
	_, _ = fmt.Fprintln(w, "OPERATION\tCONTRACT\tFUNCTION\tNONCE\tSTATUS\tTX\tERROR")
	for _, r := range recent {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.OperationID, r.ContractKey, r.Function, r.Nonce, r.Status, r.TxHash, r.ErrorKind)
	}
	_ = w.Flush()
}

