package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/nftrelay/internal/control"
)

var historyTo string

var historyCmd = &cobra.Command{
	Use:   "history [contract] [event] [from_block]",
	Short: "Print past contract events in a block range",
	Args:  cobra.ExactArgs(3),
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyTo, "to", "", "last block to include (default is the current head)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	from, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		fmt.Printf("Invalid from block: %v\n", err)
		os.Exit(1)
	}
	var to *uint64
	if historyTo != "" {
		v, err := strconv.ParseUint(historyTo, 10, 64)
		if err != nil {
			fmt.Printf("Invalid to block: %v\n", err)
			os.Exit(1)
		}
		to = &v
	}

	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	events := app.Service().HistoricalEvents(ctx, args[0], args[1], from, to)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "BLOCK\tLOG\tTX\tTIME\tARGS")
	for _, ev := range events {
		argsJSON, _ := json.Marshal(ev.Args)
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
			ev.BlockNumber, ev.LogIndex, ev.TransactionHash, ev.Timestamp.Format(time.RFC3339), argsJSON)
	}
	_ = w.Flush()
	fmt.Printf("%d event(s)\n", len(events))
}
