package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"attendance-scanner/internal/backend"
	"attendance-scanner/internal/store"
)

var syncClear bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload pending records once",
	Long: `Reads the local record log, uploads everything to the backend and
trims the log. Useful after an outage or before decommissioning a unit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync()
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncClear, "clear", false, "drop the retained tail after a successful upload")
	rootCmd.AddCommand(syncCmd)
}

func runSync() error {
	if err := cfg.RequireBackend(); err != nil {
		return err
	}
	client := backend.NewClient(cfg.BackendBaseURL, cfg.APIKey)
	st := store.New(cfg.LogPath)

	records, err := st.ReadAll()
	if err != nil {
		return fmt.Errorf("read record log: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("Nothing to sync")
		return nil
	}

	result, err := client.BatchCheckin(context.Background(), records)
	if err != nil {
		return fmt.Errorf("upload batch of %d records: %w", len(records), err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PROCESSED\tSUCCESSFUL\tDUPLICATES\tERRORS")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", result.Processed, result.Successful, result.Duplicates, result.Errors)
	w.Flush()

	keep := cfg.KeepRecords
	if syncClear {
		keep = 0
	}
	if err := st.TruncateToTail(keep); err != nil {
		return fmt.Errorf("trim record log: %w", err)
	}
	fmt.Printf("Record log trimmed to last %d records\n", keep)
	return nil
}
