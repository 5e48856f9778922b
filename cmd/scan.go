package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"attendance-scanner/internal/web"
)

var (
	scanEventID  string
	scanDuration time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run headless collection for one event",
	Long: `Starts scanning a single event immediately, without the dashboard
pages. The JSON API (including the detection ingest) is still served so radio
units can push sightings. Stops after --duration when set, otherwise runs
until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan()
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanEventID, "event", "", "event ID to scan (required)")
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 0, "stop after this long (0 = run forever)")
	scanCmd.MarkFlagRequired("event")
	rootCmd.AddCommand(scanCmd)
}

func runScan() error {
	u, err := buildUnit(cfg)
	if err != nil {
		return err
	}
	defer u.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if scanDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scanDuration)
		defer cancel()
	}

	events, err := u.client.ActiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("fetch active events: %w", err)
	}
	eventName := ""
	for _, ev := range events {
		if ev.ID == scanEventID {
			eventName = ev.Name
			break
		}
	}
	if eventName == "" {
		return fmt.Errorf("event %q is not an active event", scanEventID)
	}

	if err := u.session.SelectEvent(scanEventID, eventName); err != nil {
		return err
	}
	if err := u.session.StartScanning(); err != nil {
		return err
	}
	if _, err := u.client.EventControl(ctx, scanEventID, "start"); err != nil {
		slog.Warn("backend event activation failed", "event_id", scanEventID, "error", err)
	} else {
		u.session.SetEventActive(true)
	}

	go u.scan.Run(ctx, cfg.ScanInterval())
	go u.sync.Run(ctx, cfg.SyncInterval())

	// JSON API only, no dashboard pages.
	srv := web.NewServer(cfg, u.session, u.client, u.source, u.store, web.Options{
		ConfigPath: configFilePath(),
	})
	if u.archive != nil {
		srv.WithHistory(u.archive)
	}
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
	}()

	slog.Info("headless scan started",
		"event_id", scanEventID, "event_name", eventName,
		"addr", cfg.ListenAddr, "duration", scanDuration)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Flush whatever is still pending before exiting.
	u.sync.RunCycle(context.Background())

	snap := u.session.Snapshot()
	fmt.Printf("Scan finished: %d cycles, %d devices, %d records logged, %d synced\n",
		snap.TotalScans, snap.DevicesFound, snap.RecordsLogged, snap.RecordsSynced)
	return nil
}
