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

	"attendance-scanner/internal/alert"
	"attendance-scanner/internal/allowlist"
	"attendance-scanner/internal/archive"
	"attendance-scanner/internal/backend"
	"attendance-scanner/internal/config"
	"attendance-scanner/internal/dedup"
	"attendance-scanner/internal/registry"
	"attendance-scanner/internal/scanner"
	"attendance-scanner/internal/session"
	"attendance-scanner/internal/store"
	"attendance-scanner/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scanner with its web dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// unit bundles everything one scanner instance runs.
type unit struct {
	session *session.EventSession
	store   *store.RecordStore
	source  *scanner.PushSource
	client  *backend.Client
	scan    *scanner.ScanController
	sync    *scanner.SyncController
	archive *archive.Archive // may be nil
}

func buildUnit(cfg *config.Config) (*unit, error) {
	if err := cfg.RequireBackend(); err != nil {
		return nil, err
	}

	allow, err := buildAllowlist(cfg)
	if err != nil {
		return nil, err
	}

	u := &unit{
		session: session.New(),
		store:   store.New(cfg.LogPath),
		source:  scanner.NewPushSource(),
		client:  backend.NewClient(cfg.BackendBaseURL, cfg.APIKey),
	}

	window := dedup.NewWindow(config.DedupWindowTTL)
	filter := registry.NewFilter(u.client, cfg.RegistrationTTL())

	// Dedup state and registrations are scoped to one event.
	u.session.OnSelect(window.Reset)
	u.session.OnSelect(filter.Reset)

	u.scan = scanner.NewScanController(u.source, u.session, u.store, filter, window, allow, scanner.ScanConfig{
		ScannerID:       cfg.ScannerID,
		DiscoverTimeout: discoverTimeout(cfg.ScanInterval()),
		WindowTTL:       config.DedupWindowTTL,
	})
	u.sync = scanner.NewSyncController(u.client, u.store, u.session, scanner.SyncConfig{
		KeepRecords:        cfg.KeepRecords,
		AlertAfterFailures: cfg.AlertAfterFailures,
	})

	if cfg.Archive.SQLite != nil && cfg.Archive.SQLite.Path != "" {
		arc, err := archive.Open(cfg.Archive.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sync archive: %w", err)
		}
		u.archive = arc
		u.sync.WithArchive(arc)
	}

	if cfg.AlertingEnabled() {
		u.sync.WithNotifier(alert.NewMailer(alert.Config{
			Host:      cfg.Email.Host,
			Port:      cfg.Email.Port,
			Username:  cfg.Email.Username,
			Password:  cfg.Email.Password,
			From:      cfg.Email.From,
			To:        cfg.AlertTo,
			ScannerID: cfg.ScannerID,
		}))
	}

	return u, nil
}

func (u *unit) close() {
	if u.archive != nil {
		u.archive.Close()
	}
}

func buildAllowlist(cfg *config.Config) (*allowlist.Allowlist, error) {
	if cfg.AllowlistFile != "" {
		return allowlist.Load(cfg.AllowlistFile, cfg.UUIDPrefix)
	}
	return allowlist.New(cfg.UUIDPrefix), nil
}

// discoverTimeout picks how long a discovery pass collects pushed sightings.
// It must finish well inside one scan interval.
func discoverTimeout(scanInterval time.Duration) time.Duration {
	t := scanInterval / 2
	if t < 500*time.Millisecond {
		t = 500 * time.Millisecond
	}
	return t
}

func runServe() error {
	u, err := buildUnit(cfg)
	if err != nil {
		return err
	}
	defer u.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go u.scan.Run(ctx, cfg.ScanInterval())
	go u.sync.Run(ctx, cfg.SyncInterval())

	srv := web.NewServer(cfg, u.session, u.client, u.source, u.store, web.Options{
		ConfigPath:   configFilePath(),
		TemplatesDir: "web/templates",
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
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
	}()

	slog.Info("scanner serving", "addr", cfg.ListenAddr, "scanner_id", cfg.ScannerID)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
