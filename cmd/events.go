package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"attendance-scanner/internal/backend"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and control backend events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEvents()
	},
}

var eventsControlCmd = &cobra.Command{
	Use:   "control <event-id> <start|stop>",
	Short: "Activate or deactivate an event on the backend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return controlEvent(args[0], args[1])
	},
}

func init() {
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsControlCmd)
	rootCmd.AddCommand(eventsCmd)
}

func listEvents() error {
	if err := cfg.RequireBackend(); err != nil {
		return err
	}
	client := backend.NewClient(cfg.BackendBaseURL, cfg.APIKey)

	events, err := client.ActiveEvents(context.Background())
	if err != nil {
		return fmt.Errorf("fetch active events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No active events")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "EVENT ID\tNAME\tSTATUS\tSTARTS")
	fmt.Fprintln(w, "--------\t----\t------\t------")
	for _, ev := range events {
		status := "inactive"
		if ev.IsActive {
			status = "active"
		}
		starts := "-"
		if ev.StartTime > 0 {
			starts = time.UnixMilli(ev.StartTime).Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.ID, ev.Name, status, starts)
	}
	return w.Flush()
}

func controlEvent(eventID, action string) error {
	if action != "start" && action != "stop" {
		return fmt.Errorf("action must be start or stop, got %q", action)
	}
	if err := cfg.RequireBackend(); err != nil {
		return err
	}
	client := backend.NewClient(cfg.BackendBaseURL, cfg.APIKey)

	ev, err := client.EventControl(context.Background(), eventID, action)
	if err != nil {
		return fmt.Errorf("event control: %w", err)
	}

	status := "inactive"
	if ev.IsActive {
		status = "active"
	}
	fmt.Printf("Event %s (%s) is now %s\n", ev.Name, ev.ID, status)
	return nil
}
