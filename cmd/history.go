package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pritzvi/linked-out/internal/models"
	"github.com/pritzvi/linked-out/internal/output"
	"github.com/pritzvi/linked-out/internal/results"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List past sessions, or the profiles of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return historyShowRun(cmd.Context(), args[0])
		}
		return historyListRun(cmd.Context(), historyLimit)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum sessions to list")
}

func historyListRun(ctx context.Context, limit int) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sessions, err := s.ListSessions(ctx, limit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		ui.Info("No sessions recorded yet")
		return nil
	}

	table := ui.Table([]string{"ID", "Phase", "Search", "Completed", "Failed", "Started", "Results"})
	for _, rec := range sessions {
		table.Append([]string{
			output.Cyan(rec.ID),
			output.StatusColor(string(rec.Phase)),
			rec.SearchLabel,
			output.ProgressColor(rec.CompletedCount, rec.ProfilesNeeded),
			strconv.Itoa(rec.FailedCount),
			timeAgo(rec.StartedAt),
			rec.ResultPath,
		})
	}
	table.Render()
	return nil
}

func historyShowRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	rec, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	profiles, err := s.ListProfiles(ctx, id)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}

	printSession(rec)
	if len(profiles) == 0 {
		return nil
	}

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"ID", "Name", "Status", "Message", "URL"})
	for _, p := range profiles {
		table.Append([]string{
			p.ID,
			output.Cyan(p.Name),
			output.StatusColor(string(p.Status)),
			p.Message,
			p.URL,
		})
	}
	table.Render()
	return nil
}

func printSession(rec *models.SessionRecord) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(rec.ID), output.StatusColor(string(rec.Phase)))
	fmt.Fprintf(ui.Out, "  Search:    %s (%s)\n", rec.SearchLabel, rec.SearchKind)
	fmt.Fprintf(ui.Out, "  Completed: %s, %d failed\n", output.ProgressColor(rec.CompletedCount, rec.ProfilesNeeded), rec.FailedCount)
	fmt.Fprintf(ui.Out, "  Started:   %s\n", rec.StartedAt.Local().Format(time.DateTime))
	if rec.EndedAt != nil {
		fmt.Fprintf(ui.Out, "  Ended:     %s (%s)\n", rec.EndedAt.Local().Format(time.DateTime), rec.EndedAt.Sub(rec.StartedAt).Round(time.Second))
	}
	if rec.ResultPath != "" {
		fmt.Fprintf(ui.Out, "  Results:   %s (%s)\n", rec.ResultPath, resultRows(rec.ResultPath))
	}
	if rec.FailureReason != "" {
		fmt.Fprintf(ui.Out, "  Failure:   %s\n", output.Red(rec.FailureReason))
	}
}

// resultRows describes the row count of a result file on disk.
func resultRows(path string) string {
	rows, err := results.ReadRows(path)
	if err != nil {
		return output.Yellow("unreadable: " + err.Error())
	}
	if len(rows) == 1 {
		return output.Green("1 row")
	}
	return output.Green(strconv.Itoa(len(rows)) + " rows")
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
