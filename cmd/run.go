package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pritzvi/linked-out/internal/job"
	"github.com/pritzvi/linked-out/internal/models"
	"github.com/pritzvi/linked-out/internal/setup"
	"github.com/pritzvi/linked-out/internal/store"
)

var (
	runFile      string
	runNoHistory bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one outreach session headless from a session file",
	Long: `Load a session file, lock the summary and confirm the templates, launch
the configured worker and print progress every poll interval until the
session is final.

Session file example:

  resume_summary: |
    I'm Ada. Backend engineer, 6 years of Go.
  # or summarize a plain-text resume with the LLM:
  # resume_file: resume.txt
  search:
    kind: form
    companies: Stripe, Plaid
    titles: Engineering Manager
    universities: Stanford, MIT
    profiles_needed: 10
  send_connection_request: true
  include_note: true
  template_mode: examples
  templates:
    - "Hi {name}, I'm Ada, a Go engineer..."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()
		return runRun(ctx, runFile)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFile, "file", "f", "session.yaml", "session file")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "do not record the session in the history database")
}

func runRun(ctx context.Context, path string) error {
	sf, err := loadSessionFile(path)
	if err != nil {
		return err
	}

	if strings.TrimSpace(sf.ResumeSummary) == "" && sf.ResumeFile != "" {
		summary, examples, err := summarizeFile(ctx, sf.ResumeFile)
		if err != nil {
			return err
		}
		sf.ResumeSummary = summary
		if len(sf.Templates) == 0 {
			sf.Templates = examples
		}
	}

	cfg := setup.NewStore()
	if err := sf.apply(cfg); err != nil {
		return err
	}

	if dryRun {
		payload, err := cfg.BuildLaunchPayload()
		if err != nil {
			return err
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		ui.DryRunMsg("Would launch %s with payload:", viper.GetString("worker.command"))
		fmt.Fprintln(ui.Out, string(data))
		return nil
	}

	var history store.Store
	if !runNoHistory {
		if history, err = getStore(); err != nil {
			return err
		}
	}

	logger := newLogger(os.Stderr)
	ctrl := newController(cfg, newKeyRegistry(), history, logger)

	payload, err := ctrl.Launch(ctx)
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	ui.Success("Search initiated: %d profiles needed", payload.ProfilesNeeded)

	return followSession(ctx, ctrl, pollInterval())
}

// followSession ticks the controller and prints progress until the session
// is final. Cancelling ctx fails the session.
func followSession(ctx context.Context, ctrl *job.Controller, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			ctrl.Shutdown(shutdownCtx, "interrupted")
			cancel()
		case <-ticker.C:
			ctrl.Tick(ctx)
		}

		rep := ctrl.Report()
		if key := reportKey(rep); key != last || rep.IsFinal {
			renderReport(rep)
			last = key
		}
		if !rep.Phase.IsTerminal() {
			continue
		}
		if rep.Phase == models.PhaseFailed {
			return errors.New("session failed")
		}
		return nil
	}
}
