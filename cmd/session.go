package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pritzvi/linked-out/internal/job"
	"github.com/pritzvi/linked-out/internal/keys"
	"github.com/pritzvi/linked-out/internal/models"
	"github.com/pritzvi/linked-out/internal/output"
	"github.com/pritzvi/linked-out/internal/setup"
	"github.com/pritzvi/linked-out/internal/store"
	"github.com/pritzvi/linked-out/internal/worker"
)

// newLogger returns the structured logger used by long-running commands.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// pollInterval returns the configured completion/progress poll interval.
func pollInterval() time.Duration {
	d := viper.GetDuration("poll_interval")
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// newWorker builds the worker launcher from config. Keys registered at
// runtime are passed to the worker through its environment.
func newWorker(reg *keys.Registry, logger *slog.Logger) *worker.Process {
	return &worker.Process{
		Command: viper.GetString("worker.command"),
		Args:    viper.GetStringSlice("worker.args"),
		Secrets: reg.Environ,
		Logger:  logger,
	}
}

// newController wires a session controller to the worker and, when history
// is non-nil, the session history store.
func newController(cfg *setup.Store, reg *keys.Registry, history store.Store, logger *slog.Logger) *job.Controller {
	opts := []job.Option{
		job.WithLauncher(newWorker(reg, logger)),
		job.WithLogger(logger),
		job.WithResultsDir(viper.GetString("results_dir")),
	}
	if history != nil {
		opts = append(opts, job.WithRecorder(store.NewRecorder(history)))
	}
	return job.New(cfg, opts...)
}

// sessionFile is the YAML document accepted by `run --file`.
type sessionFile struct {
	ResumeSummary         string              `yaml:"resume_summary"`
	ResumeFile            string              `yaml:"resume_file"`
	TemplateMode          models.TemplateMode `yaml:"template_mode"`
	Templates             []string            `yaml:"templates"`
	CustomTemplate        string              `yaml:"custom_template"`
	Search                models.SearchSpec   `yaml:"search"`
	SendConnectionRequest bool                `yaml:"send_connection_request"`
	IncludeNote           bool                `yaml:"include_note"`
}

// loadSessionFile reads and parses a session file. A relative resume_file
// is resolved against the session file's directory.
func loadSessionFile(path string) (*sessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var sf sessionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", path, err)
	}
	if sf.ResumeFile != "" && !filepath.IsAbs(sf.ResumeFile) {
		sf.ResumeFile = filepath.Join(filepath.Dir(path), sf.ResumeFile)
	}
	if sf.TemplateMode == "" {
		sf.TemplateMode = models.TemplateModeExamples
	}
	return &sf, nil
}

// apply configures, locks and confirms cfg from the session file, leaving
// the launch gate open when the file is complete.
func (sf *sessionFile) apply(cfg *setup.Store) error {
	if err := cfg.SetSearch(sf.Search); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := cfg.SetResumeSummary(sf.ResumeSummary); err != nil {
		return fmt.Errorf("resume summary: %w", err)
	}
	if err := cfg.LockSummary(); err != nil {
		return fmt.Errorf("lock summary: %w", err)
	}
	if err := cfg.SetOutreach(sf.SendConnectionRequest, sf.IncludeNote); err != nil {
		return fmt.Errorf("outreach: %w", err)
	}
	if !cfg.View().IncludeNote {
		return nil
	}
	if err := cfg.SetTemplates(sf.TemplateMode, sf.Templates, sf.CustomTemplate); err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	if err := cfg.ConfirmTemplates(); err != nil {
		return fmt.Errorf("confirm templates: %w", err)
	}
	return nil
}

// renderReport prints the session summary line followed by a profile table.
func renderReport(rep models.Report) {
	fmt.Fprintf(ui.Out, "%s  %s  discovered %d  processing %d  pending %d  failed %d\n",
		output.StatusColor(string(rep.Phase)),
		output.ProgressColor(rep.CompletedCount, rep.ProfilesNeeded),
		rep.DiscoveredCount, rep.ProcessingCount, rep.PendingCount, rep.FailedCount)
	if rep.Message != "" {
		ui.VerboseLog("%s", rep.Message)
	}
	if rep.FailureReason != "" {
		ui.Error("%s", rep.FailureReason)
	}

	if len(rep.Profiles) > 0 {
		table := ui.Table([]string{"ID", "Name", "Status", "Message"})
		for _, p := range rep.Profiles {
			table.Append([]string{
				p.ID,
				output.Cyan(p.Name),
				output.StatusColor(string(p.Status)),
				p.Message,
			})
		}
		table.Render()
	}

	if rep.IsFinal && rep.ResultPath != "" {
		ui.Success("Results: %s", rep.ResultPath)
	}
}
