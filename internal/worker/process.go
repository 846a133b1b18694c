// Package worker runs the external automation worker as a subprocess and
// turns its JSONL output into session events.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/pritzvi/linked-out/internal/faults"
	"github.com/pritzvi/linked-out/internal/job"
	"github.com/pritzvi/linked-out/internal/models"
)

const maxLineSize = 1 << 20

// Process launches the worker command. The launch payload is written as one
// JSON document to stdin; the worker answers with one event per stdout line.
type Process struct {
	Command string
	Args    []string
	Dir     string
	// Env is appended to the parent environment.
	Env []string
	// Secrets is called at start and its NAME=value pairs appended after Env,
	// so keys registered at runtime reach the worker.
	Secrets func() []string
	Logger  *slog.Logger
}

var _ job.Launcher = (*Process)(nil)

// Start spawns the worker and returns once it is running. Events are
// forwarded to sink from a background goroutine until the process exits.
func (p *Process) Start(ctx context.Context, payload models.LaunchPayload, sink job.EventSink) error {
	if strings.TrimSpace(p.Command) == "" {
		return errors.New("no worker command configured")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode launch payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(), p.Env...)
	if p.Secrets != nil {
		cmd.Env = append(cmd.Env, p.Secrets()...)
	}
	cmd.Stdin = bytes.NewReader(append(body, '\n'))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("worker stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Command, err)
	}
	logger.Info("worker started", "command", p.Command, "pid", cmd.Process.Pid)

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		logLines(stderr, logger.With("source", "worker"))
	}()

	go func() {
		finished := false
		decodeErr := DecodeEvents(stdout, func(ev models.Event) error {
			if ev.Type == models.EventFinished || ev.Type == models.EventFatalError {
				finished = true
			}
			if err := sink.Ingest(ctx, ev); err != nil {
				if errors.Is(err, faults.ErrNotRunning) {
					return err
				}
				logger.Warn("worker event rejected", "type", ev.Type, "id", ev.ProfileID, "error", err)
			}
			return nil
		})
		if decodeErr != nil && !errors.Is(decodeErr, faults.ErrNotRunning) {
			logger.Warn("worker output", "error", decodeErr)
		}
		<-stderrDone
		waitErr := cmd.Wait()

		if finished || ctx.Err() != nil {
			return
		}
		reason := "worker exited before finishing"
		if waitErr != nil {
			reason = fmt.Sprintf("worker exited: %v", waitErr)
		}
		if err := sink.Ingest(context.WithoutCancel(ctx), models.Event{Type: models.EventFatalError, Reason: reason}); err != nil &&
			!errors.Is(err, faults.ErrLifecycle) {
			logger.Warn("report worker exit", "error", err)
		}
	}()
	return nil
}

// DecodeEvents reads one JSON event per line and calls fn for each. Blank
// lines are skipped. A malformed line is reported and skipped; an error from
// fn stops decoding.
func DecodeEvents(r io.Reader, fn func(models.Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var malformed []error
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			malformed = append(malformed, fmt.Errorf("%w: line %d: %v", faults.ErrInvalidEvent, line, err))
			continue
		}
		if err := fn(ev); err != nil {
			return errors.Join(append(malformed, err)...)
		}
	}
	if err := sc.Err(); err != nil {
		malformed = append(malformed, fmt.Errorf("read worker output: %w", err))
	}
	return errors.Join(malformed...)
}

func logLines(r io.Reader, logger *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			logger.Info(line)
		}
	}
}
