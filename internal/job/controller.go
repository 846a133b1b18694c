// Package job runs the single outreach session: it gates the launch, feeds
// worker events into the progress store and result sink, and owns every
// lifecycle transition.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pritzvi/linked-out/internal/faults"
	"github.com/pritzvi/linked-out/internal/models"
	"github.com/pritzvi/linked-out/internal/progress"
	"github.com/pritzvi/linked-out/internal/results"
	"github.com/pritzvi/linked-out/internal/setup"
)

// EventSink receives worker events in arrival order.
type EventSink interface {
	Ingest(ctx context.Context, ev models.Event) error
}

// Launcher hands a launch payload to the external automation worker.
// Start must not block for the life of the job; events flow back through sink.
type Launcher interface {
	Start(ctx context.Context, payload models.LaunchPayload, sink EventSink) error
}

// Recorder persists session history. Failures are logged, never fatal.
type Recorder interface {
	StartSession(ctx context.Context, rec *models.SessionRecord) error
	RecordProfile(ctx context.Context, sessionID string, p models.ProfileRecord) error
	FinishSession(ctx context.Context, rec *models.SessionRecord) error
}

const completedMessage = "Search completed"

// Controller is the handle to the one live session. All components that
// read or change session state receive it explicitly.
type Controller struct {
	cfg        *setup.Store
	progress   *progress.Store
	reporter   *progress.Reporter
	launcher   Launcher
	recorder   Recorder
	logger     *slog.Logger
	resultsDir string
	clock      func() time.Time

	// ingestMu serializes the single writer: worker events, ticks and
	// terminal transitions are applied one at a time in arrival order.
	ingestMu   sync.Mutex
	doneStreak int

	mu             sync.RWMutex
	phase          models.Phase
	profilesNeeded int
	sink           *results.Sink
	workerPath     string
	failure        string
	message        string
	session        *models.SessionRecord
	cancelWorker   context.CancelFunc
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLauncher sets the worker launcher. Without one, events are expected
// from a remote worker through Ingest.
func WithLauncher(l Launcher) Option {
	return func(c *Controller) { c.launcher = l }
}

// WithRecorder sets the session history recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithResultsDir sets the base directory for result files.
func WithResultsDir(dir string) Option {
	return func(c *Controller) { c.resultsDir = dir }
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New creates a controller in the Idle phase bound to cfg. The first
// successful configuration change moves it to Configuring.
func New(cfg *setup.Store, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg,
		progress:   progress.NewStore(),
		logger:     slog.Default(),
		resultsDir: "linkedin_searches",
		clock:      func() time.Time { return time.Now().UTC() },
		phase:      models.PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reporter = progress.NewReporter(c, c.progress)
	cfg.OnChange(c.markConfiguring)
	return c
}

// Config returns the session configuration store.
func (c *Controller) Config() *setup.Store { return c.cfg }

// Progress returns the progress store.
func (c *Controller) Progress() *progress.Store { return c.progress }

// Report returns the polling projection of the session.
func (c *Controller) Report() models.Report { return c.reporter.Report() }

func (c *Controller) markConfiguring() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == models.PhaseIdle {
		c.phase = models.PhaseConfiguring
	}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() models.Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// State implements progress.StateSource.
func (c *Controller) State() models.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.SessionState{
		Phase:          c.phase,
		ProfilesNeeded: c.profilesNeeded,
		ResultPath:     c.resultPathLocked(),
		FailureReason:  c.failure,
		Message:        c.message,
	}
}

func (c *Controller) resultPathLocked() string {
	if c.sink != nil {
		if p := c.sink.Path(); p != "" {
			return p
		}
	}
	return c.workerPath
}

// SessionID returns the history id of the launched session, if recorded.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// Launch moves the session from Configuring to Running and hands the payload
// to the worker. Only one caller can ever succeed: the phase check, the gate
// check and the transition happen under one lock. Events wait on ingestMu
// until the history record exists.
func (c *Controller) Launch(ctx context.Context) (models.LaunchPayload, error) {
	c.ingestMu.Lock()
	c.mu.Lock()
	switch {
	case c.phase == models.PhaseRunning:
		c.mu.Unlock()
		c.ingestMu.Unlock()
		return models.LaunchPayload{}, faults.ErrAlreadyRunning
	case c.phase.IsTerminal():
		c.mu.Unlock()
		c.ingestMu.Unlock()
		return models.LaunchPayload{}, faults.ErrAlreadyTerminal
	}

	payload, err := c.cfg.FreezeForLaunch()
	if err != nil {
		c.mu.Unlock()
		c.ingestMu.Unlock()
		return models.LaunchPayload{}, fmt.Errorf("%w: %v", faults.ErrGateNotSatisfied, err)
	}

	now := c.clock()
	c.phase = models.PhaseRunning
	c.profilesNeeded = payload.ProfilesNeeded
	c.message = "Search initiated"
	c.sink = results.NewSink(c.resultsDir, results.SearchID(payload.Search, now))
	c.session = &models.SessionRecord{
		Phase:          models.PhaseRunning,
		SearchKind:     payload.Search.Kind,
		SearchLabel:    searchLabel(payload.Search),
		ProfilesNeeded: payload.ProfilesNeeded,
		StartedAt:      now,
	}
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelWorker = cancel
	rec := *c.session
	c.mu.Unlock()

	c.logger.Info("session launched",
		"profiles_needed", payload.ProfilesNeeded,
		"search", rec.SearchLabel,
		"send_connection_request", payload.SendConnectionRequest,
		"include_note", payload.IncludeNote)

	if c.recorder != nil {
		if err := c.recorder.StartSession(ctx, &rec); err != nil {
			c.logger.Warn("record session start", "error", err)
		} else {
			c.mu.Lock()
			c.session.ID = rec.ID
			c.mu.Unlock()
		}
	}
	c.ingestMu.Unlock()

	if c.launcher != nil {
		if err := c.launcher.Start(workerCtx, payload, c); err != nil {
			reason := fmt.Sprintf("start worker: %v", err)
			_ = c.terminate(ctx, models.PhaseFailed, reason)
			return payload, faults.Worker(reason)
		}
	}
	return payload, nil
}

// Ingest applies one worker event. Consistency faults are logged and
// returned, but the session keeps running.
func (c *Controller) Ingest(ctx context.Context, ev models.Event) error {
	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()

	if phase := c.Phase(); phase != models.PhaseRunning {
		return fmt.Errorf("%w: %s event in phase %s", faults.ErrNotRunning, ev.Type, phase)
	}

	switch ev.Type {
	case models.EventProfileDiscovered:
		id := ev.ProfileID
		if id == "" {
			id = c.progress.NextID()
		}
		msg := ev.Message
		if _, known := c.progress.Get(id); !known && msg == "" {
			msg = "Profile discovered"
		}
		return c.applyUpdate(ctx, models.ProfileUpdate{
			ID: id, Name: ev.Name, URL: ev.URL, Status: ev.Status, Message: msg,
		}, ev.Details, nil)

	case models.EventStatusChanged:
		if ev.ProfileID == "" {
			return fmt.Errorf("%w: status_changed without id", faults.ErrInvalidEvent)
		}
		if ev.Status == "" {
			return fmt.Errorf("%w: status_changed without status", faults.ErrInvalidEvent)
		}
		var unknown error
		if _, ok := c.progress.Get(ev.ProfileID); !ok {
			unknown = fmt.Errorf("%w: %s", faults.ErrUnknownProfile, ev.ProfileID)
		}
		return c.applyUpdate(ctx, models.ProfileUpdate{
			ID: ev.ProfileID, Name: ev.Name, URL: ev.URL, Status: ev.Status, Message: ev.Message,
		}, ev.Details, unknown)

	case models.EventResultReady:
		if ev.Path == "" {
			return fmt.Errorf("%w: result_ready without path", faults.ErrInvalidEvent)
		}
		c.mu.Lock()
		c.workerPath = ev.Path
		c.mu.Unlock()
		c.logger.Info("worker reported result file", "path", ev.Path)
		return nil

	case models.EventFinished:
		return c.finishLocked(ctx, models.PhaseDone, "")

	case models.EventFatalError:
		reason := ev.Reason
		if reason == "" {
			reason = "worker reported a fatal error"
		}
		return c.finishLocked(ctx, models.PhaseFailed, reason)

	default:
		return fmt.Errorf("%w: unknown event type %q", faults.ErrInvalidEvent, ev.Type)
	}
}

func (c *Controller) applyUpdate(ctx context.Context, u models.ProfileUpdate, details *models.ProfileDetails, prior error) error {
	ch, err := c.progress.Upsert(u)
	if err != nil && !errors.Is(err, faults.ErrConsistency) {
		return err
	}
	errs := []error{prior, err}

	if ch.EnteredCompleted {
		c.mu.RLock()
		sink := c.sink
		c.mu.RUnlock()
		if appendErr := sink.Append(ch.Record, details); appendErr != nil {
			c.logger.Error("append result", "profile", ch.Record.ID, "error", appendErr)
			errs = append(errs, appendErr)
		}
	}

	if c.recorder != nil && (ch.Inserted || ch.Advanced) {
		if id := c.SessionID(); id != "" {
			if recErr := c.recorder.RecordProfile(ctx, id, ch.Record); recErr != nil {
				c.logger.Warn("record profile", "profile", ch.Record.ID, "error", recErr)
			}
		}
	}

	joined := errors.Join(errs...)
	if joined != nil {
		c.logger.Warn("ingest fault", "profile", u.ID, "status", u.Status, "error", joined)
	}
	return joined
}

// Tick evaluates the derived completion rule: once completed+failed reaches
// profilesNeeded on two consecutive ticks, the session is Done. The double
// observation debounces transient counts seen mid-update.
func (c *Controller) Tick(ctx context.Context) bool {
	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()

	st := c.State()
	if st.Phase != models.PhaseRunning {
		c.doneStreak = 0
		return false
	}

	snap := c.progress.Snapshot()
	if snap.CompletedCount+snap.FailedCount >= st.ProfilesNeeded {
		c.doneStreak++
	} else {
		c.doneStreak = 0
	}
	if c.doneStreak < 2 {
		return false
	}
	return c.finishLocked(ctx, models.PhaseDone, "") == nil
}

// Watch calls Tick every interval until the session is terminal or ctx ends.
func (c *Controller) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
			if c.Phase().IsTerminal() {
				return
			}
		}
	}
}

// Shutdown fails a session that has not ended yet, preserving partial
// results. It is a no-op on a terminal or never-launched session.
func (c *Controller) Shutdown(ctx context.Context, reason string) {
	c.mu.Lock()
	switch {
	case c.phase.IsTerminal():
		c.mu.Unlock()
		return
	case c.phase != models.PhaseRunning:
		c.phase = models.PhaseFailed
		c.failure = reason
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	// Running only leaves through finishLocked, which rechecks the phase.
	_ = c.terminate(ctx, models.PhaseFailed, reason)
}

func (c *Controller) terminate(ctx context.Context, phase models.Phase, reason string) error {
	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()
	return c.finishLocked(ctx, phase, reason)
}

// finishLocked moves Running to a terminal phase. Callers hold ingestMu.
func (c *Controller) finishLocked(ctx context.Context, phase models.Phase, reason string) error {
	c.mu.Lock()
	if c.phase.IsTerminal() {
		c.mu.Unlock()
		return faults.ErrAlreadyTerminal
	}
	if c.phase != models.PhaseRunning {
		c.mu.Unlock()
		return faults.ErrNotRunning
	}
	c.phase = phase
	c.failure = reason
	if phase == models.PhaseDone {
		c.message = completedMessage
	} else {
		c.message = ""
	}
	sink := c.sink
	cancel := c.cancelWorker
	needed := c.profilesNeeded
	var session *models.SessionRecord
	if c.session != nil {
		cp := *c.session
		session = &cp
	}
	c.mu.Unlock()

	c.doneStreak = 0
	if err := sink.Finalize(); err != nil {
		c.logger.Error("close result file", "error", err)
	}
	if cancel != nil {
		cancel()
	}

	snap := c.progress.Snapshot()
	if phase == models.PhaseDone && snap.TotalDiscovered > needed {
		c.logger.Warn("ingest fault",
			"error", fmt.Errorf("%w: %d discovered, %d requested", faults.ErrOverDiscovery, snap.TotalDiscovered, needed))
	}

	if phase == models.PhaseFailed {
		c.logger.Error("session failed", "reason", reason, "completed", snap.CompletedCount)
	} else {
		c.logger.Info("session done", "completed", snap.CompletedCount, "failed", snap.FailedCount, "rows", sink.Count())
	}

	if c.recorder != nil && session != nil && session.ID != "" {
		now := c.clock()
		rec := session
		rec.Phase = phase
		rec.FailureReason = reason
		rec.ResultPath = c.State().ResultPath
		rec.EndedAt = &now
		if err := c.recorder.FinishSession(ctx, rec); err != nil {
			c.logger.Warn("record session end", "error", err)
		}
	}
	return nil
}

// ResultFile returns the path of the downloadable result file. It refuses
// with ErrNotReady until the session is terminal.
func (c *Controller) ResultFile() (string, error) {
	st := c.State()
	if !st.Phase.IsTerminal() {
		return "", fmt.Errorf("%w: session is %s", faults.ErrNotReady, st.Phase)
	}
	if st.ResultPath == "" {
		return "", faults.ErrNoResults
	}
	if _, err := os.Stat(st.ResultPath); err != nil {
		return "", fmt.Errorf("%w: %v", faults.ErrNoResults, err)
	}
	return st.ResultPath, nil
}

func searchLabel(spec models.SearchSpec) string {
	if spec.Kind == models.SearchKindURL {
		return spec.URL
	}
	parts := make([]string, 0, 3)
	for _, v := range []string{spec.Companies, spec.Titles, spec.Universities} {
		if items := setup.SplitList(v); len(items) > 0 {
			parts = append(parts, strings.Join(items, ", "))
		}
	}
	return strings.Join(parts, " / ")
}
