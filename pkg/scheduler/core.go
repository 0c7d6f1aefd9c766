package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	config "github.com/frostwillmott/applybot/configs"
	"github.com/frostwillmott/applybot/pkg/apply"
	"github.com/frostwillmott/applybot/pkg/metrics"
	"github.com/frostwillmott/applybot/pkg/models"
	"github.com/frostwillmott/applybot/pkg/storage"
)

// missedRunGrace bounds how late a missed cron instant may still be fired
// as a catch-up at startup.
const missedRunGrace = 4 * time.Hour

// Pipeline is the slice of the application pipeline the scheduler drives.
type Pipeline interface {
	BulkApplyStream(ctx context.Context, userID string, req apply.BulkRequest, maxApplications int, cancelRequested func() bool) <-chan apply.Event
}

// Service owns the per-user cron triggers, mutual exclusion flags, missed-run
// recovery and run bookkeeping. It is an explicit value owned by the process
// root; there is no package-global scheduler.
type Service struct {
	cfg      *config.Config
	settings storage.SettingsStore
	runs     storage.RunHistoryStore
	pipeline Pipeline
	log      *zap.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu              sync.Mutex
	cron            *cron.Cron
	entries         map[string]cron.EntryID
	running         map[string]bool
	cancelRequested map[string]bool

	// now is replaceable in tests.
	now func() time.Time
}

// NewService wires the scheduling core.
func NewService(cfg *config.Config, settings storage.SettingsStore, runs storage.RunHistoryStore, pipeline Pipeline, log *zap.Logger) *Service {
	return &Service{
		cfg:             cfg,
		settings:        settings,
		runs:            runs,
		pipeline:        pipeline,
		log:             log.With(zap.String("component", "scheduler")),
		entries:         make(map[string]cron.EntryID),
		running:         make(map[string]bool),
		cancelRequested: make(map[string]bool),
		now:             time.Now,
	}
}

// Start reconciles stale runs, brings up the trigger machinery in the
// default zone, installs a trigger per enabled user and fires catch-up runs
// for instants missed within the grace window.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		s.log.Info("scheduler already running")
		return nil
	}
	s.mu.Unlock()

	// Rows stuck in running belong to a previous process life.
	if n, err := s.runs.MarkStaleRunsInterrupted(ctx); err != nil {
		s.log.Error("failed to reconcile stale runs", zap.Error(err))
	} else if n > 0 {
		s.log.Warn("reconciled stale running records", zap.Int64("count", n))
	}

	loc, err := time.LoadLocation(s.cfg.SchedulerDefaultTimezone)
	if err != nil {
		return fmt.Errorf("invalid default timezone: %w", err)
	}

	s.mu.Lock()
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithLocation(loc))
	s.cron.Start()
	s.mu.Unlock()
	s.log.Info("scheduler started", zap.String("timezone", s.cfg.SchedulerDefaultTimezone))

	if !s.cfg.SchedulerAutoStart {
		return nil
	}

	enabled, err := s.settings.ListEnabledSettings(ctx)
	if err != nil {
		return fmt.Errorf("load enabled settings: %w", err)
	}
	for i := range enabled {
		userSettings := enabled[i]
		if err := s.scheduleUserJob(&userSettings); err != nil {
			s.log.Error("failed to schedule user job",
				zap.String("user_id", userSettings.UserID), zap.Error(err))
			continue
		}
		s.log.Info("loaded scheduled job", zap.String("user_id", userSettings.UserID))

		s.checkAndRunMissedJob(ctx, &userSettings)
	}

	return nil
}

// Stop shuts the trigger machinery down without waiting for in-flight
// pipelines; they observe cancellation at their next checkpoint.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.entries = make(map[string]cron.EntryID)
	if s.cancelBase != nil {
		s.cancelBase()
	}
	s.log.Info("scheduler stopped")
}

// cronSpec renders the per-user trigger. Settings days use mon=0..sun=6;
// the cron DOW field uses sun=0..sat=6.
func cronSpec(settings *models.SchedulerSettings) string {
	indices := models.ParseScheduleDays(settings.ScheduleDays)
	days := make([]string, 0, len(indices))
	for _, idx := range indices {
		days = append(days, strconv.Itoa((idx+1)%7))
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * %s",
		settings.Timezone, settings.ScheduleMinute, settings.ScheduleHour,
		strings.Join(days, ","))
}

// scheduleUserJob atomically replaces the user's trigger with one matching
// the given settings; disabled settings just remove the trigger.
func (s *Service) scheduleUserJob(settings *models.SchedulerSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return errors.New("scheduler not started")
	}

	userID := settings.UserID
	if id, ok := s.entries[userID]; ok {
		s.cron.Remove(id)
		delete(s.entries, userID)
	}

	if !settings.Enabled {
		s.log.Info("scheduler disabled for user", zap.String("user_id", userID))
		return nil
	}

	spec := cronSpec(settings)
	entryID, err := s.cron.AddFunc(spec, func() {
		s.runAutoApply(userID, 0)
	})
	if err != nil {
		return fmt.Errorf("add cron trigger %q: %w", spec, err)
	}
	s.entries[userID] = entryID

	next := s.cron.Entry(entryID).Next
	s.log.Info("scheduled auto-apply",
		zap.String("user_id", userID),
		zap.String("spec", spec),
		zap.Time("next_run", next))
	return nil
}

// checkAndRunMissedJob fires a catch-up run when today's scheduled instant
// already elapsed, no run happened today, and the miss is inside the grace
// window. The run history, not a trigger library's in-memory state, decides.
func (s *Service) checkAndRunMissedJob(ctx context.Context, settings *models.SchedulerSettings) {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		s.log.Error("invalid user timezone",
			zap.String("user_id", settings.UserID), zap.String("timezone", settings.Timezone))
		return
	}

	now := s.now().In(loc)

	// Settings weekday indices are mon=0..sun=6; Go's are sun=0..sat=6.
	today := (int(now.Weekday()) + 6) % 7
	scheduledToday := false
	for _, d := range models.ParseScheduleDays(settings.ScheduleDays) {
		if d == today {
			scheduledToday = true
			break
		}
	}
	if !scheduledToday {
		return
	}

	scheduledAt := time.Date(now.Year(), now.Month(), now.Day(),
		settings.ScheduleHour, settings.ScheduleMinute, 0, 0, loc)
	if now.Before(scheduledAt) {
		// The live trigger will handle it.
		return
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).UTC()
	count, err := s.runs.CountRunsSince(ctx, settings.UserID, midnight)
	if err != nil {
		s.log.Error("failed to check today's runs",
			zap.String("user_id", settings.UserID), zap.Error(err))
		return
	}
	if count > 0 {
		s.log.Info("already ran today, skipping missed-run check",
			zap.String("user_id", settings.UserID), zap.Int64("runs", count))
		return
	}

	elapsed := now.Sub(scheduledAt)
	if elapsed > missedRunGrace {
		s.log.Info("missed run too stale for catch-up",
			zap.String("user_id", settings.UserID),
			zap.Duration("elapsed", elapsed))
		return
	}

	s.log.Info("detected missed scheduled run, catching up",
		zap.String("user_id", settings.UserID),
		zap.Time("scheduled_at", scheduledAt))
	metrics.CatchupRuns.Inc()
	metrics.SchedulerLag.Observe(elapsed.Seconds())
	go s.runAutoApply(settings.UserID, 0)
}

// tryAcquire takes the per-user running flag. Re-entry is a no-op.
func (s *Service) tryAcquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[userID] {
		return false
	}
	s.running[userID] = true
	s.cancelRequested[userID] = false
	return true
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[userID] = false
	s.cancelRequested[userID] = false
}

// IsJobRunning reports whether a pipeline is in flight for the user.
func (s *Service) IsJobRunning(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[userID]
}

func (s *Service) isCancelRequested(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested[userID]
}

// CancelRunningJob requests cooperative cancellation. Returns whether a job
// was actually running.
func (s *Service) CancelRunningJob(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running[userID] {
		return false
	}
	s.cancelRequested[userID] = true
	s.log.Info("cancellation requested", zap.String("user_id", userID))
	return true
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// runAutoApply executes one pipeline run for the user under the running
// flag. maxOverride of 0 uses the stored per-run limit.
func (s *Service) runAutoApply(userID string, maxOverride int) {
	if !s.tryAcquire(userID) {
		s.log.Warn("auto-apply already running, skipping", zap.String("user_id", userID))
		return
	}
	// The flag clears on every exit path, cancel flag included.
	defer s.release(userID)

	ctx := s.runContext()
	startedAt := s.now().UTC()
	s.log.Info("starting auto-apply", zap.String("user_id", userID))

	userSettings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Info("no settings for user", zap.String("user_id", userID))
			return
		}
		s.log.Error("failed to load settings", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if !userSettings.Enabled && maxOverride == 0 {
		s.log.Info("auto-apply disabled", zap.String("user_id", userID))
		return
	}
	if userSettings.SearchCriteria == nil {
		s.log.Warn("no search criteria configured", zap.String("user_id", userID))
		return
	}

	maxApplications := userSettings.MaxApplicationsPerRun
	if maxOverride > 0 {
		maxApplications = maxOverride
	}

	run := &models.SchedulerRunHistory{
		UserID:    userID,
		StartedAt: startedAt,
		Status:    models.RunStatusRunning,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.log.Error("failed to create run record", zap.String("user_id", userID), zap.Error(err))
		return
	}

	req := apply.BulkRequestFromCriteria(userSettings.SearchCriteria, userSettings.ResumeID)

	sent, skipped, failed, terminal, message := s.consumeStream(ctx, userID, req, maxApplications, run.ID)

	status := models.RunStatusCompleted
	errorMessage := ""
	switch terminal {
	case apply.EventError:
		status = models.RunStatusFailed
		errorMessage = message
	case "":
		// No terminal event means the process is going down mid-run; leave
		// the row running for the next startup's reconciler.
		s.log.Warn("run ended without terminal event", zap.String("user_id", userID))
		return
	}

	if err := s.runs.FinishRun(ctx, run.ID, status, errorMessage); err != nil {
		s.log.Error("failed to finish run record", zap.Error(err))
	}
	if err := s.settings.RecordRunOutcome(ctx, userID, status, sent); err != nil {
		s.log.Error("failed to record run outcome", zap.Error(err))
	}

	duration := s.now().UTC().Sub(startedAt)
	metrics.RecordRun(status, duration.Seconds())
	s.log.Info("auto-apply finished",
		zap.String("user_id", userID), zap.String("status", status),
		zap.Int("sent", sent), zap.Int("skipped", skipped), zap.Int("failed", failed),
		zap.Duration("duration", duration))
}

// consumeStream drains the pipeline's progress sequence, persisting the
// counters through the ledger after every attached result so a crash loses
// at most one vacancy worth of counts.
func (s *Service) consumeStream(ctx context.Context, userID string, req apply.BulkRequest, maxApplications int, runID int64) (sent, skipped, failed int, terminal, message string) {
	stream := s.pipeline.BulkApplyStream(ctx, userID, req, maxApplications,
		func() bool { return s.isCancelRequested(userID) })

	for event := range stream {
		sent = event.SuccessCount
		skipped = event.SkippedCount
		failed = event.ErrorCount

		if event.Result != nil {
			if err := s.runs.UpdateRunProgress(ctx, runID, sent, skipped, failed); err != nil {
				// Counter loss is bounded to the last vacancy.
				s.log.Warn("failed to update run progress", zap.Error(err))
			}
			s.log.Debug("progress",
				zap.Int("current", event.Current), zap.Int("total", event.Total),
				zap.String("status", event.Result.Status),
				zap.String("vacancy", event.Result.VacancyTitle))
		}

		switch event.Event {
		case apply.EventComplete, apply.EventCancelled, apply.EventError:
			terminal = event.Event
			message = event.Message
			s.log.Info("bulk apply terminal event",
				zap.String("event", event.Event), zap.String("message", event.Message))
		}
	}
	return sent, skipped, failed, terminal, message
}

// TriggerManualRun starts a run outside the schedule, guarded by the same
// running flag.
func (s *Service) TriggerManualRun(ctx context.Context, userID string, maxApplications int) ManualRunResponse {
	userSettings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		return ManualRunResponse{Status: "error",
			Message: "No scheduler settings found. Please configure settings first."}
	}
	if userSettings.SearchCriteria == nil {
		return ManualRunResponse{Status: "error",
			Message: "No search criteria configured. Please configure settings first."}
	}
	if s.IsJobRunning(userID) {
		return ManualRunResponse{Status: "error",
			Message: "Auto-apply is already running for this user."}
	}

	if maxApplications <= 0 {
		maxApplications = userSettings.MaxApplicationsPerRun
	}
	go s.runAutoApply(userID, maxApplications)

	return ManualRunResponse{Status: "started",
		Message: fmt.Sprintf("Manual auto-apply run started with max %d applications.", maxApplications)}
}

// GetStatus snapshots the trigger machinery.
func (s *Service) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return Status{}
	}

	entries := s.cron.Entries()
	status := Status{SchedulerRunning: true, JobsCount: len(entries)}

	var earliest time.Time
	for _, e := range entries {
		if e.Next.IsZero() {
			continue
		}
		if earliest.IsZero() || e.Next.Before(earliest) {
			earliest = e.Next
		}
	}
	if !earliest.IsZero() {
		if loc, err := time.LoadLocation(s.cfg.SchedulerDefaultTimezone); err == nil {
			earliest = earliest.In(loc)
		}
		status.NextScheduledRun = &earliest
	}
	return status
}

// GetUserSettings returns the settings projection with the next fire time
// taken from the live trigger, so DST shifts are reflected.
func (s *Service) GetUserSettings(ctx context.Context, userID string) (*SettingsView, error) {
	userSettings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &SettingsView{
		UserID:  userSettings.UserID,
		Enabled: userSettings.Enabled,
		Schedule: ScheduleConfig{
			Hour:     userSettings.ScheduleHour,
			Minute:   userSettings.ScheduleMinute,
			Days:     userSettings.ScheduleDays,
			Timezone: userSettings.Timezone,
		},
		MaxApplicationsPerRun: userSettings.MaxApplicationsPerRun,
		SearchCriteria:        userSettings.SearchCriteria,
		LastRunAt:             userSettings.LastRunAt,
		LastRunStatus:         userSettings.LastRunStatus,
		LastRunApplications:   userSettings.LastRunApplications,
		TotalApplications:     userSettings.TotalApplications,
		CreatedAt:             userSettings.CreatedAt,
		UpdatedAt:             userSettings.UpdatedAt,
	}

	s.mu.Lock()
	if s.cron != nil && userSettings.Enabled {
		if entryID, ok := s.entries[userID]; ok {
			next := s.cron.Entry(entryID).Next
			if !next.IsZero() {
				if loc, err := time.LoadLocation(userSettings.Timezone); err == nil {
					next = next.In(loc)
				}
				view.NextRunAt = &next
			}
		}
	}
	s.mu.Unlock()

	return view, nil
}

// UpdateUserSettings upserts the settings row and atomically replaces the
// user's trigger to match.
func (s *Service) UpdateUserSettings(ctx context.Context, userID string, req UpdateRequest) (*SettingsView, error) {
	userSettings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		userSettings = &models.SchedulerSettings{
			UserID:         userID,
			ScheduleHour:   s.cfg.SchedulerDefaultHour,
			ScheduleMinute: s.cfg.SchedulerDefaultMinute,
			ScheduleDays:   s.cfg.SchedulerDefaultDays,
			Timezone:       s.cfg.SchedulerDefaultTimezone,
		}
	}

	userSettings.Enabled = req.Enabled
	if req.Schedule != nil {
		userSettings.ScheduleHour = req.Schedule.Hour
		userSettings.ScheduleMinute = req.Schedule.Minute
		userSettings.ScheduleDays = req.Schedule.Days
		userSettings.Timezone = req.Schedule.Timezone
	}
	if req.MaxApplicationsPerRun > 0 {
		userSettings.MaxApplicationsPerRun = req.MaxApplicationsPerRun
	} else if userSettings.MaxApplicationsPerRun == 0 {
		userSettings.MaxApplicationsPerRun = s.cfg.SchedulerMaxApplications
	}
	if req.SearchCriteria != nil {
		userSettings.SearchCriteria = req.SearchCriteria
		userSettings.ResumeID = req.SearchCriteria.ResumeID
	}

	if err := userSettings.Validate(); err != nil {
		return nil, err
	}

	if err := s.settings.UpsertSettings(ctx, userSettings); err != nil {
		return nil, err
	}

	if err := s.scheduleUserJob(userSettings); err != nil {
		s.log.Error("failed to reschedule user job",
			zap.String("user_id", userID), zap.Error(err))
	}

	return s.GetUserSettings(ctx, userID)
}

// GetRunHistory lists the most recent runs for a user.
func (s *Service) GetRunHistory(ctx context.Context, userID string, limit int) ([]models.SchedulerRunHistory, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.ListRuns(ctx, userID, limit)
}
