package autoreply

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	config "github.com/frostwillmott/applybot/configs"
	"github.com/frostwillmott/applybot/pkg/hh"
	"github.com/frostwillmott/applybot/pkg/llm"
	"github.com/frostwillmott/applybot/pkg/metrics"
	"github.com/frostwillmott/applybot/pkg/models"
	"github.com/frostwillmott/applybot/pkg/storage"
)

// BoardClient is the slice of the board API the auto-reply check consumes.
type BoardClient interface {
	GetNegotiationsWithUnread(ctx context.Context) ([]hh.Negotiation, error)
	GetNegotiationMessages(ctx context.Context, negotiationID string) ([]hh.Message, error)
	SendNegotiationMessage(ctx context.Context, negotiationID, text string) error
}

// Service periodically checks application threads for unread employer
// messages and drafts (optionally sends) replies.
type Service struct {
	cfg   *config.Config
	store storage.AutoReplyStore
	board BoardClient
	llm   llm.Provider
	log   *zap.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running map[string]bool

	now func() time.Time
	// pause between processed threads; tests shrink it.
	pause time.Duration
}

// NewService wires the auto-reply module.
func NewService(cfg *config.Config, store storage.AutoReplyStore, board BoardClient, provider llm.Provider, log *zap.Logger) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		board:   board,
		llm:     provider,
		log:     log.With(zap.String("component", "autoreply")),
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
		now:     time.Now,
		pause:   2 * time.Second,
	}
}

// Start brings up the interval triggers for every enabled user.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return nil
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.cron = cron.New()
	s.cron.Start()
	s.mu.Unlock()
	s.log.Info("auto-reply scheduler started")

	enabled, err := s.store.ListEnabledAutoReplySettings(ctx)
	if err != nil {
		return fmt.Errorf("load auto-reply settings: %w", err)
	}
	for i := range enabled {
		userSettings := enabled[i]
		if err := s.scheduleUserJob(&userSettings); err != nil {
			s.log.Error("failed to schedule auto-reply job",
				zap.String("user_id", userSettings.UserID), zap.Error(err))
		}
	}
	return nil
}

// Stop shuts the triggers down without waiting for in-flight checks.
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
	s.log.Info("auto-reply scheduler stopped")
}

func (s *Service) scheduleUserJob(settings *models.AutoReplySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return errors.New("auto-reply scheduler not started")
	}

	userID := settings.UserID
	if id, ok := s.entries[userID]; ok {
		s.cron.Remove(id)
		delete(s.entries, userID)
	}
	if !settings.Enabled {
		return nil
	}

	interval := settings.CheckIntervalMinutes
	if interval < 5 {
		interval = 5
	}
	spec := fmt.Sprintf("@every %dm", interval)
	entryID, err := s.cron.AddFunc(spec, func() {
		s.runCheck(userID)
	})
	if err != nil {
		return fmt.Errorf("add auto-reply trigger: %w", err)
	}
	s.entries[userID] = entryID
	s.log.Info("scheduled auto-reply check",
		zap.String("user_id", userID), zap.Int("interval_minutes", interval))
	return nil
}

// UpdateUserSettings upserts the settings and replaces the trigger.
func (s *Service) UpdateUserSettings(ctx context.Context, settings *models.AutoReplySettings) error {
	if err := s.store.UpsertAutoReplySettings(ctx, settings); err != nil {
		return err
	}
	return s.scheduleUserJob(settings)
}

// isActiveTime reports whether the user's configured window covers now.
func (s *Service) isActiveTime(settings *models.AutoReplySettings) bool {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		// Default to active when the window cannot be evaluated.
		return true
	}
	now := s.now().In(loc)

	today := (int(now.Weekday()) + 6) % 7
	active := false
	for _, d := range models.ParseScheduleDays(settings.ActiveDays) {
		if d == today {
			active = true
			break
		}
	}
	if !active {
		return false
	}
	return settings.ActiveHoursStart <= now.Hour() && now.Hour() < settings.ActiveHoursEnd
}

func (s *Service) tryAcquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[userID] {
		return false
	}
	s.running[userID] = true
	return true
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[userID] = false
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// runCheck executes one auto-reply pass for a user.
func (s *Service) runCheck(userID string) {
	if !s.tryAcquire(userID) {
		s.log.Warn("auto-reply check already running", zap.String("user_id", userID))
		return
	}
	defer s.release(userID)

	ctx := s.runContext()

	settings, err := s.store.GetAutoReplySettings(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("failed to load auto-reply settings", zap.Error(err))
		}
		return
	}
	if !settings.Enabled {
		return
	}
	if !s.isActiveTime(settings) {
		s.log.Debug("outside active hours, skipping check", zap.String("user_id", userID))
		return
	}

	processed, replied := s.processUnread(ctx, userID, settings.AutoSend)

	if err := s.store.RecordAutoReplyCheck(ctx, userID, processed, replied); err != nil {
		s.log.Error("failed to record auto-reply check", zap.Error(err))
	}
	s.log.Info("auto-reply check completed",
		zap.String("user_id", userID),
		zap.Int("processed", processed), zap.Int("replied", replied))
}

// processUnread walks the unread threads, generating a reply for the latest
// employer message in each.
func (s *Service) processUnread(ctx context.Context, userID string, autoSend bool) (processed, replied int) {
	negotiations, err := s.board.GetNegotiationsWithUnread(ctx)
	if err != nil {
		s.log.Error("failed to list unread negotiations", zap.Error(err))
		return 0, 0
	}

	for _, negotiation := range negotiations {
		if ctx.Err() != nil {
			return processed, replied
		}
		if negotiation.ID == "" {
			continue
		}

		messages, err := s.board.GetNegotiationMessages(ctx, negotiation.ID)
		if err != nil || len(messages) == 0 {
			continue
		}

		var employerMessage *hh.Message
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Author.ParticipantType == "employer" {
				employerMessage = &messages[i]
				break
			}
		}
		if employerMessage == nil || employerMessage.Text == "" {
			continue
		}

		if already, err := s.store.HasAutoReply(ctx, negotiation.ID); err == nil && already {
			continue
		}

		processed++

		vacancyTitle := ""
		vacancyID := ""
		employerName := ""
		if negotiation.Vacancy != nil {
			vacancyTitle = negotiation.Vacancy.Name
			vacancyID = negotiation.Vacancy.ID
			employerName = negotiation.Vacancy.Employer.Name
		}

		reply, err := s.llm.GenerateReply(ctx, employerMessage.Text, vacancyTitle, &llm.CandidateProfile{})
		if err != nil || reply == "" {
			s.log.Error("failed to generate reply",
				zap.String("negotiation_id", negotiation.ID), zap.Error(err))
			continue
		}

		wasSent := false
		if autoSend {
			if err := s.board.SendNegotiationMessage(ctx, negotiation.ID, reply); err != nil {
				s.log.Error("failed to send reply",
					zap.String("negotiation_id", negotiation.ID), zap.Error(err))
			} else {
				wasSent = true
				replied++
				s.log.Info("auto-replied",
					zap.String("negotiation_id", negotiation.ID),
					zap.String("vacancy", vacancyTitle))
			}
		}
		metrics.AutoRepliesTotal.WithLabelValues(fmt.Sprintf("%t", wasSent)).Inc()

		entry := &models.AutoReplyHistory{
			UserID:          userID,
			NegotiationID:   negotiation.ID,
			VacancyID:       vacancyID,
			EmployerMessage: employerMessage.Text,
			GeneratedReply:  reply,
			WasSent:         wasSent,
			EmployerName:    employerName,
			VacancyTitle:    vacancyTitle,
			CreatedAt:       s.now().UTC(),
		}
		if err := s.store.CreateAutoReply(ctx, entry); err != nil {
			s.log.Error("failed to save reply history", zap.Error(err))
		}

		// Brief pause between threads keeps the board quiet.
		select {
		case <-ctx.Done():
			return processed, replied
		case <-time.After(s.pause):
		}
	}

	return processed, replied
}

// GetSettings returns the user's auto-reply configuration.
func (s *Service) GetSettings(ctx context.Context, userID string) (*models.AutoReplySettings, error) {
	return s.store.GetAutoReplySettings(ctx, userID)
}

// GetHistory lists recent generated replies.
func (s *Service) GetHistory(ctx context.Context, userID string, limit int) ([]models.AutoReplyHistory, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListAutoReplies(ctx, userID, limit)
}
