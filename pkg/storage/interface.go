package storage

import (
	"context"
	"errors"
	"time"

	"github.com/frostwillmott/applybot/pkg/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// SettingsStore is the data access layer for per-user scheduler settings.
type SettingsStore interface {
	// GetSettings retrieves the settings row for a user.
	GetSettings(ctx context.Context, userID string) (*models.SchedulerSettings, error)

	// ListEnabledSettings returns all rows with enabled=true.
	ListEnabledSettings(ctx context.Context) ([]models.SchedulerSettings, error)

	// UpsertSettings creates or replaces the settings row for its user.
	UpsertSettings(ctx context.Context, settings *models.SchedulerSettings) error

	// RecordRunOutcome updates the statistics block after a run.
	RecordRunOutcome(ctx context.Context, userID, status string, sent int) error
}

// RunHistoryStore is the data access layer for the run ledger.
type RunHistoryStore interface {
	CreateRun(ctx context.Context, run *models.SchedulerRunHistory) error

	// UpdateRunProgress writes all three counters in one transaction.
	UpdateRunProgress(ctx context.Context, runID int64, sent, skipped, failed int) error

	// FinishRun sets the terminal status and finished_at on a run.
	FinishRun(ctx context.Context, runID int64, status, errorMessage string) error

	// MarkStaleRunsInterrupted rewrites every running row to interrupted and
	// returns how many were touched. Called once at startup.
	MarkStaleRunsInterrupted(ctx context.Context) (int64, error)

	// ListRuns returns the most recent runs for a user, newest first.
	ListRuns(ctx context.Context, userID string, limit int) ([]models.SchedulerRunHistory, error)

	// CountRunsSince counts runs for a user started at or after the cutoff.
	CountRunsSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// ApplicationStore is the data access layer for application history.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app *models.ApplicationHistory) error

	// HasApplication reports whether a (vacancy, resume) pair was already
	// submitted by this system.
	HasApplication(ctx context.Context, vacancyID, resumeID string) (bool, error)

	ListApplications(ctx context.Context, userID string, limit int) ([]models.ApplicationHistory, error)
}

// TokenStore is the data access layer for board OAuth tokens.
type TokenStore interface {
	// SaveToken replaces all previous tokens with the given one.
	SaveToken(ctx context.Context, token *models.Token) error

	// LatestToken returns the most recently obtained token.
	LatestToken(ctx context.Context) (*models.Token, error)
}

// AutoReplyStore is the data access layer for the auto-reply module.
type AutoReplyStore interface {
	GetAutoReplySettings(ctx context.Context, userID string) (*models.AutoReplySettings, error)
	ListEnabledAutoReplySettings(ctx context.Context) ([]models.AutoReplySettings, error)
	UpsertAutoReplySettings(ctx context.Context, settings *models.AutoReplySettings) error
	RecordAutoReplyCheck(ctx context.Context, userID string, processed, replied int) error

	CreateAutoReply(ctx context.Context, entry *models.AutoReplyHistory) error
	HasAutoReply(ctx context.Context, negotiationID string) (bool, error)
	ListAutoReplies(ctx context.Context, userID string, limit int) ([]models.AutoReplyHistory, error)
}

// VacancyCache is the advisory TTL cache of vacancy IDs already considered.
type VacancyCache interface {
	// FilterNew returns the subset of ids not currently cached.
	FilterNew(ctx context.Context, ids []string) ([]string, error)

	// AddMany marks each id with a fresh TTL.
	AddMany(ctx context.Context, ids []string) error
}
