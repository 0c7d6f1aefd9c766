package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/frostwillmott/applybot/pkg/models"
	"github.com/frostwillmott/applybot/pkg/storage"
)

// Store is the GORM-backed implementation of every durable store interface.
type Store struct {
	db *gorm.DB
}

// NewStore connects to Postgres and ensures the schema.
func NewStore(databaseURL string) (*Store, error) {
	config := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.Open(databaseURL), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(
		&models.SchedulerSettings{},
		&models.SchedulerRunHistory{},
		&models.ApplicationHistory{},
		&models.Token{},
		&models.AutoReplySettings{},
		&models.AutoReplyHistory{},
	)
	if err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- SettingsStore ---

func (s *Store) GetSettings(ctx context.Context, userID string) (*models.SchedulerSettings, error) {
	var settings models.SchedulerSettings
	result := s.db.WithContext(ctx).First(&settings, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, result.Error
	}
	return &settings, nil
}

func (s *Store) ListEnabledSettings(ctx context.Context) ([]models.SchedulerSettings, error) {
	var all []models.SchedulerSettings
	result := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&all)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list enabled settings: %w", result.Error)
	}
	return all, nil
}

func (s *Store) UpsertSettings(ctx context.Context, settings *models.SchedulerSettings) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "schedule_hour", "schedule_minute", "schedule_days",
			"timezone", "max_applications_per_run", "resume_id",
			"search_criteria", "updated_at",
		}),
	}).Create(settings)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert settings: %w", result.Error)
	}
	return nil
}

func (s *Store) RecordRunOutcome(ctx context.Context, userID, status string, sent int) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"last_run_at":           now,
		"last_run_status":       status,
		"last_run_applications": sent,
	}
	if sent > 0 {
		updates["total_applications"] = gorm.Expr("total_applications + ?", sent)
	}
	result := s.db.WithContext(ctx).
		Model(&models.SchedulerSettings{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to record run outcome: %w", result.Error)
	}
	return nil
}

// --- RunHistoryStore ---

func (s *Store) CreateRun(ctx context.Context, run *models.SchedulerRunHistory) error {
	result := s.db.WithContext(ctx).Create(run)
	if result.Error != nil {
		return fmt.Errorf("failed to create run: %w", result.Error)
	}
	return nil
}

func (s *Store) UpdateRunProgress(ctx context.Context, runID int64, sent, skipped, failed int) error {
	result := s.db.WithContext(ctx).
		Model(&models.SchedulerRunHistory{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"applications_sent":    sent,
			"applications_skipped": skipped,
			"applications_failed":  failed,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update run progress: %w", result.Error)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID int64, status, errorMessage string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.SchedulerRunHistory{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"finished_at":   now,
			"status":        status,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) MarkStaleRunsInterrupted(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.SchedulerRunHistory{}).
		Where("status = ?", models.RunStatusRunning).
		Updates(map[string]interface{}{
			"finished_at":   now,
			"status":        models.RunStatusInterrupted,
			"error_message": "App restarted while job was running",
		})
	return result.RowsAffected, result.Error
}

func (s *Store) ListRuns(ctx context.Context, userID string, limit int) ([]models.SchedulerRunHistory, error) {
	var runs []models.SchedulerRunHistory
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at desc").
		Limit(limit).
		Find(&runs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list runs: %w", result.Error)
	}
	return runs, nil
}

func (s *Store) CountRunsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&models.SchedulerRunHistory{}).
		Where("user_id = ? AND started_at >= ?", userID, since).
		Count(&count)
	return count, result.Error
}

// --- ApplicationStore ---

func (s *Store) CreateApplication(ctx context.Context, app *models.ApplicationHistory) error {
	result := s.db.WithContext(ctx).Create(app)
	if result.Error != nil {
		return fmt.Errorf("failed to create application record: %w", result.Error)
	}
	return nil
}

func (s *Store) HasApplication(ctx context.Context, vacancyID, resumeID string) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&models.ApplicationHistory{}).
		Where("vacancy_id = ? AND resume_id = ?", vacancyID, resumeID).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

func (s *Store) ListApplications(ctx context.Context, userID string, limit int) ([]models.ApplicationHistory, error) {
	var apps []models.ApplicationHistory
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("applied_at desc").
		Limit(limit).
		Find(&apps)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list applications: %w", result.Error)
	}
	return apps, nil
}

// --- TokenStore ---

func (s *Store) SaveToken(ctx context.Context, token *models.Token) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Token{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous tokens: %w", err)
		}
		if err := tx.Create(token).Error; err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		return nil
	})
}

func (s *Store) LatestToken(ctx context.Context) (*models.Token, error) {
	var token models.Token
	result := s.db.WithContext(ctx).Order("obtained_at desc").First(&token)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, result.Error
	}
	return &token, nil
}

// --- AutoReplyStore ---

func (s *Store) GetAutoReplySettings(ctx context.Context, userID string) (*models.AutoReplySettings, error) {
	var settings models.AutoReplySettings
	result := s.db.WithContext(ctx).First(&settings, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, result.Error
	}
	return &settings, nil
}

func (s *Store) ListEnabledAutoReplySettings(ctx context.Context) ([]models.AutoReplySettings, error) {
	var all []models.AutoReplySettings
	result := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&all)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list auto-reply settings: %w", result.Error)
	}
	return all, nil
}

func (s *Store) UpsertAutoReplySettings(ctx context.Context, settings *models.AutoReplySettings) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "check_interval_minutes", "timezone",
			"active_hours_start", "active_hours_end", "active_days",
			"auto_send", "updated_at",
		}),
	}).Create(settings)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert auto-reply settings: %w", result.Error)
	}
	return nil
}

func (s *Store) RecordAutoReplyCheck(ctx context.Context, userID string, processed, replied int) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.AutoReplySettings{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"last_check_at":            now,
			"total_messages_processed": gorm.Expr("total_messages_processed + ?", processed),
			"total_replies_sent":       gorm.Expr("total_replies_sent + ?", replied),
		})
	return result.Error
}

func (s *Store) CreateAutoReply(ctx context.Context, entry *models.AutoReplyHistory) error {
	result := s.db.WithContext(ctx).Create(entry)
	if result.Error != nil {
		return fmt.Errorf("failed to create auto-reply record: %w", result.Error)
	}
	return nil
}

func (s *Store) HasAutoReply(ctx context.Context, negotiationID string) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&models.AutoReplyHistory{}).
		Where("negotiation_id = ?", negotiationID).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

func (s *Store) ListAutoReplies(ctx context.Context, userID string, limit int) ([]models.AutoReplyHistory, error) {
	var entries []models.AutoReplyHistory
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list auto-replies: %w", result.Error)
	}
	return entries, nil
}
