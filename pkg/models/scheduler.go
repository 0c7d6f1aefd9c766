package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultUserID is the owner of all rows in single-user deployments.
const DefaultUserID = "single_user"

// Run status values shared by SchedulerSettings.LastRunStatus and
// SchedulerRunHistory.Status.
const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
)

// Weekday names accepted in schedule_days, mon=0 .. sun=6.
var dayIndex = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

// ParseScheduleDays parses a comma-separated day list ("mon,tue,fri") into
// indices mon=0..sun=6. Unknown tokens are dropped; an empty result falls
// back to weekdays.
func ParseScheduleDays(days string) []int {
	var out []int
	for _, d := range strings.Split(strings.ToLower(days), ",") {
		if idx, ok := dayIndex[strings.TrimSpace(d)]; ok {
			out = append(out, idx)
		}
	}
	if len(out) == 0 {
		return []int{0, 1, 2, 3, 4}
	}
	return out
}

// ExperienceLevel values understood by the board's search API.
const (
	ExperienceNone        = "noExperience"
	ExperienceBetween1And3 = "between1And3"
	ExperienceBetween3And6 = "between3And6"
	ExperienceMoreThan6    = "moreThan6"
)

// SearchCriteria is the per-user vacancy search configuration, stored as a
// jsonb column on SchedulerSettings.
type SearchCriteria struct {
	Position         string   `json:"position"`
	ResumeID         string   `json:"resume_id"`
	Skills           string   `json:"skills,omitempty"`
	Experience       string   `json:"experience,omitempty"`
	ExcludeCompanies []string `json:"exclude_companies,omitempty"`
	SalaryMin        int      `json:"salary_min,omitempty"`
	RemoteOnly       bool     `json:"remote_only"`
	ExperienceLevel  string   `json:"experience_level,omitempty"`
	RequiredSkills   []string `json:"required_skills,omitempty"`
	ExcludedKeywords []string `json:"excluded_keywords,omitempty"`
	EmploymentTypes  []string `json:"employment_types,omitempty"`
	PreferredSchedule []string `json:"preferred_schedule,omitempty"`
	UseCoverLetter   bool     `json:"use_cover_letter"`
}

// NewSearchCriteria builds a criteria record, rejecting a blank position so
// that enabled settings can never carry an unusable search.
func NewSearchCriteria(position, resumeID string) (*SearchCriteria, error) {
	if strings.TrimSpace(position) == "" {
		return nil, errors.New("search criteria position must not be empty")
	}
	return &SearchCriteria{
		Position:       strings.TrimSpace(position),
		ResumeID:       resumeID,
		UseCoverLetter: true,
	}, nil
}

func (c *SearchCriteria) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, c)
}

func (c SearchCriteria) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// SchedulerSettings holds the per-user auto-apply configuration. One row per
// user, unique by user_id.
type SchedulerSettings struct {
	ID     int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID string `json:"user_id" gorm:"size:255;not null;uniqueIndex"`

	Enabled bool `json:"enabled" gorm:"not null;default:false"`

	ScheduleHour   int    `json:"schedule_hour" gorm:"not null;default:9"`
	ScheduleMinute int    `json:"schedule_minute" gorm:"not null;default:0"`
	ScheduleDays   string `json:"schedule_days" gorm:"size:50;not null;default:'mon,tue,wed,thu,fri'"`
	Timezone       string `json:"timezone" gorm:"size:50;not null;default:'Europe/Moscow'"`

	MaxApplicationsPerRun int             `json:"max_applications_per_run" gorm:"not null;default:10"`
	ResumeID              string          `json:"resume_id" gorm:"size:255"`
	SearchCriteria        *SearchCriteria `json:"search_criteria" gorm:"type:jsonb"`

	LastRunAt           *time.Time `json:"last_run_at"`
	LastRunStatus       string     `json:"last_run_status" gorm:"size:50"`
	LastRunApplications int        `json:"last_run_applications" gorm:"default:0"`
	TotalApplications   int        `json:"total_applications" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SchedulerSettings) TableName() string { return "scheduler_settings" }

// Validate enforces the cross-field invariant: enabled settings must carry a
// usable search.
func (s *SchedulerSettings) Validate() error {
	if s.ScheduleHour < 0 || s.ScheduleHour > 23 {
		return fmt.Errorf("schedule_hour out of range: %d", s.ScheduleHour)
	}
	if s.ScheduleMinute < 0 || s.ScheduleMinute > 59 {
		return fmt.Errorf("schedule_minute out of range: %d", s.ScheduleMinute)
	}
	if s.MaxApplicationsPerRun < 1 || s.MaxApplicationsPerRun > 50 {
		return fmt.Errorf("max_applications_per_run out of range: %d", s.MaxApplicationsPerRun)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	if s.Enabled {
		if s.SearchCriteria == nil || strings.TrimSpace(s.SearchCriteria.Position) == "" {
			return errors.New("enabled scheduler requires search criteria with a position")
		}
	}
	return nil
}

// SchedulerRunHistory is the append-only per-run ledger.
type SchedulerRunHistory struct {
	ID     int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID string `json:"user_id" gorm:"size:255;not null;index"`

	StartedAt  time.Time  `json:"started_at" gorm:"not null"`
	FinishedAt *time.Time `json:"finished_at"`

	Status               string `json:"status" gorm:"size:50;not null"`
	ApplicationsSent     int    `json:"applications_sent" gorm:"default:0"`
	ApplicationsSkipped  int    `json:"applications_skipped" gorm:"default:0"`
	ApplicationsFailed   int    `json:"applications_failed" gorm:"default:0"`

	ErrorMessage string  `json:"error_message" gorm:"type:text"`
	Details      Details `json:"details" gorm:"type:jsonb"`
}

func (SchedulerRunHistory) TableName() string { return "scheduler_run_history" }

// Details is an opaque structured payload attached to a run.
type Details map[string]interface{}

func (d *Details) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, d)
}

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}
