package scheduler

import (
	"time"

	"github.com/frostwillmott/applybot/pkg/models"
)

// ScheduleConfig is the cron-like schedule block of the settings API.
type ScheduleConfig struct {
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Days     string `json:"days"`
	Timezone string `json:"timezone"`
}

// UpdateRequest is the settings upsert payload.
type UpdateRequest struct {
	Enabled               bool                   `json:"enabled"`
	Schedule              *ScheduleConfig        `json:"schedule,omitempty"`
	MaxApplicationsPerRun int                    `json:"max_applications_per_run"`
	SearchCriteria        *models.SearchCriteria `json:"search_criteria,omitempty"`
}

// SettingsView is the settings projection returned to clients, including
// the precise next fire time computed from the live trigger.
type SettingsView struct {
	UserID                string                 `json:"user_id"`
	Enabled               bool                   `json:"enabled"`
	Schedule              ScheduleConfig         `json:"schedule"`
	MaxApplicationsPerRun int                    `json:"max_applications_per_run"`
	SearchCriteria        *models.SearchCriteria `json:"search_criteria"`

	LastRunAt           *time.Time `json:"last_run_at"`
	LastRunStatus       string     `json:"last_run_status"`
	LastRunApplications int        `json:"last_run_applications"`
	TotalApplications   int        `json:"total_applications"`

	NextRunAt *time.Time `json:"next_run_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status is the scheduler-wide snapshot.
type Status struct {
	SchedulerRunning bool       `json:"scheduler_running"`
	JobsCount        int        `json:"jobs_count"`
	NextScheduledRun *time.Time `json:"next_scheduled_run"`
}

// ManualRunResponse reports the outcome of a manual trigger.
type ManualRunResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
