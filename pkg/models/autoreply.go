package models

import "time"

// AutoReplySettings configures the per-user recruiter auto-reply check.
type AutoReplySettings struct {
	ID     int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID string `json:"user_id" gorm:"size:255;not null;uniqueIndex"`

	Enabled              bool   `json:"enabled" gorm:"not null;default:false"`
	CheckIntervalMinutes int    `json:"check_interval_minutes" gorm:"not null;default:60"`
	Timezone             string `json:"timezone" gorm:"size:50;not null;default:'Europe/Moscow'"`

	ActiveHoursStart int    `json:"active_hours_start" gorm:"not null;default:9"`
	ActiveHoursEnd   int    `json:"active_hours_end" gorm:"not null;default:21"`
	ActiveDays       string `json:"active_days" gorm:"size:50;not null;default:'mon,tue,wed,thu,fri,sat,sun'"`

	// AutoSend controls whether generated replies are submitted to the board
	// or only recorded for review.
	AutoSend bool `json:"auto_send" gorm:"not null;default:false"`

	LastCheckAt            *time.Time `json:"last_check_at"`
	TotalRepliesSent       int        `json:"total_replies_sent" gorm:"not null;default:0"`
	TotalMessagesProcessed int        `json:"total_messages_processed" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AutoReplySettings) TableName() string { return "auto_reply_settings" }

// AutoReplyHistory records one generated reply to an employer message.
type AutoReplyHistory struct {
	ID            int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID        string `json:"user_id" gorm:"size:255;not null;index"`
	NegotiationID string `json:"negotiation_id" gorm:"size:255;not null;index"`
	VacancyID     string `json:"vacancy_id" gorm:"size:255"`

	EmployerMessage string `json:"employer_message" gorm:"type:text;not null"`
	GeneratedReply  string `json:"generated_reply" gorm:"type:text;not null"`
	WasSent         bool   `json:"was_sent" gorm:"not null;default:false"`

	EmployerName string `json:"employer_name" gorm:"size:500"`
	VacancyTitle string `json:"vacancy_title" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at"`
}

func (AutoReplyHistory) TableName() string { return "auto_reply_history" }
