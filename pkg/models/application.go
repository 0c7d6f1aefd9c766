package models

import "time"

// ApplicationHistory is the authoritative record of submitted applications,
// independent of what the board reports. Indexed by (vacancy_id, resume_id).
type ApplicationHistory struct {
	ID        int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	VacancyID string `json:"vacancy_id" gorm:"size:255;not null;index:idx_vacancy_resume"`
	ResumeID  string `json:"resume_id" gorm:"size:255;not null;index:idx_vacancy_resume"`
	UserID    string `json:"user_id" gorm:"size:255;index"`

	// AppliedAt is stored as naive UTC.
	AppliedAt time.Time `json:"applied_at" gorm:"index"`

	BoardResponse Details `json:"board_response" gorm:"type:jsonb"`
	Status        string  `json:"status" gorm:"size:50;not null;default:'success'"`
}

func (ApplicationHistory) TableName() string { return "application_history" }
