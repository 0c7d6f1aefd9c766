package apply

import "github.com/frostwillmott/applybot/pkg/models"

// Request carries the candidate-side inputs of a single application.
type Request struct {
	Position   string `json:"position"`
	Resume     string `json:"resume"`
	Skills     string `json:"skills"`
	Experience string `json:"experience"`
	ResumeID   string `json:"resume_id"`
}

// BulkRequest adds the search criteria driving a bulk run.
type BulkRequest struct {
	Request

	ExcludeCompanies  []string `json:"exclude_companies,omitempty"`
	SalaryMin         int      `json:"salary_min,omitempty"`
	RemoteOnly        bool     `json:"remote_only"`
	ExperienceLevel   string   `json:"experience_level,omitempty"`
	RequiredSkills    []string `json:"required_skills,omitempty"`
	ExcludedKeywords  []string `json:"excluded_keywords,omitempty"`
	EmploymentTypes   []string `json:"employment_types,omitempty"`
	PreferredSchedule []string `json:"preferred_schedule,omitempty"`
	UseCoverLetter    bool     `json:"use_cover_letter"`
}

// BulkRequestFromCriteria projects stored search criteria into a run
// request. The settings-level resume id wins over the criteria one.
func BulkRequestFromCriteria(c *models.SearchCriteria, resumeID string) BulkRequest {
	if resumeID == "" {
		resumeID = c.ResumeID
	}
	return BulkRequest{
		Request: Request{
			Position:   c.Position,
			Skills:     c.Skills,
			Experience: c.Experience,
			ResumeID:   resumeID,
		},
		ExcludeCompanies:  c.ExcludeCompanies,
		SalaryMin:         c.SalaryMin,
		RemoteOnly:        c.RemoteOnly,
		ExperienceLevel:   c.ExperienceLevel,
		RequiredSkills:    c.RequiredSkills,
		ExcludedKeywords:  c.ExcludedKeywords,
		EmploymentTypes:   c.EmploymentTypes,
		PreferredSchedule: c.PreferredSchedule,
		UseCoverLetter:    c.UseCoverLetter,
	}
}
