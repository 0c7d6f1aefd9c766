package hh

import (
	"encoding/json"
	"strings"
)

// IDName is the board's ubiquitous {id, name} pair.
type IDName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Employer identifies the company behind a vacancy.
type Employer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Salary is the advertised compensation range.
type Salary struct {
	From     *int   `json:"from"`
	To       *int   `json:"to"`
	Currency string `json:"currency"`
}

// Snippet carries the search-result excerpts.
type Snippet struct {
	Requirement    string `json:"requirement"`
	Responsibility string `json:"responsibility"`
}

// KeySkill is one named skill attached to a vacancy.
type KeySkill struct {
	Name string `json:"name"`
}

// Test describes an employer-attached assessment.
type Test struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Required bool   `json:"required"`
}

// BrandedTemplate is present on vacancies with employer-hosted application
// forms.
type BrandedTemplate struct {
	ExternalFormURL string `json:"external_form_url"`
}

// Vacancy is one job posting. Payloads are optional-everywhere; absent
// fields decode to zero values or nil pointers.
type Vacancy struct {
	ID                     string           `json:"id"`
	Name                   string           `json:"name"`
	Archived               bool             `json:"archived"`
	Employer               Employer         `json:"employer"`
	Relations              []string         `json:"relations"`
	ResponseLetterRequired bool             `json:"response_letter_required"`
	Test                   *Test            `json:"test"`
	BrandedTemplate        *BrandedTemplate `json:"branded_template"`
	Description            string           `json:"description"`
	KeySkills              []KeySkill       `json:"key_skills"`
	Snippet                *Snippet         `json:"snippet"`
	Schedule               *IDName          `json:"schedule"`
	Employment             *IDName          `json:"employment"`
	Salary                 *Salary          `json:"salary"`
	AlternateURL           string           `json:"alternate_url"`
}

// HasResponse reports whether the candidate already has an application
// thread on this vacancy.
func (v *Vacancy) HasResponse() bool {
	for _, rel := range v.Relations {
		if rel == "got_response" || rel == "response" {
			return true
		}
	}
	return false
}

// SnippetRequirement is a nil-safe accessor.
func (v *Vacancy) SnippetRequirement() string {
	if v.Snippet == nil {
		return ""
	}
	return v.Snippet.Requirement
}

// SnippetResponsibility is a nil-safe accessor.
func (v *Vacancy) SnippetResponsibility() string {
	if v.Snippet == nil {
		return ""
	}
	return v.Snippet.Responsibility
}

// SkillNames returns the vacancy's key skills as plain strings.
func (v *Vacancy) SkillNames() []string {
	names := make([]string, 0, len(v.KeySkills))
	for _, s := range v.KeySkills {
		names = append(names, s.Name)
	}
	return names
}

// SearchResponse is one page of vacancy search results.
type SearchResponse struct {
	Items   []Vacancy `json:"items"`
	Found   int       `json:"found"`
	Pages   int       `json:"pages"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
}

// SearchParams are the server-side filters of GET /vacancies.
type SearchParams struct {
	Text           string
	Area           string
	Experience     string
	Employment     string
	Schedule       string
	Salary         int
	Currency       string
	OnlyWithSalary bool
	Page           int
	PerPage        int
}

// Question is one screening question attached to a vacancy.
type Question struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Required    bool   `json:"required"`
	RequiredURL string `json:"required_url"`
	URL         string `json:"url"`
}

// QuestionsResponse wraps the screening-question listing.
type QuestionsResponse struct {
	Items []Question `json:"items"`
}

// ResumeExperience is one position in the resume's work history.
type ResumeExperience struct {
	Company     string `json:"company"`
	Position    string `json:"position"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

// ResumeContact is one contact record; Value is a string for emails and an
// object for phones.
type ResumeContact struct {
	Type  IDName          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// StringValue decodes the contact value when it is a plain string.
func (c *ResumeContact) StringValue() string {
	var s string
	if err := json.Unmarshal(c.Value, &s); err != nil {
		return ""
	}
	return s
}

// Resume is the candidate profile as served by the board.
type Resume struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	FirstName  string             `json:"first_name"`
	LastName   string             `json:"last_name"`
	Experience []ResumeExperience `json:"experience"`
	SkillSet   []string           `json:"skill_set"`
	Skills     string             `json:"skills"`
	Contact    []ResumeContact    `json:"contact"`
	Education  *ResumeEducation   `json:"education"`
}

// ResumeEducation summarizes the education block.
type ResumeEducation struct {
	Primary []struct {
		Name string `json:"name"`
	} `json:"primary"`
}

// FullName joins first and last name, skipping blanks.
func (r *Resume) FullName() string {
	parts := make([]string, 0, 2)
	if r.FirstName != "" {
		parts = append(parts, r.FirstName)
	}
	if r.LastName != "" {
		parts = append(parts, r.LastName)
	}
	return strings.Join(parts, " ")
}

// Email returns the first email contact, if any.
func (r *Resume) Email() string {
	for _, c := range r.Contact {
		if c.Type.ID == "email" {
			if v := c.StringValue(); v != "" {
				return v
			}
		}
	}
	return ""
}

// ResumesResponse wraps GET /resumes/mine.
type ResumesResponse struct {
	Items []Resume `json:"items"`
}

// NegotiationCounters carries per-thread unread counts.
type NegotiationCounters struct {
	UnreadMessages int `json:"unread_messages"`
}

// Negotiation is one application thread.
type Negotiation struct {
	ID       string               `json:"id"`
	State    *IDName              `json:"state"`
	Vacancy  *Vacancy             `json:"vacancy"`
	Counters *NegotiationCounters `json:"counters"`
}

// HasUnread reports whether the employer wrote since the candidate last read
// the thread.
func (n *Negotiation) HasUnread() bool {
	return n.Counters != nil && n.Counters.UnreadMessages > 0
}

// MessageAuthor identifies who wrote a negotiation message.
type MessageAuthor struct {
	ParticipantType string `json:"participant_type"`
}

// Message is one chat message in a negotiation thread.
type Message struct {
	ID     string        `json:"id"`
	Text   string        `json:"text"`
	Author MessageAuthor `json:"author"`
}

// MessagesResponse wraps GET /negotiations/{id}/messages.
type MessagesResponse struct {
	Items []Message `json:"items"`
}

// NegotiationsResponse is one page of GET /negotiations.
type NegotiationsResponse struct {
	Items   []Negotiation `json:"items"`
	Pages   int           `json:"pages"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// UserInfo is the GET /me projection.
type UserInfo struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// ApplySubmission is the outbound application payload.
type ApplySubmission struct {
	VacancyID string
	ResumeID  string
	// Message is the cover letter; empty means none.
	Message string
	// Answers maps screening question IDs to generated answers.
	Answers map[string]string
}
