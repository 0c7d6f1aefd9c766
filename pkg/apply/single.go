package apply

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/hh"
	"github.com/frostwillmott/applybot/pkg/llm"
	"github.com/frostwillmott/applybot/pkg/models"
)

var urlRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

// externalLinkPhrases mark screening questions that redirect the candidate
// to an off-board assessment; those cannot be answered in the form.
var externalLinkPhrases = []string{
	"пройдите тест по ссылке",
	"перейдите по ссылке",
	"complete the test at",
	"follow the link",
}

// isAnswerableQuestion reports whether a screening question can be answered
// inline at submission time.
func isAnswerableQuestion(q hh.Question, siteURL string) bool {
	if q.RequiredURL != "" || q.URL != "" {
		return false
	}
	lower := strings.ToLower(q.Text)
	for _, phrase := range externalLinkPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	for _, u := range urlRe.FindAllString(q.Text, -1) {
		if !strings.HasPrefix(u, siteURL) {
			return false
		}
	}
	return true
}

// requiresExternalTest detects employer-hosted assessments that make inline
// application pointless.
func requiresExternalTest(vacancy *hh.Vacancy, siteURL string) bool {
	if vacancy.Test != nil {
		if vacancy.Test.Required {
			return true
		}
		if vacancy.Test.URL != "" && !strings.HasPrefix(vacancy.Test.URL, siteURL) {
			return true
		}
	}
	if vacancy.BrandedTemplate != nil && vacancy.BrandedTemplate.ExternalFormURL != "" {
		return true
	}
	return false
}

// ApplyToVacancy runs the full single-vacancy application flow: local
// validation, duplicate check, eligibility, artifact generation, submission
// and bookkeeping. It never returns an error; failures become Result values.
func (s *Service) ApplyToVacancy(ctx context.Context, userID, vacancyID string, req *BulkRequest) *Result {
	if v := ValidateRequest(&req.Request); !v.Valid {
		return &Result{VacancyID: vacancyID, Status: StatusError, Reason: v.Error}
	}

	if exists, err := s.apps.HasApplication(ctx, vacancyID, req.ResumeID); err != nil {
		s.log.Warn("application history lookup failed", zap.Error(err))
	} else if exists {
		return &Result{VacancyID: vacancyID, Status: StatusSkipped, Reason: "Already applied to this vacancy"}
	}

	vacancy, err := s.board.GetVacancy(ctx, vacancyID)
	if err != nil {
		return &Result{VacancyID: vacancyID, Status: StatusError, Reason: fmt.Sprintf("Failed to fetch vacancy: %v", err)}
	}

	if vacancy.Archived {
		return s.skipped(vacancy, "Vacancy is archived")
	}
	if vacancy.HasResponse() {
		return s.skipped(vacancy, "Already applied to this vacancy")
	}
	if vacancy.ResponseLetterRequired && !req.UseCoverLetter {
		return s.skipped(vacancy, "Vacancy requires cover letter")
	}
	if requiresExternalTest(vacancy, s.board.SiteURL()) {
		return s.skipped(vacancy, "Vacancy requires external test")
	}

	profile := s.buildProfile(ctx, req)

	var coverLetter string
	if req.UseCoverLetter {
		coverLetter, err = s.llm.GenerateCoverLetter(ctx, vacancy, profile)
		if err != nil {
			return &Result{VacancyID: vacancyID, Status: StatusError, VacancyTitle: vacancy.Name,
				Reason: fmt.Sprintf("Cover letter generation failed: %v", err)}
		}
		if err := ValidateCoverLetter(coverLetter); err != nil {
			return &Result{VacancyID: vacancyID, Status: StatusError, VacancyTitle: vacancy.Name,
				Reason: err.Error()}
		}
	}

	questions, err := s.board.GetVacancyQuestions(ctx, vacancyID)
	if err != nil {
		return &Result{VacancyID: vacancyID, Status: StatusError, VacancyTitle: vacancy.Name, Reason: err.Error()}
	}
	answerable := questions[:0:0]
	for _, q := range questions {
		if isAnswerableQuestion(q, s.board.SiteURL()) {
			answerable = append(answerable, q)
		}
	}

	var answers map[string]string
	if len(answerable) > 0 {
		answers, err = s.llm.AnswerScreeningQuestions(ctx, answerable, vacancy, profile)
		if err != nil {
			return &Result{VacancyID: vacancyID, Status: StatusError, VacancyTitle: vacancy.Name,
				Reason: fmt.Sprintf("Screening answers failed: %v", err)}
		}
	}

	boardResp, err := s.board.Apply(ctx, hh.ApplySubmission{
		VacancyID: vacancyID,
		ResumeID:  req.ResumeID,
		Message:   coverLetter,
		Answers:   answers,
	})
	if err != nil {
		return s.classifySubmissionError(vacancy, err)
	}

	record := &models.ApplicationHistory{
		VacancyID:     vacancyID,
		ResumeID:      req.ResumeID,
		UserID:        userID,
		AppliedAt:     time.Now().UTC(),
		BoardResponse: models.Details(boardResp),
		Status:        StatusSuccess,
	}
	if err := s.apps.CreateApplication(ctx, record); err != nil {
		// The application went through; losing the local record is logged,
		// not surfaced as a failure.
		s.log.Error("failed to record application history",
			zap.String("vacancy_id", vacancyID), zap.Error(err))
	}

	s.archiveLetter(ctx, vacancyID, coverLetter, answers)

	s.log.Info("application submitted",
		zap.String("vacancy_id", vacancyID), zap.String("vacancy", vacancy.Name))

	return &Result{
		VacancyID:     vacancyID,
		Status:        StatusSuccess,
		VacancyTitle:  vacancy.Name,
		CoverLetter:   coverLetter,
		BoardResponse: boardResp,
	}
}

func (s *Service) skipped(vacancy *hh.Vacancy, reason string) *Result {
	return &Result{VacancyID: vacancy.ID, Status: StatusSkipped, VacancyTitle: vacancy.Name, Reason: reason}
}

// buildProfile fetches resume detail and flattens it; on failure the
// request fields stand in.
func (s *Service) buildProfile(ctx context.Context, req *BulkRequest) *llm.CandidateProfile {
	resume, err := s.board.GetResume(ctx, req.ResumeID)
	if err != nil {
		s.log.Warn("failed to fetch resume detail, using request fields",
			zap.String("resume_id", req.ResumeID), zap.Error(err))
		resume = nil
	}
	return BuildProfile(resume, &req.Request)
}

// classifySubmissionError maps board submission failures onto result
// statuses. Duplicate-style rejections are skips, everything else errors.
func (s *Service) classifySubmissionError(vacancy *hh.Vacancy, err error) *Result {
	if apiErr, ok := hh.AsAPIError(err); ok {
		switch apiErr.StatusCode {
		case 400:
			return s.skipped(vacancy, "Already applied or invalid application data")
		case 409:
			return s.skipped(vacancy, "Application already exists for this vacancy")
		case 403:
			if strings.Contains(strings.ToLower(apiErr.Body), "test") {
				return s.skipped(vacancy, "Vacancy requires external test")
			}
			return &Result{VacancyID: vacancy.ID, Status: StatusError, VacancyTitle: vacancy.Name,
				Reason: fmt.Sprintf("Access denied (403): %s", apiErr.Message)}
		case 404:
			return &Result{VacancyID: vacancy.ID, Status: StatusError, VacancyTitle: vacancy.Name,
				Reason: "Vacancy or resume not found (404)"}
		}
		return &Result{VacancyID: vacancy.ID, Status: StatusError, VacancyTitle: vacancy.Name,
			Reason: fmt.Sprintf("Application failed with HTTP %d: %s", apiErr.StatusCode, apiErr.Message)}
	}
	if errors.Is(err, hh.ErrAuthRequired) {
		return &Result{VacancyID: vacancy.ID, Status: StatusError, VacancyTitle: vacancy.Name,
			Reason: "Authentication required: " + err.Error()}
	}
	return &Result{VacancyID: vacancy.ID, Status: StatusError, VacancyTitle: vacancy.Name,
		Reason: fmt.Sprintf("Network error: %v", err)}
}
