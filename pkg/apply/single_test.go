package apply

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frostwillmott/applybot/pkg/hh"
)

func TestApplyToVacancy_InvalidRequest(t *testing.T) {
	svc := newTestService(newFakeBoard(), &fakeLLM{}, &fakeAppStore{}, newFakeCache())

	result := svc.ApplyToVacancy(context.Background(), "user", "v1", &BulkRequest{})
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Reason, "Resume ID is required")
}

func TestApplyToVacancy_LocalHistoryShortCircuits(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1")...)
	apps := &fakeAppStore{}
	svc := newTestService(board, &fakeLLM{}, apps, newFakeCache())

	req := bulkRequest()
	first := svc.ApplyToVacancy(context.Background(), "user", "v1", &req)
	assert.Equal(t, StatusSuccess, first.Status)

	second := svc.ApplyToVacancy(context.Background(), "user", "v1", &req)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, "Already applied to this vacancy", second.Reason)
	// Exactly one history row for the pair.
	assert.Len(t, apps.records, 1)
}

func TestApplyToVacancy_EligibilitySkips(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(v *hh.Vacancy)
		req    func(r *BulkRequest)
		reason string
	}{
		{
			name:   "archived",
			mutate: func(v *hh.Vacancy) { v.Archived = true },
			reason: "Vacancy is archived",
		},
		{
			name:   "existing response",
			mutate: func(v *hh.Vacancy) { v.Relations = []string{"got_response"} },
			reason: "Already applied to this vacancy",
		},
		{
			name:   "letter required but disabled",
			mutate: func(v *hh.Vacancy) { v.ResponseLetterRequired = true },
			req:    func(r *BulkRequest) { r.UseCoverLetter = false },
			reason: "Vacancy requires cover letter",
		},
		{
			name:   "required test",
			mutate: func(v *hh.Vacancy) { v.Test = &hh.Test{Required: true} },
			reason: "Vacancy requires external test",
		},
		{
			name:   "off-board test url",
			mutate: func(v *hh.Vacancy) { v.Test = &hh.Test{URL: "https://assessments.example.com/t/1"} },
			reason: "Vacancy requires external test",
		},
		{
			name: "external form",
			mutate: func(v *hh.Vacancy) {
				v.BrandedTemplate = &hh.BrandedTemplate{ExternalFormURL: "https://careers.example.com"}
			},
			reason: "Vacancy requires external test",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vacancy := searchVacancies("v1")[0]
			tc.mutate(&vacancy)
			board := newFakeBoard()
			board.details["v1"] = &vacancy
			svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, newFakeCache())

			req := bulkRequest()
			if tc.req != nil {
				tc.req(&req)
			}
			result := svc.ApplyToVacancy(context.Background(), "user", "v1", &req)
			assert.Equal(t, StatusSkipped, result.Status)
			assert.Equal(t, tc.reason, result.Reason)
		})
	}
}

func TestApplyToVacancy_SubmitsScreeningAnswers(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1")...)
	board.questions["v1"] = []hh.Question{
		{ID: "q1", Text: "How many years of Go experience do you have?"},
		{ID: "q2", Text: "Пройдите тест по ссылке: https://testing.example.com"},
		{ID: "q3", Text: "Fill this in", URL: "https://forms.example.com/x"},
	}
	svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, newFakeCache())

	req := bulkRequest()
	result := svc.ApplyToVacancy(context.Background(), "user", "v1", &req)
	assert.Equal(t, StatusSuccess, result.Status)

	// Only the answerable question is submitted.
	assert.Len(t, board.submissions, 1)
	answers := board.submissions[0].Answers
	assert.Contains(t, answers, "q1")
	assert.NotContains(t, answers, "q2")
	assert.NotContains(t, answers, "q3")
}

func TestApplyToVacancy_ShortCoverLetterRejected(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1")...)
	svc := newTestService(board, &fakeLLM{letter: "short"}, &fakeAppStore{}, newFakeCache())

	req := bulkRequest()
	result := svc.ApplyToVacancy(context.Background(), "user", "v1", &req)
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Reason, "at least 50 characters")
	assert.Empty(t, board.submissions)
}

func TestApplyToVacancy_ClassifiesSubmissionErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus string
		wantReason string
	}{
		{"duplicate 400", &hh.APIError{StatusCode: 400, Message: "bad request"}, StatusSkipped, "Already applied or invalid application data"},
		{"conflict 409", &hh.APIError{StatusCode: 409, Message: "exists"}, StatusSkipped, "Application already exists for this vacancy"},
		{"test 403", &hh.APIError{StatusCode: 403, Message: "denied", Body: `{"errors":[{"type":"test_required"}]}`}, StatusSkipped, "Vacancy requires external test"},
		{"denied 403", &hh.APIError{StatusCode: 403, Message: "denied"}, StatusError, "Access denied (403): denied"},
		{"missing 404", &hh.APIError{StatusCode: 404, Message: "not found"}, StatusError, "Vacancy or resume not found (404)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			board := newFakeBoard(searchVacancies("v1")...)
			board.applyErrFor["v1"] = tc.err
			svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, newFakeCache())

			req := bulkRequest()
			result := svc.ApplyToVacancy(context.Background(), "user", "v1", &req)
			assert.Equal(t, tc.wantStatus, result.Status)
			assert.Equal(t, tc.wantReason, result.Reason)
		})
	}
}

func TestIsAnswerableQuestion(t *testing.T) {
	site := "https://hh.ru"
	assert.True(t, isAnswerableQuestion(hh.Question{Text: "Years of experience?"}, site))
	assert.True(t, isAnswerableQuestion(hh.Question{Text: "See https://hh.ru/article/123"}, site))
	assert.False(t, isAnswerableQuestion(hh.Question{Text: "follow the link https://example.com"}, site))
	assert.False(t, isAnswerableQuestion(hh.Question{Text: "ok", RequiredURL: "https://x.test"}, site))
	assert.False(t, isAnswerableQuestion(hh.Question{Text: "перейдите по ссылке"}, site))
}
