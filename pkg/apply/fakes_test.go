package apply

import (
	"context"
	"strings"
	"sync"

	"github.com/frostwillmott/applybot/pkg/hh"
	"github.com/frostwillmott/applybot/pkg/llm"
	"github.com/frostwillmott/applybot/pkg/models"
)

type fakeBoard struct {
	mu sync.Mutex

	searchItems []hh.Vacancy
	applied     map[string]struct{}
	details     map[string]*hh.Vacancy
	questions   map[string][]hh.Question

	applyErr    error
	applyErrFor map[string]error
	submissions []hh.ApplySubmission
}

func newFakeBoard(items ...hh.Vacancy) *fakeBoard {
	return &fakeBoard{
		searchItems: items,
		applied:     make(map[string]struct{}),
		details:     make(map[string]*hh.Vacancy),
		questions:   make(map[string][]hh.Question),
		applyErrFor: make(map[string]error),
	}
}

func (f *fakeBoard) SearchVacancies(ctx context.Context, params hh.SearchParams) (*hh.SearchResponse, error) {
	if params.Page > 0 {
		return &hh.SearchResponse{Pages: 1, Page: params.Page}, nil
	}
	return &hh.SearchResponse{Items: f.searchItems, Found: len(f.searchItems), Pages: 1}, nil
}

func (f *fakeBoard) GetVacancy(ctx context.Context, vacancyID string) (*hh.Vacancy, error) {
	if v, ok := f.details[vacancyID]; ok {
		return v, nil
	}
	for i := range f.searchItems {
		if f.searchItems[i].ID == vacancyID {
			v := f.searchItems[i]
			return &v, nil
		}
	}
	return nil, &hh.APIError{StatusCode: 404, Message: "vacancy not found"}
}

func (f *fakeBoard) GetVacancyQuestions(ctx context.Context, vacancyID string) ([]hh.Question, error) {
	return f.questions[vacancyID], nil
}

func (f *fakeBoard) GetResume(ctx context.Context, resumeID string) (*hh.Resume, error) {
	return &hh.Resume{ID: resumeID, FirstName: "Ivan", LastName: "Petrov", Title: "Go Developer",
		SkillSet: []string{"Go", "PostgreSQL"}}, nil
}

func (f *fakeBoard) GetAppliedVacancyIDs(ctx context.Context) map[string]struct{} {
	out := make(map[string]struct{}, len(f.applied))
	for id := range f.applied {
		out[id] = struct{}{}
	}
	return out
}

func (f *fakeBoard) Apply(ctx context.Context, sub hh.ApplySubmission) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.applyErrFor[sub.VacancyID]; ok {
		return nil, err
	}
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.submissions = append(f.submissions, sub)
	return map[string]interface{}{"status": "success"}, nil
}

func (f *fakeBoard) SiteURL() string { return "https://hh.ru" }

type fakeLLM struct {
	letter    string
	letterErr error
}

func (f *fakeLLM) GenerateCoverLetter(ctx context.Context, vacancy *hh.Vacancy, profile *llm.CandidateProfile) (string, error) {
	if f.letterErr != nil {
		return "", f.letterErr
	}
	if f.letter != "" {
		return f.letter, nil
	}
	return strings.Repeat("I am a strong fit for this position. ", 3), nil
}

func (f *fakeLLM) AnswerScreeningQuestions(ctx context.Context, questions []hh.Question, vacancy *hh.Vacancy, profile *llm.CandidateProfile) (map[string]string, error) {
	answers := make(map[string]string, len(questions))
	for _, q := range questions {
		answers[q.ID] = "Yes, I have relevant experience."
	}
	return answers, nil
}

func (f *fakeLLM) GenerateReply(ctx context.Context, employerMessage, vacancyTitle string, profile *llm.CandidateProfile) (string, error) {
	return "Добрый день! Спасибо за сообщение.", nil
}

type fakeAppStore struct {
	mu      sync.Mutex
	records []models.ApplicationHistory
}

func (f *fakeAppStore) CreateApplication(ctx context.Context, app *models.ApplicationHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *app)
	return nil
}

func (f *fakeAppStore) HasApplication(ctx context.Context, vacancyID, resumeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.VacancyID == vacancyID && r.ResumeID == resumeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAppStore) ListApplications(ctx context.Context, userID string, limit int) ([]models.ApplicationHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ApplicationHistory(nil), f.records...), nil
}

type fakeCache struct {
	mu     sync.Mutex
	cached map[string]struct{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{cached: make(map[string]struct{})}
}

func (f *fakeCache) FilterNew(ctx context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fresh []string
	for _, id := range ids {
		if _, ok := f.cached[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func (f *fakeCache) AddMany(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.cached[id] = struct{}{}
	}
	return nil
}

func newTestService(board BoardClient, provider llm.Provider, apps *fakeAppStore, cache *fakeCache) *Service {
	s := NewService(board, provider, apps, cache, nil, zapNop())
	s.sleepScale = 0
	return s
}
