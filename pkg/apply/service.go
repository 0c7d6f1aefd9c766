package apply

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/hh"
	"github.com/frostwillmott/applybot/pkg/llm"
	"github.com/frostwillmott/applybot/pkg/storage"
)

// BoardClient is the slice of the board API the pipeline consumes.
type BoardClient interface {
	SearchVacancies(ctx context.Context, params hh.SearchParams) (*hh.SearchResponse, error)
	GetVacancy(ctx context.Context, vacancyID string) (*hh.Vacancy, error)
	GetVacancyQuestions(ctx context.Context, vacancyID string) ([]hh.Question, error)
	GetResume(ctx context.Context, resumeID string) (*hh.Resume, error)
	GetAppliedVacancyIDs(ctx context.Context) map[string]struct{}
	Apply(ctx context.Context, sub hh.ApplySubmission) (map[string]interface{}, error)
	SiteURL() string
}

// Service orchestrates vacancy discovery, filtering, artifact generation and
// submission for one deployment.
type Service struct {
	board   BoardClient
	llm     llm.Provider
	apps    storage.ApplicationStore
	cache   storage.VacancyCache
	letters storage.LetterStore // nil disables archiving
	log     *zap.Logger

	// sleepScale shrinks adaptive pacing; tests set it to 0.
	sleepScale float64
}

// NewService wires the pipeline dependencies. letters may be nil.
func NewService(board BoardClient, provider llm.Provider, apps storage.ApplicationStore, cache storage.VacancyCache, letters storage.LetterStore, log *zap.Logger) *Service {
	return &Service{
		board:      board,
		llm:        provider,
		apps:       apps,
		cache:      cache,
		letters:    letters,
		log:        log.With(zap.String("component", "apply")),
		sleepScale: 1,
	}
}

// sleep waits for the scaled duration, returning early on cancellation.
func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	d = time.Duration(float64(d) * s.sleepScale)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// archiveLetter stores the generated artifacts best effort.
func (s *Service) archiveLetter(ctx context.Context, vacancyID, letter string, answers map[string]string) {
	if s.letters == nil || letter == "" && len(answers) == 0 {
		return
	}
	body := letter
	for qid, answer := range answers {
		body += "\n\n[question " + qid + "]\n" + answer
	}
	if _, err := s.letters.Store(ctx, vacancyID, []byte(body)); err != nil {
		s.log.Warn("failed to archive letter", zap.String("vacancy_id", vacancyID), zap.Error(err))
	}
}
