package apply

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/hh"
	"github.com/frostwillmott/applybot/pkg/metrics"
	"github.com/frostwillmott/applybot/pkg/resilience"
)

const (
	// The discovery phase collects a multiple of the target so filtering and
	// duplicate suppression still leave enough candidates.
	candidateFactor = 3

	searchPagesPerQuery = 3
	searchPerPage       = 100

	consecutiveErrorLimit = 3
)

// adaptiveDelay is the per-pipeline pacing state. It is a local value so
// concurrent users' runs cannot interfere.
type adaptiveDelay struct {
	seconds float64
}

func newAdaptiveDelay() *adaptiveDelay {
	return &adaptiveDelay{seconds: 3}
}

func uniform(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}

// onSuccess shrinks the delay and returns how long to sleep.
func (d *adaptiveDelay) onSuccess() time.Duration {
	d.seconds = d.seconds * 0.8
	if d.seconds < 2 {
		d.seconds = 2
	}
	return time.Duration((d.seconds + uniform(0, 2)) * float64(time.Second))
}

// onError grows the delay; rate-limit style errors wait much longer.
func (d *adaptiveDelay) onError(reason string) time.Duration {
	d.seconds = d.seconds * 1.5
	if d.seconds > 30 {
		d.seconds = 30
	}
	if strings.Contains(reason, "429") || strings.Contains(reason, "403") {
		return time.Duration((d.seconds + uniform(10, 30)) * float64(time.Second))
	}
	return time.Duration((d.seconds*0.5 + uniform(5, 15)) * float64(time.Second))
}

// candidateSet keeps discovery order alongside the search payload.
type candidateSet struct {
	order []string
	byID  map[string]hh.Vacancy
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byID: make(map[string]hh.Vacancy)}
}

func (c *candidateSet) add(v hh.Vacancy) {
	if v.ID == "" {
		return
	}
	if _, ok := c.byID[v.ID]; ok {
		return
	}
	c.byID[v.ID] = v
	c.order = append(c.order, v.ID)
}

func (c *candidateSet) len() int { return len(c.order) }

// BulkApplyStream runs one full pipeline and returns a lazy sequence of
// progress events. The channel is closed after the terminal event. The
// cancelRequested predicate is consulted at every checkpoint.
func (s *Service) BulkApplyStream(ctx context.Context, userID string, req BulkRequest, maxApplications int, cancelRequested func() bool) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)
		s.run(ctx, userID, req, maxApplications, cancelRequested, events)
	}()

	return events
}

func (s *Service) run(ctx context.Context, userID string, req BulkRequest, maxApplications int, cancelRequested func() bool, events chan<- Event) {
	emit := func(e Event) bool {
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(Event{Event: EventStart, Message: "Searching for vacancies"}) {
		return
	}

	if v := ValidateRequest(&req.Request); !v.Valid {
		emit(Event{Event: EventError, Message: v.Error})
		return
	}

	// Baseline: everything the candidate already applied to on the board,
	// memoized for the run.
	applied := s.board.GetAppliedVacancyIDs(ctx)
	s.log.Info("loaded baseline applied set",
		zap.String("user_id", userID), zap.Int("count", len(applied)))

	candidates, err := s.discover(ctx, req, maxApplications)
	if err != nil {
		emit(Event{Event: EventError, Message: "Vacancy search failed: " + err.Error()})
		return
	}

	total := candidates.len()
	s.log.Info("discovery complete",
		zap.String("user_id", userID), zap.Int("candidates", total))

	var (
		current, successCount, skippedCount, errorCount int

		breaker = resilience.NewCircuitBreaker(consecutiveErrorLimit)
		delay   = newAdaptiveDelay()
	)

	progress := func(result *Result) Event {
		return Event{
			Event:        EventProgress,
			Current:      current,
			Total:        total,
			SuccessCount: successCount,
			SkippedCount: skippedCount,
			ErrorCount:   errorCount,
			Result:       result,
		}
	}

	for _, id := range candidates.order {
		if cancelRequested() || ctx.Err() != nil {
			emit(Event{Event: EventCancelled, Current: current, Total: total,
				SuccessCount: successCount, SkippedCount: skippedCount, ErrorCount: errorCount,
				Message: "Cancelled by user"})
			return
		}
		if successCount >= maxApplications {
			break
		}
		if breaker.Open() {
			emit(Event{Event: EventError, Current: current, Total: total,
				SuccessCount: successCount, SkippedCount: skippedCount, ErrorCount: errorCount,
				Message: "Too many consecutive errors, stopping"})
			return
		}

		shallow := candidates.byID[id]

		// The baseline check runs before the filter so a vacancy failing
		// both reports as already applied.
		if _, ok := applied[id]; ok {
			current++
			skippedCount++
			metrics.RecordApplication(StatusSkipped)
			if !emit(progress(&Result{VacancyID: id, Status: StatusSkipped,
				VacancyTitle: shallow.Name, Reason: "Already applied (HH.ru)"})) {
				return
			}
			continue
		}

		if ok, reason := ShouldApply(&shallow, &req); !ok {
			current++
			skippedCount++
			metrics.RecordApplication(StatusSkipped)
			s.cacheProcessed(ctx, id)
			if !emit(progress(&Result{VacancyID: id, Status: StatusSkipped,
				VacancyTitle: shallow.Name, Reason: reason})) {
				return
			}
			continue
		}

		result := s.ApplyToVacancy(ctx, userID, id, &req)
		current++
		s.cacheProcessed(ctx, id)

		var pause time.Duration
		switch result.Status {
		case StatusSuccess:
			successCount++
			breaker.RecordSuccess()
			pause = delay.onSuccess()
		case StatusSkipped:
			skippedCount++
		default:
			errorCount++
			breaker.RecordFailure()
			pause = delay.onError(result.Reason)
		}
		metrics.RecordApplication(result.Status)

		if !emit(progress(result)) {
			return
		}

		if pause > 0 {
			if err := s.sleep(ctx, pause); err != nil {
				emit(Event{Event: EventCancelled, Current: current, Total: total,
					SuccessCount: successCount, SkippedCount: skippedCount, ErrorCount: errorCount,
					Message: "Cancelled by user"})
				return
			}
		}
	}

	emit(Event{Event: EventComplete, Current: current, Total: total,
		SuccessCount: successCount, SkippedCount: skippedCount, ErrorCount: errorCount,
		Message: "Bulk apply completed"})
}

// discover fans the position out into multiple queries and merges paged
// search results into an ordered, de-duplicated candidate set.
func (s *Service) discover(ctx context.Context, req BulkRequest, maxApplications int) (*candidateSet, error) {
	queries := ParseSearchQueries(req.Position)
	target := maxApplications * candidateFactor
	candidates := newCandidateSet()

	var lastErr error
	succeeded := false

	for _, query := range queries {
		if candidates.len() >= target {
			break
		}

		for page := 0; page < searchPagesPerQuery; page++ {
			resp, err := s.board.SearchVacancies(ctx, s.searchParams(req, query, page))
			if err != nil {
				s.log.Warn("vacancy search failed",
					zap.String("query", query), zap.Int("page", page), zap.Error(err))
				lastErr = err
				break
			}
			succeeded = true

			ids := make([]string, 0, len(resp.Items))
			for _, v := range resp.Items {
				ids = append(ids, v.ID)
			}
			fresh, err := s.cache.FilterNew(ctx, ids)
			if err != nil {
				// Advisory cache: treat everything as new on failure.
				s.log.Warn("vacancy cache unavailable", zap.Error(err))
				fresh = ids
			}
			freshSet := make(map[string]struct{}, len(fresh))
			for _, id := range fresh {
				freshSet[id] = struct{}{}
			}

			for _, v := range resp.Items {
				if _, ok := freshSet[v.ID]; ok {
					candidates.add(v)
				}
			}

			if candidates.len() >= target || page >= resp.Pages-1 {
				break
			}
		}
	}

	if !succeeded && lastErr != nil {
		return nil, lastErr
	}
	return candidates, nil
}

// searchParams derives the server-side filters from the criteria.
func (s *Service) searchParams(req BulkRequest, query string, page int) hh.SearchParams {
	params := hh.SearchParams{
		Text:    query,
		Page:    page,
		PerPage: searchPerPage,
	}
	if req.ExperienceLevel != "" {
		params.Experience = req.ExperienceLevel
	}
	if req.RemoteOnly {
		params.Schedule = "remote"
	} else if len(req.PreferredSchedule) == 1 {
		params.Schedule = req.PreferredSchedule[0]
	}
	if len(req.EmploymentTypes) == 1 {
		params.Employment = req.EmploymentTypes[0]
	}
	if req.SalaryMin > 0 {
		params.Salary = req.SalaryMin
		params.OnlyWithSalary = true
	}
	return params
}

func (s *Service) cacheProcessed(ctx context.Context, id string) {
	if err := s.cache.AddMany(ctx, []string{id}); err != nil {
		s.log.Warn("failed to cache processed vacancy", zap.String("vacancy_id", id), zap.Error(err))
	}
}
