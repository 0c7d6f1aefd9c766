package apply

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/hh"
)

func zapNop() *zap.Logger { return zap.NewNop() }

func bulkRequest() BulkRequest {
	return BulkRequest{
		Request:        Request{Position: "Python", ResumeID: "resume-1"},
		RemoteOnly:     true,
		UseCoverLetter: true,
	}
}

func collectEvents(stream <-chan Event) []Event {
	var events []Event
	for e := range stream {
		events = append(events, e)
	}
	return events
}

func never() bool { return false }

func searchVacancies(ids ...string) []hh.Vacancy {
	out := make([]hh.Vacancy, 0, len(ids))
	for _, id := range ids {
		out = append(out, hh.Vacancy{ID: id, Name: "Vacancy " + id, Employer: hh.Employer{Name: "Acme"}})
	}
	return out
}

func TestBulkApplyStream_HappyPath(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1", "v2", "v3")...)
	apps := &fakeAppStore{}
	svc := newTestService(board, &fakeLLM{}, apps, newFakeCache())

	events := collectEvents(svc.BulkApplyStream(context.Background(), "user", bulkRequest(), 2, never))

	require.NotEmpty(t, events)
	assert.Equal(t, EventStart, events[0].Event)

	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Event)
	assert.Equal(t, 2, last.SuccessCount)
	assert.Equal(t, 0, last.SkippedCount)
	assert.Equal(t, 0, last.ErrorCount)

	// Exactly one ApplicationHistory row per submitted application.
	assert.Len(t, apps.records, 2)
	assert.Len(t, board.submissions, 2)
	assert.Equal(t, "v1", board.submissions[0].VacancyID)
	assert.Equal(t, "v2", board.submissions[1].VacancyID)
}

func TestBulkApplyStream_DuplicateSuppression(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1", "v2", "v3")...)
	board.applied["v2"] = struct{}{}
	apps := &fakeAppStore{}
	svc := newTestService(board, &fakeLLM{}, apps, newFakeCache())

	events := collectEvents(svc.BulkApplyStream(context.Background(), "user", bulkRequest(), 2, never))

	var skippedReason string
	for _, e := range events {
		if e.Result != nil && e.Result.VacancyID == "v2" {
			assert.Equal(t, StatusSkipped, e.Result.Status)
			skippedReason = e.Result.Reason
		}
	}
	assert.Equal(t, "Already applied (HH.ru)", skippedReason)

	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Event)
	assert.Equal(t, 2, last.SuccessCount)
	assert.Equal(t, 1, last.SkippedCount)
}

func TestBulkApplyStream_BaselineCheckBeforeFilter(t *testing.T) {
	// A vacancy both in the baseline set and failing the filter reports as
	// already applied.
	vacancies := searchVacancies("v1")
	vacancies[0].Archived = true
	board := newFakeBoard(vacancies...)
	board.applied["v1"] = struct{}{}
	svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, newFakeCache())

	events := collectEvents(svc.BulkApplyStream(context.Background(), "user", bulkRequest(), 1, never))

	found := false
	for _, e := range events {
		if e.Result != nil && e.Result.VacancyID == "v1" {
			found = true
			assert.Equal(t, "Already applied (HH.ru)", e.Result.Reason)
		}
	}
	assert.True(t, found)
}

func TestBulkApplyStream_CircuitBreaker(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1", "v2", "v3", "v4", "v5")...)
	board.applyErr = errors.New("connection refused")
	svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, newFakeCache())

	events := collectEvents(svc.BulkApplyStream(context.Background(), "user", bulkRequest(), 5, never))

	var errorResults int
	for _, e := range events {
		if e.Result != nil && e.Result.Status == StatusError {
			errorResults++
		}
	}
	assert.Equal(t, 3, errorResults)

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Event)
	assert.Equal(t, "Too many consecutive errors, stopping", last.Message)
	assert.Equal(t, 3, last.ErrorCount)
}

func TestBulkApplyStream_CancelBeforeFirstVacancy(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1", "v2")...)
	svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, newFakeCache())

	events := collectEvents(svc.BulkApplyStream(context.Background(), "user", bulkRequest(), 2,
		func() bool { return true }))

	last := events[len(events)-1]
	assert.Equal(t, EventCancelled, last.Event)
	assert.Zero(t, last.SuccessCount)
	assert.Zero(t, last.SkippedCount)
	assert.Zero(t, last.ErrorCount)
	assert.Empty(t, board.submissions)
}

func TestBulkApplyStream_MaxOneHaltsAfterFirstSuccess(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1", "v2", "v3")...)
	svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, newFakeCache())

	events := collectEvents(svc.BulkApplyStream(context.Background(), "user", bulkRequest(), 1, never))

	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Event)
	assert.Equal(t, 1, last.SuccessCount)
	assert.Len(t, board.submissions, 1)
}

func TestBulkApplyStream_CounterInvariants(t *testing.T) {
	board := newFakeBoard(searchVacancies("v1", "v2", "v3")...)
	board.applied["v2"] = struct{}{}
	board.applyErrFor["v3"] = errors.New("boom")
	svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, newFakeCache())

	events := collectEvents(svc.BulkApplyStream(context.Background(), "user", bulkRequest(), 5, never))

	require.NotEmpty(t, events)
	assert.Equal(t, EventStart, events[0].Event)

	prev := Event{}
	for _, e := range events[1:] {
		// Counters never decrease, and current equals their sum.
		assert.GreaterOrEqual(t, e.SuccessCount, prev.SuccessCount)
		assert.GreaterOrEqual(t, e.SkippedCount, prev.SkippedCount)
		assert.GreaterOrEqual(t, e.ErrorCount, prev.ErrorCount)
		assert.Equal(t, e.Current, e.SuccessCount+e.SkippedCount+e.ErrorCount)
		if e.Result != nil {
			assert.Greater(t, e.Current, prev.Current)
		}
		prev = e
	}

	terminal := events[len(events)-1].Event
	assert.Contains(t, []string{EventComplete, EventCancelled, EventError}, terminal)
}

func TestBulkApplyStream_ProcessedVacanciesAreCached(t *testing.T) {
	vacancies := searchVacancies("v1", "v2")
	vacancies[1].Archived = true
	board := newFakeBoard(vacancies...)
	cache := newFakeCache()
	svc := newTestService(board, &fakeLLM{}, &fakeAppStore{}, cache)

	collectEvents(svc.BulkApplyStream(context.Background(), "user", bulkRequest(), 5, never))

	_, appliedCached := cache.cached["v1"]
	_, filteredCached := cache.cached["v2"]
	assert.True(t, appliedCached)
	assert.True(t, filteredCached)
}
