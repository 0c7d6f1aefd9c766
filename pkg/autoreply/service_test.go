package autoreply

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "github.com/frostwillmott/applybot/configs"
	"github.com/frostwillmott/applybot/pkg/hh"
	"github.com/frostwillmott/applybot/pkg/llm"
	"github.com/frostwillmott/applybot/pkg/models"
	"github.com/frostwillmott/applybot/pkg/storage"
)

type fakeBoard struct {
	negotiations []hh.Negotiation
	messages     map[string][]hh.Message
	sent         map[string]string
	sendErr      error
}

func (f *fakeBoard) GetNegotiationsWithUnread(ctx context.Context) ([]hh.Negotiation, error) {
	return f.negotiations, nil
}

func (f *fakeBoard) GetNegotiationMessages(ctx context.Context, negotiationID string) ([]hh.Message, error) {
	return f.messages[negotiationID], nil
}

func (f *fakeBoard) SendNegotiationMessage(ctx context.Context, negotiationID, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[negotiationID] = text
	return nil
}

type fakeLLM struct{}

func (fakeLLM) GenerateCoverLetter(ctx context.Context, vacancy *hh.Vacancy, profile *llm.CandidateProfile) (string, error) {
	return "letter", nil
}

func (fakeLLM) AnswerScreeningQuestions(ctx context.Context, questions []hh.Question, vacancy *hh.Vacancy, profile *llm.CandidateProfile) (map[string]string, error) {
	return nil, nil
}

func (fakeLLM) GenerateReply(ctx context.Context, employerMessage, vacancyTitle string, profile *llm.CandidateProfile) (string, error) {
	return "Добрый день! Спасибо за сообщение, мне интересна эта вакансия.", nil
}

type fakeStore struct {
	mu       sync.Mutex
	settings map[string]*models.AutoReplySettings
	history  []models.AutoReplyHistory
	checks   [][2]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: make(map[string]*models.AutoReplySettings)}
}

func (f *fakeStore) GetAutoReplySettings(ctx context.Context, userID string) (*models.AutoReplySettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[userID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListEnabledAutoReplySettings(ctx context.Context) ([]models.AutoReplySettings, error) {
	return nil, nil
}

func (f *fakeStore) UpsertAutoReplySettings(ctx context.Context, settings *models.AutoReplySettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *settings
	f.settings[settings.UserID] = &copied
	return nil
}

func (f *fakeStore) RecordAutoReplyCheck(ctx context.Context, userID string, processed, replied int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, [2]int{processed, replied})
	return nil
}

func (f *fakeStore) CreateAutoReply(ctx context.Context, entry *models.AutoReplyHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, *entry)
	return nil
}

func (f *fakeStore) HasAutoReply(ctx context.Context, negotiationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.history {
		if h.NegotiationID == negotiationID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListAutoReplies(ctx context.Context, userID string, limit int) ([]models.AutoReplyHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AutoReplyHistory(nil), f.history...), nil
}

func unreadNegotiation(id string) hh.Negotiation {
	return hh.Negotiation{
		ID:       id,
		Vacancy:  &hh.Vacancy{ID: "v-" + id, Name: "Go Developer", Employer: hh.Employer{Name: "Acme"}},
		Counters: &hh.NegotiationCounters{UnreadMessages: 1},
	}
}

func newTestService(board *fakeBoard, store *fakeStore) *Service {
	cfg := &config.Config{SchedulerDefaultTimezone: "UTC"}
	svc := NewService(cfg, store, board, fakeLLM{}, zap.NewNop())
	svc.pause = 0
	return svc
}

func TestProcessUnread_GeneratesAndSends(t *testing.T) {
	board := &fakeBoard{
		negotiations: []hh.Negotiation{unreadNegotiation("n1")},
		messages: map[string][]hh.Message{
			"n1": {
				{ID: "m1", Text: "Здравствуйте!", Author: hh.MessageAuthor{ParticipantType: "applicant"}},
				{ID: "m2", Text: "Когда вам удобно созвониться?", Author: hh.MessageAuthor{ParticipantType: "employer"}},
			},
		},
	}
	store := newFakeStore()
	svc := newTestService(board, store)

	processed, replied := svc.processUnread(context.Background(), "u1", true)

	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, replied)
	require.Len(t, store.history, 1)
	assert.Equal(t, "n1", store.history[0].NegotiationID)
	assert.Equal(t, "Когда вам удобно созвониться?", store.history[0].EmployerMessage)
	assert.True(t, store.history[0].WasSent)
	assert.Contains(t, board.sent, "n1")
}

func TestProcessUnread_DryRunWithoutAutoSend(t *testing.T) {
	board := &fakeBoard{
		negotiations: []hh.Negotiation{unreadNegotiation("n1")},
		messages: map[string][]hh.Message{
			"n1": {{ID: "m1", Text: "Are you available?", Author: hh.MessageAuthor{ParticipantType: "employer"}}},
		},
	}
	store := newFakeStore()
	svc := newTestService(board, store)

	processed, replied := svc.processUnread(context.Background(), "u1", false)

	assert.Equal(t, 1, processed)
	assert.Zero(t, replied)
	require.Len(t, store.history, 1)
	assert.False(t, store.history[0].WasSent)
	assert.Empty(t, board.sent)
}

func TestProcessUnread_SkipsAlreadyReplied(t *testing.T) {
	board := &fakeBoard{
		negotiations: []hh.Negotiation{unreadNegotiation("n1")},
		messages: map[string][]hh.Message{
			"n1": {{ID: "m1", Text: "Hello?", Author: hh.MessageAuthor{ParticipantType: "employer"}}},
		},
	}
	store := newFakeStore()
	store.history = append(store.history, models.AutoReplyHistory{NegotiationID: "n1"})
	svc := newTestService(board, store)

	processed, _ := svc.processUnread(context.Background(), "u1", true)
	assert.Zero(t, processed)
	assert.Len(t, store.history, 1)
}

func TestProcessUnread_IgnoresThreadsWithoutEmployerMessage(t *testing.T) {
	board := &fakeBoard{
		negotiations: []hh.Negotiation{unreadNegotiation("n1")},
		messages: map[string][]hh.Message{
			"n1": {{ID: "m1", Text: "my own note", Author: hh.MessageAuthor{ParticipantType: "applicant"}}},
		},
	}
	store := newFakeStore()
	svc := newTestService(board, store)

	processed, replied := svc.processUnread(context.Background(), "u1", true)
	assert.Zero(t, processed)
	assert.Zero(t, replied)
}

func TestIsActiveTime(t *testing.T) {
	svc := newTestService(&fakeBoard{}, newFakeStore())

	settings := &models.AutoReplySettings{
		Timezone:         "UTC",
		ActiveHoursStart: 9,
		ActiveHoursEnd:   21,
		ActiveDays:       "mon,tue,wed,thu,fri",
	}

	// 2026-07-27 is a Monday.
	svc.now = func() time.Time { return time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC) }
	assert.True(t, svc.isActiveTime(settings))

	svc.now = func() time.Time { return time.Date(2026, 7, 27, 22, 0, 0, 0, time.UTC) }
	assert.False(t, svc.isActiveTime(settings))

	// Sunday is outside the active days.
	svc.now = func() time.Time { return time.Date(2026, 7, 26, 10, 0, 0, 0, time.UTC) }
	assert.False(t, svc.isActiveTime(settings))
}
