package hh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/models"
	"github.com/frostwillmott/applybot/pkg/storage"
)

type fakeTokenStore struct {
	token *models.Token
	saved []*models.Token
}

func (f *fakeTokenStore) SaveToken(ctx context.Context, token *models.Token) error {
	f.saved = append(f.saved, token)
	f.token = token
	return nil
}

func (f *fakeTokenStore) LatestToken(ctx context.Context) (*models.Token, error) {
	if f.token == nil {
		return nil, storage.ErrNotFound
	}
	return f.token, nil
}

func validToken() *models.Token {
	return &models.Token{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresIn:    3600,
		ObtainedAt:   time.Now().UTC(),
	}
}

func newTestClient(t *testing.T, handler http.Handler, tokens *fakeTokenStore) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:  srv.URL,
		SiteURL:  srv.URL,
		TokenURL: srv.URL + "/oauth/token",
	}, tokens, zap.NewNop())
	c.jitterScale = 0
	return c, srv
}

func TestRequest_DDoSGuardRetriesExactlyThreeTimes(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("<html>DDoS-Guard is checking your browser</html>"))
	})
	c, _ := newTestClient(t, handler, &fakeTokenStore{token: validToken()})

	_, err := c.GetVacancy(context.Background(), "1")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "DDoS protection")
	// Initial attempt plus exactly three retries.
	assert.Equal(t, int32(4), requests.Load())
}

func TestRequest_ClientErrorIsTerminal(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"description":"bad parameters"}`))
	})
	c, _ := newTestClient(t, handler, &fakeTokenStore{token: validToken()})

	_, err := c.GetVacancy(context.Background(), "1")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad parameters", apiErr.Message)
	assert.Equal(t, int32(1), requests.Load())
}

func TestRequest_GatewayErrorsAreRetried(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"1","name":"Go Developer"}`))
	})
	c, _ := newTestClient(t, handler, &fakeTokenStore{token: validToken()})

	vacancy, err := c.GetVacancy(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Go Developer", vacancy.Name)
	assert.Equal(t, int32(3), requests.Load())
}

func TestRequest_RateLimitRetriesAfterWait(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"id":"1","name":"Go Developer"}`))
	})
	c, _ := newTestClient(t, handler, &fakeTokenStore{token: validToken()})

	vacancy, err := c.GetVacancy(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Go Developer", vacancy.Name)
	assert.Equal(t, int32(2), requests.Load())
}

func TestRequest_NoTokenOnRecord(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler(), &fakeTokenStore{})

	_, err := c.GetVacancy(context.Background(), "1")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestRequest_ExpiredDurableToken(t *testing.T) {
	expired := validToken()
	expired.ObtainedAt = time.Now().UTC().Add(-2 * time.Hour)
	c, _ := newTestClient(t, http.NotFoundHandler(), &fakeTokenStore{token: expired})

	_, err := c.GetVacancy(context.Background(), "1")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestApply_FormEncodingAndHeaders(t *testing.T) {
	var (
		gotForm    map[string][]string
		gotReferer string
		gotAuth    string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotReferer = r.Header.Get("Referer")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	})
	c, srv := newTestClient(t, handler, &fakeTokenStore{token: validToken()})

	resp, err := c.Apply(context.Background(), ApplySubmission{
		VacancyID: "123",
		ResumeID:  "r-9",
		Message:   "Dear hiring manager",
		Answers:   map[string]string{"q1": "Five years"},
	})
	require.NoError(t, err)

	// Empty 2xx body collapses to a success payload.
	assert.Equal(t, map[string]interface{}{"status": "success"}, resp)
	assert.Equal(t, []string{"123"}, gotForm["vacancy_id"])
	assert.Equal(t, []string{"r-9"}, gotForm["resume_id"])
	assert.Equal(t, []string{"Dear hiring manager"}, gotForm["message"])
	assert.Equal(t, []string{"Five years"}, gotForm["answer_q1"])
	assert.Equal(t, srv.URL+"/vacancy/123", gotReferer)
	assert.Equal(t, "Bearer access-token", gotAuth)
}

func TestGetAppliedVacancyIDs_Paginates(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "0":
			w.Write([]byte(`{"items":[{"id":"n1","vacancy":{"id":"v1"}},{"id":"n2","vacancy":{"id":"v2"}}],"pages":2,"page":0}`))
		default:
			w.Write([]byte(`{"items":[{"id":"n3","vacancy":{"id":"v3"}}],"pages":2,"page":1}`))
		}
	})
	c, _ := newTestClient(t, handler, &fakeTokenStore{token: validToken()})

	applied := c.GetAppliedVacancyIDs(context.Background())
	assert.Len(t, applied, 3)
	assert.Contains(t, applied, "v1")
	assert.Contains(t, applied, "v3")
}

func TestGetAppliedVacancyIDs_FailsOpen(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c, _ := newTestClient(t, handler, &fakeTokenStore{token: validToken()})

	applied := c.GetAppliedVacancyIDs(context.Background())
	assert.Empty(t, applied)
}

func TestGetVacancyQuestions_FailureIsNonFatal(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c, _ := newTestClient(t, handler, &fakeTokenStore{token: validToken()})

	questions, err := c.GetVacancyQuestions(context.Background(), "1")
	assert.NoError(t, err)
	assert.Empty(t, questions)
}

func TestExchangeCode_SavesToken(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":1209600}`))
	})
	tokens := &fakeTokenStore{}
	c, _ := newTestClient(t, handler, tokens)

	token, err := c.ExchangeCode(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "new-access", token.AccessToken)
	assert.Equal(t, 1209600, token.ExpiresIn)
	require.Len(t, tokens.saved, 1)
	assert.WithinDuration(t, time.Now().UTC(), token.ObtainedAt, time.Minute)
}
