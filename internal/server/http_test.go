package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/gquiz/internal/balance"
	"github.com/abhisek/gquiz/internal/bank"
	"github.com/abhisek/gquiz/internal/metrics"
	"github.com/abhisek/gquiz/internal/orchestrator"
	"github.com/abhisek/gquiz/internal/quota"
	"github.com/abhisek/gquiz/internal/selection"
)

type fixture struct {
	bank *bank.Store
	srv  *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	b, err := bank.Open(filepath.Join(t.TempDir(), "question_bank.jsonl"), bank.Options{})
	require.NoError(t, err)
	q, err := quota.Open("", quota.DefaultConfig(), quota.Options{})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	orch := orchestrator.New(b, q, orchestrator.Options{Metrics: metrics.New(reg)})
	s := New(orch, Options{Bank: b, Gatherer: reg})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{bank: b, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	return f.send(t, method, path, "")
}

func (f *fixture) send(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/v1/sessions")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[sessionResponse](t, resp)
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestNext_ServesOfflineWithoutRepeats(t *testing.T) {
	f := setup(t)
	id := f.newSession(t)

	seen := map[string]bool{}
	for range f.bank.Len() {
		resp := f.do(t, http.MethodGet, "/v1/sessions/"+id+"/next")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		served := decode[orchestrator.Served](t, resp)

		assert.Equal(t, orchestrator.ReasonNoGenerator, served.FallbackReason)
		assert.NotEmpty(t, served.Record.PromptText)
		assert.Len(t, served.Record.Choices, 4)
		assert.False(t, seen[served.Record.ID], "question %s repeated", served.Record.ID)
		seen[served.Record.ID] = true
	}
	assert.Len(t, seen, f.bank.Len())

	// Exhausted sessions keep being served.
	resp := f.do(t, http.MethodGet, "/v1/sessions/"+id+"/next")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNext_UnknownSession(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodGet, "/v1/sessions/nope/next")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeSessionNotFound, decode[ErrorResponse](t, resp).Error)
}

func TestEndSession(t *testing.T) {
	f := setup(t)
	id := f.newSession(t)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/v1/sessions/"+id).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/v1/sessions/"+id).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/sessions/"+id+"/next").StatusCode)
}

func TestQuota(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodGet, "/v1/quota")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status := decode[quota.Status](t, resp)
	assert.True(t, status.MinuteOpen)
	assert.True(t, status.DayOpen)
	assert.Equal(t, 0, status.DayCount)
}

func TestChapters(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodGet, "/v1/chapters")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[[]balance.ChapterStat](t, resp)

	counts := f.bank.ChapterCounts()
	require.Len(t, stats, len(counts))
	for i, st := range stats {
		assert.Equal(t, counts[st.Chapter], st.BankCount)
		assert.Zero(t, st.ServedCount)
		if i > 0 {
			assert.Less(t, stats[i-1].Chapter, st.Chapter)
		}
	}

	id := f.newSession(t)
	served := decode[orchestrator.Served](t, f.do(t, http.MethodGet, "/v1/sessions/"+id+"/next"))

	resp = f.do(t, http.MethodGet, "/v1/chapters?session="+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, st := range decode[[]balance.ChapterStat](t, resp) {
		if st.Chapter == served.Record.ChapterTag {
			assert.Equal(t, 1, st.ServedCount)
		} else {
			assert.Zero(t, st.ServedCount)
		}
	}

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/chapters?session=nope").StatusCode)
}

func TestMetrics(t *testing.T) {
	f := setup(t)
	id := f.newSession(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/sessions/"+id+"/next").StatusCode)

	resp := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "gquiz_questions_served_total")
	assert.Contains(t, string(body), `gquiz_fallbacks_total{reason="no_generator"} 1`)
}

type stubOrch struct {
	err error
}

func (s stubOrch) NewSession(rng *rand.Rand, mode orchestrator.Mode) (*orchestrator.Session, error) {
	sess := orchestrator.NewSession(emptyCorpus{}, rng)
	sess.Mode = mode
	return sess, nil
}

func (s stubOrch) Answer(context.Context, *orchestrator.Session, string, int) (orchestrator.Graded, error) {
	return orchestrator.Graded{}, s.err
}

func (s stubOrch) Next(context.Context, *orchestrator.Session) (orchestrator.Served, error) {
	return orchestrator.Served{}, s.err
}

func (s stubOrch) Quota() quota.Status { return quota.Status{} }

type emptyCorpus struct{}

func (emptyCorpus) ByChapter(string) []bank.Record { return nil }
func (emptyCorpus) ChapterCounts() map[string]int { return map[string]int{} }

func TestNext_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty bank", selection.ErrBankExhausted, http.StatusServiceUnavailable, ErrCodeBankEmpty},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, ErrCodeCanceled},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(stubOrch{err: tt.err}, Options{Gatherer: prometheus.NewRegistry()})
			h := s.Handler()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
			require.Equal(t, http.StatusCreated, rec.Code)
			var created sessionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+created.ID+"/next", nil))
			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(&body))
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestSessions_OldestEvicted(t *testing.T) {
	s := New(stubOrch{}, Options{MaxSessions: 2, Gatherer: prometheus.NewRegistry()})
	h := s.Handler()

	var ids []string
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
		var created sessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		ids = append(ids, created.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.sessions, 2)
	assert.Contains(t, s.sessions, ids[2])
}

func TestCreateSession_Modes(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/v1/sessions")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, orchestrator.ModeAuto, decode[sessionResponse](t, resp).Mode)

	resp = f.send(t, http.MethodPost, "/v1/sessions", `{"mode":"offline"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[sessionResponse](t, resp)
	assert.Equal(t, orchestrator.ModeOffline, created.Mode)

	served := decode[orchestrator.Served](t, f.do(t, http.MethodGet, "/v1/sessions/"+created.ID+"/next"))
	assert.Equal(t, orchestrator.ReasonOfflineMode, served.FallbackReason)

	// No generator is configured in the fixture.
	resp = f.send(t, http.MethodPost, "/v1/sessions", `{"mode":"online"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, ErrCodeOnlineUnavailable, decode[ErrorResponse](t, resp).Error)

	for _, body := range []string{`{"mode":"turbo"}`, `{"mode":`} {
		resp = f.send(t, http.MethodPost, "/v1/sessions", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, ErrCodeInvalidRequest, decode[ErrorResponse](t, resp).Error)
	}
}

func TestAnswer(t *testing.T) {
	f := setup(t)
	id := f.newSession(t)
	served := decode[orchestrator.Served](t, f.do(t, http.MethodGet, "/v1/sessions/"+id+"/next"))
	path := "/v1/sessions/" + id + "/answers"

	body := fmt.Sprintf(`{"questionId":%q,"choice":%d}`, served.Record.ID, served.Record.CorrectIndex)
	resp := f.send(t, http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[answerResponse](t, resp)
	assert.True(t, got.Correct)
	assert.Equal(t, served.Record.ID, got.QuestionID)
	assert.Equal(t, orchestrator.Score{Answered: 1, Correct: 1}, got.Score)

	// Answered once only.
	resp = f.send(t, http.MethodPost, path, body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, ErrCodeNotServed, decode[ErrorResponse](t, resp).Error)

	next := decode[orchestrator.Served](t, f.do(t, http.MethodGet, "/v1/sessions/"+id+"/next"))
	for _, bad := range []string{
		`{"questionId":"` + next.Record.ID + `"}`,
		`{"choice":0}`,
		`{"questionId":"` + next.Record.ID + `","choice":9}`,
		`not json`,
	} {
		resp = f.send(t, http.MethodPost, path, bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}

	resp = f.send(t, http.MethodPost, "/v1/sessions/nope/answers", body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
