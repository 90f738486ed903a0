package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mingle/matchd/internal/history"
	"github.com/mingle/matchd/internal/match"
	"github.com/mingle/matchd/internal/points"
	"github.com/mingle/matchd/internal/session"
	"github.com/mingle/matchd/internal/store"
)

type stubService struct {
	startRes      *match.StartResult
	startErr      error
	startSettings match.Settings
	startAccel    bool
	result        *store.ResultState
	acceptBoth    bool
	acceptErr     error
	rejected      bool
	cancelled     bool
	queueCount    int
}

func (s *stubService) Start(_ context.Context, _ int64, settings match.Settings, accelerate bool) (*match.StartResult, error) {
	s.startSettings = settings
	s.startAccel = accelerate
	if s.startErr != nil {
		return nil, s.startErr
	}
	if s.startRes != nil {
		return s.startRes, nil
	}
	return &match.StartResult{EstimatedWaitSeconds: 30}, nil
}

func (s *stubService) Accelerate(context.Context, int64) (*match.StartResult, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &match.StartResult{Accelerated: true, PointsConsumed: 100}, nil
}

func (s *stubService) Cancel(context.Context, int64) error {
	s.cancelled = true
	return nil
}

func (s *stubService) Result(context.Context, int64) *store.ResultState {
	if s.result == nil {
		return &store.ResultState{Matched: false}
	}
	return s.result
}

func (s *stubService) Accept(context.Context, int64) (bool, error) {
	return s.acceptBoth, s.acceptErr
}

func (s *stubService) Reject(context.Context, int64) error {
	s.rejected = true
	return nil
}

func (s *stubService) QueueCount(context.Context, int64, match.Settings) (int, error) {
	return s.queueCount, nil
}

type stubSettings struct {
	raw   json.RawMessage
	saved json.RawMessage
}

func (s *stubSettings) GetSettings(context.Context, int64) (json.RawMessage, error) {
	return s.raw, nil
}

func (s *stubSettings) PutSettings(_ context.Context, _ int64, raw json.RawMessage) error {
	s.saved = raw
	return nil
}

type stubHistory struct {
	records   []history.Record
	deleteOK  bool
	deletedN  int64
	deleteAll bool
}

func (s *stubHistory) List(context.Context, int64, int) ([]history.Record, error) {
	return s.records, nil
}

func (s *stubHistory) Delete(context.Context, int64, int64) (bool, error) {
	return s.deleteOK, nil
}

func (s *stubHistory) DeleteAll(context.Context, int64) (int64, error) {
	s.deleteAll = true
	return s.deletedN, nil
}

type stubSessions struct {
	tokens map[string]int64
}

func (s *stubSessions) Get(_ context.Context, token string) (*session.Session, error) {
	id, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	return &session.Session{Token: token, UserID: id}, nil
}

func (s *stubSessions) Touch(context.Context, string) error { return nil }

func newTestServer(svc *stubService) (*Server, *stubSettings, *stubHistory) {
	settings := &stubSettings{}
	hist := &stubHistory{}
	sessions := &stubSessions{tokens: map[string]int64{"tok-1": 1}}
	return NewServer(svc, settings, hist, sessions, nil), settings, hist
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestAuthRequired(t *testing.T) {
	s, _, _ := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/match/result", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsUnknownToken(t *testing.T) {
	s, _, _ := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/match/result", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartUsesStoredSettingsWithBodyOverlay(t *testing.T) {
	svc := &stubService{}
	s, settings, _ := newTestServer(svc)
	settings.raw = json.RawMessage(`{"matching_mode":"nearby","preferred_location":"seoul"}`)

	rec := doRequest(t, s, http.MethodPost, "/match/start", `{"matching_mode":"interest","accelerate":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, match.ModeInterest, svc.startSettings.Mode, "body overrides stored mode")
	require.Equal(t, "seoul", svc.startSettings.Location, "stored fields survive the overlay")
	require.True(t, svc.startAccel)
}

func TestStartEmptyBodyDefaults(t *testing.T) {
	svc := &stubService{}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/start", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, match.ModeRandom, svc.startSettings.Mode)
	require.False(t, svc.startAccel)
}

func TestStartInsufficientPoints(t *testing.T) {
	svc := &stubService{startErr: points.ErrInsufficientPoints}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/start", `{"accelerate":true}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "insufficient points", decodeBody(t, rec)["error"])
}

func TestStartInvalidSettingsIsBadRequest(t *testing.T) {
	svc := &stubService{startErr: fmt.Errorf("%w: age range 40-20", match.ErrInvalidSettings)}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/start", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody(t, rec)["error"], "age range")
}

func TestStartInternalErrorIsSanitized(t *testing.T) {
	svc := &stubService{startErr: errors.New("dial tcp 10.0.0.3:6379: connection refused")}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/start", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "start failed", decodeBody(t, rec)["error"], "internal detail stays out of the response")
}

func TestAccelerateNotSeeking(t *testing.T) {
	svc := &stubService{startErr: match.ErrNotSeeking}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/accelerate", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "not currently seeking", decodeBody(t, rec)["error"])
}

func TestResultWaiting(t *testing.T) {
	s, _, _ := newTestServer(&stubService{})

	rec := doRequest(t, s, http.MethodGet, "/match/result", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["matched"])
	require.NotContains(t, body, "user")
	require.NotContains(t, body, "room_id")
}

func TestResultMatched(t *testing.T) {
	svc := &stubService{result: &store.ResultState{
		Matched:     true,
		MatchedUser: &store.MatchedUser{ID: 2, DisplayName: "Jordan"},
		Score:       87,
		Status:      store.StatusPending,
		OtherStatus: store.StatusPending,
		RoomID:      "room-1",
		Stats:       store.MatchStats{TotalMatches: 3},
	}}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodGet, "/match/result", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["matched"])
	require.Equal(t, float64(87), body["score"])
	require.Equal(t, "room-1", body["room_id"])

	user := body["user"].(map[string]interface{})
	require.Equal(t, float64(2), user["id"])

	stats := body["match_stats"].(map[string]interface{})
	require.Equal(t, float64(3), stats["total_matches"])
}

func TestResultMatchedCarriesZeroScore(t *testing.T) {
	svc := &stubService{result: &store.ResultState{
		Matched:     true,
		MatchedUser: &store.MatchedUser{ID: 2},
		Score:       0,
		Status:      store.StatusPending,
		OtherStatus: store.StatusPending,
		RoomID:      "room-1",
	}}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodGet, "/match/result", "")

	body := decodeBody(t, rec)
	require.Contains(t, body, "score", "a matched result always reports its score")
	require.Equal(t, float64(0), body["score"])
	require.Contains(t, body, "is_anonymous")
}

func TestResultRejectedSentinel(t *testing.T) {
	svc := &stubService{result: &store.ResultState{Matched: false, Reason: store.ReasonRejected}}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodGet, "/match/result", "")

	body := decodeBody(t, rec)
	require.Equal(t, false, body["matched"])
	require.Equal(t, store.ReasonRejected, body["reason"])
}

func TestAccept(t *testing.T) {
	svc := &stubService{acceptBoth: true}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/accept", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["both_accepted"])
}

func TestAcceptNoActiveMatch(t *testing.T) {
	svc := &stubService{acceptErr: match.ErrNoActiveMatch}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/accept", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAlwaysSucceeds(t *testing.T) {
	svc := &stubService{}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/cancel", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancelled", decodeBody(t, rec)["message"])
	require.True(t, svc.cancelled)
}

func TestRejectAlwaysSucceeds(t *testing.T) {
	svc := &stubService{}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodPost, "/match/reject", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, svc.rejected)
}

func TestQueueCount(t *testing.T) {
	svc := &stubService{queueCount: 4}
	s, _, _ := newTestServer(svc)

	rec := doRequest(t, s, http.MethodGet, "/match/queue-count", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(4), decodeBody(t, rec)["count"])
}

func TestPutSettingsValidation(t *testing.T) {
	s, _, _ := newTestServer(&stubService{})

	rec := doRequest(t, s, http.MethodPut, "/match/settings", `{"matching_mode":"bogus"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutSettingsPersists(t *testing.T) {
	s, settings, _ := newTestServer(&stubService{})

	rec := doRequest(t, s, http.MethodPut, "/match/settings", `{"matching_mode":"nearby","preferred_location":"Busan"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, settings.saved)

	var saved match.Settings
	require.NoError(t, json.Unmarshal(settings.saved, &saved))
	require.Equal(t, match.ModeNearby, saved.Mode)
	require.Equal(t, "busan", saved.Location, "locations are normalized to lower case")
}

func TestHistoryList(t *testing.T) {
	svc := &stubService{}
	s, _, hist := newTestServer(svc)
	hist.records = []history.Record{{ID: 7, UserID: 1, MatchedUserID: 2, Score: 90, RoomID: "room-1"}}

	rec := doRequest(t, s, http.MethodGet, "/match/history?limit=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)["history"].([]interface{})
	require.Len(t, list, 1)
}

func TestHistoryListEmptyIsArray(t *testing.T) {
	s, _, _ := newTestServer(&stubService{})

	rec := doRequest(t, s, http.MethodGet, "/match/history", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"history":[]`)
}

func TestHistoryDeleteNotFound(t *testing.T) {
	s, _, _ := newTestServer(&stubService{})

	rec := doRequest(t, s, http.MethodDelete, "/match/history/99", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryDeleteAll(t *testing.T) {
	s, _, hist := newTestServer(&stubService{})
	hist.deletedN = 5

	rec := doRequest(t, s, http.MethodDelete, "/match/history", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(5), decodeBody(t, rec)["deleted"])
	require.True(t, hist.deleteAll)
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}
