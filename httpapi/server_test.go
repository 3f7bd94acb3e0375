package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"command-changelog/model"
)

type staticSnapshots struct {
	snap model.Snapshot
}

func (s staticSnapshots) Snapshot() model.Snapshot { return s.snap }

type stubHistory struct {
	records []model.ChangeRecord
	err     error
	limit   int
}

func (s *stubHistory) Recent(_ context.Context, limit int) ([]model.ChangeRecord, error) {
	s.limit = limit
	return s.records, s.err
}

func newTestRouter(history HistoryReader) (*gin.Engine, *prometheus.Registry) {
	gin.SetMode(gin.TestMode)

	snap := model.NewSnapshot([]model.Command{
		{Name: "!b", Message: "second", UserLevel: "everyone"},
		{Name: "!a", Message: "first", UserLevel: "moderator"},
	})
	reg := prometheus.NewRegistry()
	return NewRouter(staticSnapshots{snap: snap}, history, reg, zap.NewNop()), reg
}

func serve(router *gin.Engine, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(nil)

	w := serve(router, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsExposesRegistry(t *testing.T) {
	router, reg := newTestRouter(nil)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_cycles_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	w := serve(router, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_cycles_total 3")
}

func TestCommandsKeepsSnapshotOrder(t *testing.T) {
	router, _ := newTestRouter(nil)

	w := serve(router, "/commands")
	require.Equal(t, http.StatusOK, w.Code)

	var cmds []model.Command
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cmds))
	require.Len(t, cmds, 2)
	assert.Equal(t, "!b", cmds[0].Name)
	assert.Equal(t, "!a", cmds[1].Name)
}

func TestChangesUnavailableWithoutStorage(t *testing.T) {
	router, _ := newTestRouter(nil)

	w := serve(router, "/changes")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChangesLimit(t *testing.T) {
	history := &stubHistory{records: []model.ChangeRecord{{
		ID:         42,
		Channel:    "ml7support",
		Kind:       "deleted",
		Command:    "!foo",
		DetectedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}}}
	router, _ := newTestRouter(history)

	w := serve(router, "/changes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultChangesLimit, history.limit)

	var records []model.ChangeRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "!foo", records[0].Command)

	serve(router, "/changes?limit=5000")
	assert.Equal(t, maxChangesLimit, history.limit)

	serve(router, "/changes?limit=3")
	assert.Equal(t, 3, history.limit)

	w = serve(router, "/changes?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangesEmptyAndFailing(t *testing.T) {
	history := &stubHistory{}
	router, _ := newTestRouter(history)

	w := serve(router, "/changes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	history.err = errors.New("connection refused")
	w = serve(router, "/changes")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
