package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pricecompare/models"
	"pricecompare/pipeline"
	"pricecompare/repository"
	"pricecompare/scheduler"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	result *models.ComparisonResult
	err    error
}

func (f *fakeSearcher) Compare(ctx context.Context, query string) (*models.ComparisonResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Query = query
	return &res, nil
}

func (f *fakeSearcher) Sources() []string {
	return []string{"bigbasket", "blinkit", "swiggy"}
}

type fakeTasks struct {
	tasks map[string]models.SearchTask
	full  bool
}

func (f *fakeTasks) Submit(query string) models.SearchTask {
	task := *models.NewSearchTask(query)
	if f.full {
		task.Fail("Task queue is full")
	}
	f.tasks[task.ID] = task
	return task
}

func (f *fakeTasks) Get(taskID string) (models.SearchTask, error) {
	task, ok := f.tasks[taskID]
	if !ok {
		return models.SearchTask{}, scheduler.ErrTaskNotFound
	}
	return task, nil
}

func (f *fakeTasks) Stats() scheduler.TaskStats {
	return scheduler.TaskStats{TotalTasks: len(f.tasks)}
}

type fakeWatches struct {
	mu      sync.Mutex
	nextID  int
	watches map[int]models.Watch
	alerts  map[int][]models.WatchAlert
	err     error
}

func newFakeWatches() *fakeWatches {
	return &fakeWatches{
		nextID:  1,
		watches: map[int]models.Watch{},
		alerts:  map[int][]models.WatchAlert{},
	}
}

func (f *fakeWatches) AddWatch(ctx context.Context, query string, targetPrice *decimal.Decimal) (*models.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	w := models.Watch{ID: f.nextID, Query: query, TargetPrice: targetPrice, IsActive: true, CreatedAt: time.Now()}
	f.watches[w.ID] = w
	f.nextID++
	return &w, nil
}

func (f *fakeWatches) GetWatches(ctx context.Context) ([]models.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Watch
	for _, w := range f.watches {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeWatches) GetWatch(ctx context.Context, id int) (*models.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watches[id]
	if !ok {
		return nil, repository.ErrWatchNotFound
	}
	return &w, nil
}

func (f *fakeWatches) DeleteWatch(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watches[id]; !ok {
		return repository.ErrWatchNotFound
	}
	delete(f.watches, id)
	return nil
}

func (f *fakeWatches) GetAlerts(ctx context.Context, watchID int) ([]models.WatchAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts[watchID], nil
}

type fakeChecker struct {
	summary scheduler.CheckSummary
}

func (f *fakeChecker) CheckNow(ctx context.Context) (scheduler.CheckSummary, error) {
	return f.summary, nil
}

func okResult() *models.ComparisonResult {
	return &models.ComparisonResult{
		Status:       models.ComparisonOK,
		TotalMatches: 1,
		Headers:      models.ComparisonHeaders,
		Rows: []models.ComparisonRow{
			{Store: "Blinkit", Brand: "Amul", Packing: "1 L", ItemName: "Taaza Milk", Price: "₹66", Relevance: 82.5},
		},
	}
}

func newRouter(svc Services) *mux.Router {
	r := mux.NewRouter()
	NewHandlers(svc, log.New(io.Discard)).Register(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})

	rec := do(t, r, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["watches"])
	assert.Len(t, body["sources"], 3)
}

func TestSearch(t *testing.T) {
	t.Run("returns the comparison envelope", func(t *testing.T) {
		r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})

		rec := do(t, r, http.MethodPost, "/api/v1/search", `{"query":"  milk 1 litre "}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Success   bool                    `json:"success"`
			Query     string                  `json:"query"`
			Data      models.ComparisonResult `json:"data"`
			RequestID string                  `json:"requestId"`
		}
		decode(t, rec, &body)
		assert.True(t, body.Success)
		assert.Equal(t, "milk 1 litre", body.Query)
		assert.Equal(t, models.ComparisonOK, body.Data.Status)
		require.Len(t, body.Data.Rows, 1)
		assert.Equal(t, "Blinkit", body.Data.Rows[0].Store)
		assert.NotEmpty(t, body.RequestID)
	})

	t.Run("empty query is a bad request", func(t *testing.T) {
		r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})

		rec := do(t, r, http.MethodPost, "/api/v1/search", `{"query":"   "}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "error")
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})
		rec := do(t, r, http.MethodPost, "/api/v1/search", `{"query":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty query from the comparator is a bad request", func(t *testing.T) {
		r := newRouter(Services{Searcher: &fakeSearcher{err: pipeline.ErrEmptyQuery}})
		rec := do(t, r, http.MethodPost, "/api/v1/search", `{"query":"milk"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("comparator failure is a server error", func(t *testing.T) {
		r := newRouter(Services{Searcher: &fakeSearcher{err: errors.New("boom")}})
		rec := do(t, r, http.MethodPost, "/api/v1/search", `{"query":"milk"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("wrong method is rejected", func(t *testing.T) {
		r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})
		rec := do(t, r, http.MethodGet, "/api/v1/search", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestSearchAsync(t *testing.T) {
	tasks := &fakeTasks{tasks: map[string]models.SearchTask{}}
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}, Tasks: tasks})

	rec := do(t, r, http.MethodPost, "/api/v1/search/async", `{"query":"milk"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var task models.SearchTask
	decode(t, rec, &task)
	assert.Equal(t, "milk", task.Query)
	assert.Equal(t, models.TaskStatusQueued, task.Status)

	rec = do(t, r, http.MethodGet, "/api/v1/tasks/"+task.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/v1/tasks/task_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/v1/tasks/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats scheduler.TaskStats
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalTasks)

	tasks.full = true
	rec = do(t, r, http.MethodPost, "/api/v1/search/async", `{"query":"milk"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchAsyncWithoutTasks(t *testing.T) {
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})

	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodPost, "/api/v1/search/async", `{"query":"milk"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodGet, "/api/v1/tasks/stats", "").Code)
}

func TestGetComparisons(t *testing.T) {
	history := repository.NewMemoryHistory(10)
	ctx := context.Background()
	for _, q := range []string{"milk", "eggs", "atta"} {
		res := okResult()
		res.Query = q
		require.NoError(t, history.Record(ctx, res))
	}
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}, History: history})

	rec := do(t, r, http.MethodGet, "/api/v1/comparisons?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.ComparisonResult
	decode(t, rec, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "atta", got[0].Query)
	assert.Equal(t, "eggs", got[1].Query)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/comparisons?limit=abc", "").Code)

	empty := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})
	rec = do(t, empty, http.MethodGet, "/api/v1/comparisons", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestWatches(t *testing.T) {
	watches := newFakeWatches()
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}, Watches: watches, Checker: &fakeChecker{summary: scheduler.CheckSummary{Checked: 1}}})

	rec := do(t, r, http.MethodGet, "/api/v1/watches", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/api/v1/watches", `{"query":"toned milk","target_price":"60"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Watch
	decode(t, rec, &created)
	assert.Equal(t, "toned milk", created.Query)
	require.NotNil(t, created.TargetPrice)
	assert.True(t, created.TargetPrice.Equal(decimal.NewFromInt(60)))

	rec = do(t, r, http.MethodGet, "/api/v1/watches/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	watches.alerts[1] = []models.WatchAlert{{ID: 1, WatchID: 1, Store: "Blinkit", ItemName: "Toned Milk", Price: decimal.NewFromInt(52)}}
	rec = do(t, r, http.MethodGet, "/api/v1/watches/1/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []models.WatchAlert
	decode(t, rec, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Blinkit", alerts[0].Store)

	rec = do(t, r, http.MethodPost, "/api/v1/watches/check", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodDelete, "/api/v1/watches/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/api/v1/watches/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/watches/1/alerts", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/watches/abc", "").Code)
}

func TestAddWatchValidation(t *testing.T) {
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}, Watches: newFakeWatches()})

	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{"target_price":"10"}`},
		{"blank query", `{"query":"  "}`},
		{"negative target", `{"query":"milk","target_price":"-1"}`},
		{"malformed body", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/v1/watches", tt.body).Code)
		})
	}
}

func TestWatchesWithoutDatabase(t *testing.T) {
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})

	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodGet, "/api/v1/watches", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodPost, "/api/v1/watches", `{"query":"milk"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodPost, "/api/v1/watches/check", "").Code)
}

func TestLegacyRoutesRedirect(t *testing.T) {
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})

	rec := do(t, r, http.MethodPost, "/api/search?x=1", `{"query":"milk"}`)

	assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/api/v1/search?x=1", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get("X-API-Deprecation-Warning"))
}

func TestUnknownRouteIsJSON(t *testing.T) {
	r := newRouter(Services{Searcher: &fakeSearcher{result: okResult()}})

	rec := do(t, r, http.MethodGet, "/api/v1/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Route not found"}`, rec.Body.String())
}
