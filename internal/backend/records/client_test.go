package records_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offtask/internal/backend/records"
	"offtask/internal/config"
	"offtask/internal/service"
)

const testToken = "secret-token"

// fakeApp emulates one records app.
type fakeApp struct {
	mu      sync.Mutex
	records map[int64]string
	nextID  int64
	queries []string
}

func newFakeApp() *fakeApp {
	return &fakeApp{records: map[int64]string{}, nextID: 1}
}

func (a *fakeApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.Header.Get("X-Cybozu-API-Token") != testToken {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "GAIA_IA02", "message": "invalid token"})
		return
	}

	switch r.Method + " " + r.URL.Path {
	case "GET /k/v1/records.json":
		a.queries = append(a.queries, r.URL.Query().Get("query"))
		var limit, offset int
		_, _ = fmt.Sscanf(r.URL.Query().Get("query"), "order by $id asc limit %d offset %d", &limit, &offset)
		ids := make([]int64, 0, len(a.records))
		for id := range a.records {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		recs := []map[string]map[string]string{}
		for i := offset; i < len(ids) && i < offset+limit; i++ {
			recs = append(recs, map[string]map[string]string{
				"$id":       {"type": "__ID__", "value": strconv.FormatInt(ids[i], 10)},
				"task_text": {"type": "SINGLE_LINE_TEXT", "value": a.records[ids[i]]},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": recs, "totalCount": nil})
	case "POST /k/v1/record.json":
		var body struct {
			App    string                       `json:"app"`
			Record map[string]map[string]string `json:"record"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := a.nextID
		a.nextID++
		a.records[id] = body.Record["task_text"]["value"]
		_ = json.NewEncoder(w).Encode(map[string]string{"id": strconv.FormatInt(id, 10), "revision": "1"})
	case "PUT /k/v1/record.json":
		var body struct {
			ID     int64                        `json:"id"`
			Record map[string]map[string]string `json:"record"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := a.records[body.ID]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "GAIA_RE01", "message": "record not found"})
			return
		}
		a.records[body.ID] = body.Record["task_text"]["value"]
		_ = json.NewEncoder(w).Encode(map[string]string{"revision": "2"})
	case "DELETE /k/v1/records.json":
		id, _ := strconv.ParseInt(r.URL.Query().Get("ids[0]"), 10, 64)
		delete(a.records, id)
		_, _ = w.Write([]byte("{}"))
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func (a *fakeApp) text(id int64) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.records[id]
	return s, ok
}

func newTestClient(t *testing.T, h http.Handler) *records.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := records.NewWithOptions(records.Options{
		BaseURL:    srv.URL,
		AppID:      "7",
		APIToken:   testToken,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestClient_RoundTrip(t *testing.T) {
	app := newFakeApp()
	c := newTestClient(t, app)
	ctx := context.Background()

	created, err := c.CreateTask(ctx, "buy milk")
	require.NoError(t, err)
	require.Equal(t, service.Task{ID: 1, Text: "buy milk"}, created)

	require.NoError(t, c.UpdateTask(ctx, 1, "buy oat milk"))
	text, ok := app.text(1)
	require.True(t, ok)
	require.Equal(t, "buy oat milk", text)

	got, err := c.ListTasks(ctx)
	require.NoError(t, err)
	require.Equal(t, []service.Task{{ID: 1, Text: "buy oat milk"}}, got)

	require.NoError(t, c.DeleteTask(ctx, 1))
	_, ok = app.text(1)
	require.False(t, ok)
}

func TestClient_ListTasksPages(t *testing.T) {
	app := newFakeApp()
	for i := int64(1); i <= records.PageSize+3; i++ {
		app.records[i] = "task " + strconv.FormatInt(i, 10)
	}
	c := newTestClient(t, app)

	got, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, got, records.PageSize+3)
	require.Equal(t, int64(records.PageSize+3), got[len(got)-1].ID)
	require.Equal(t, []string{
		"order by $id asc limit 500 offset 0",
		"order by $id asc limit 500 offset 500",
	}, app.queries)
}

func TestClient_RejectedCarriesMessage(t *testing.T) {
	c := newTestClient(t, newFakeApp())

	err := c.UpdateTask(context.Background(), 99, "x")
	require.ErrorIs(t, err, service.ErrRejected)
	require.Contains(t, err.Error(), "404")
	require.Contains(t, err.Error(), "record not found")
}

func TestClient_BadTokenIsRejected(t *testing.T) {
	srv := httptest.NewServer(newFakeApp())
	t.Cleanup(srv.Close)
	c, err := records.NewWithOptions(records.Options{BaseURL: srv.URL, AppID: "7", APIToken: "wrong"})
	require.NoError(t, err)

	_, err = c.ListTasks(context.Background())
	require.ErrorIs(t, err, service.ErrRejected)
	require.Contains(t, err.Error(), "invalid token")
}

func TestClient_TimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	c, err := records.NewWithOptions(records.Options{
		BaseURL: srv.URL,
		AppID:   "7",
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = c.CreateTask(context.Background(), "slow")
	require.ErrorIs(t, err, service.ErrUnreachable)
	require.Contains(t, err.Error(), "timed out")
}

func TestClient_ConnectionRefusedIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := records.NewWithOptions(records.Options{BaseURL: base, AppID: "7"})
	require.NoError(t, err)
	err = c.DeleteTask(context.Background(), 1)
	require.ErrorIs(t, err, service.ErrUnreachable)
}

func TestNewWithOptions_Validation(t *testing.T) {
	_, err := records.NewWithOptions(records.Options{BaseURL: "not a url", AppID: "1"})
	require.Error(t, err)

	_, err = records.NewWithOptions(records.Options{BaseURL: "https://example.test"})
	require.Error(t, err)
}

func TestNew_FromSettings(t *testing.T) {
	app := newFakeApp()
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)

	cfg := &config.Config{Settings: config.Settings{
		APITimeout: time.Second,
		Records: config.RecordsSettings{
			BaseURL:  srv.URL + "/",
			AppID:    "7",
			APIToken: testToken,
		},
	}}
	c, err := records.New(cfg)
	require.NoError(t, err)

	created, err := c.CreateTask(context.Background(), "from settings")
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)
}
