package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Extract/internal/api"
	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/mq"
	"github.com/shaiso/Extract/internal/plugin/plugintest"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/repo/litestore"
	"github.com/shaiso/Extract/internal/repo/repotest"
)

type recordingTrigger struct {
	mu       sync.Mutex
	payloads []mq.JobTriggerPayload
}

func (r *recordingTrigger) PublishJobTrigger(_ context.Context, p mq.JobTriggerPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return nil
}

func (r *recordingTrigger) all() []mq.JobTriggerPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mq.JobTriggerPayload(nil), r.payloads...)
}

type testServer struct {
	store   repo.Store
	trigger *recordingTrigger
	server  *httptest.Server
}

func newServer(t *testing.T, withTrigger bool) *testServer {
	t.Helper()
	store, err := litestore.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ts := &testServer{store: store, trigger: &recordingTrigger{}}
	cfg := api.Config{
		Store: store,
		Catalog: plugintest.Registry(
			[]*plugintest.Connector{plugintest.NewConnector("fake")},
			[]*plugintest.Task{plugintest.NewTask("validation", nil, nil), plugintest.NewTask("archive", nil, nil)},
		),
	}
	if withTrigger {
		cfg.Trigger = ts.trigger
	}

	mux := http.NewServeMux()
	api.NewHandler(cfg).RegisterRoutes(mux)
	ts.server = httptest.NewServer(mux)
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestRequests_ListAndShow(t *testing.T) {
	ts := newServer(t, false)
	c := repotest.NewConnector(t, ts.store)
	running := repotest.NewRequest(t, ts.store, c.ID, domain.RequestStatusRunning)
	repotest.NewRequest(t, ts.store, c.ID, domain.RequestStatusError)

	status, out := ts.do(t, http.MethodGet, "/api/v1/requests?status=running", nil)
	require.Equal(t, http.StatusOK, status)
	data := out["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, running.ID.String(), data[0].(map[string]any)["id"])

	status, out = ts.do(t, http.MethodGet, "/api/v1/requests/"+running.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "RUNNING", out["data"].(map[string]any)["status"])

	status, _ = ts.do(t, http.MethodGet, "/api/v1/requests?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, out = ts.do(t, http.MethodGet, "/api/v1/requests/6f1c2d7e-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(out))
}

func TestApplyAction_RetryTriggersExecute(t *testing.T) {
	ts := newServer(t, true)
	c := repotest.NewConnector(t, ts.store)
	p := repotest.NewProcess(t, ts.store, "validation")
	req := repotest.NewRequest(t, ts.store, c.ID, domain.RequestStatusImported)
	req.ProcessID = &p.ID
	req.TransitionTo(domain.RequestStatusError, req.CreatedAt)
	require.NoError(t, ts.store.UpdateRequest(context.Background(), req, domain.RequestStatusImported))

	status, out := ts.do(t, http.MethodPost, "/api/v1/requests/"+req.ID.String()+"/actions",
		api.ActionRequest{Action: "retry", Actor: "alice"})
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "RUNNING", out["data"].(map[string]any)["status"])

	triggers := ts.trigger.all()
	require.Len(t, triggers, 1)
	assert.Equal(t, string(domain.JobExecute), triggers[0].Kind)
	require.NotNil(t, triggers[0].RequestID)
	assert.Equal(t, req.ID, *triggers[0].RequestID)

	status, out = ts.do(t, http.MethodGet, "/api/v1/requests/"+req.ID.String()+"/history", nil)
	require.Equal(t, http.StatusOK, status)
	history := out["data"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].(map[string]any)["actor"])

	// Второй retry: запрос уже RUNNING.
	status, out = ts.do(t, http.MethodPost, "/api/v1/requests/"+req.ID.String()+"/actions",
		api.ActionRequest{Action: "retry", Actor: "alice"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ACTION_NOT_ALLOWED", errorCode(out))
}

func TestApplyAction_Validation(t *testing.T) {
	ts := newServer(t, true)
	c := repotest.NewConnector(t, ts.store)
	req := repotest.NewRequest(t, ts.store, c.ID, domain.RequestStatusStandby)
	path := "/api/v1/requests/" + req.ID.String() + "/actions"

	status, _ := ts.do(t, http.MethodPost, path, api.ActionRequest{Action: "restart", Actor: "alice"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodPost, path, api.ActionRequest{Action: "resume"})
	assert.Equal(t, http.StatusBadRequest, status)

	// Без процесса продолжить нельзя, но отклонить можно.
	status, _ = ts.do(t, http.MethodPost, path, api.ActionRequest{Action: "resume", Actor: "alice"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, out := ts.do(t, http.MethodPost, path, api.ActionRequest{Action: "reject", Actor: "alice", Remark: "duplicate order"})
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)
	assert.Equal(t, "REJECTED", data["status"])
	assert.Equal(t, "duplicate order", data["remark"])
	assert.Empty(t, ts.trigger.all())
}

func TestListPlugins(t *testing.T) {
	ts := newServer(t, false)

	status, out := ts.do(t, http.MethodGet, "/api/v1/plugins", nil)
	require.Equal(t, http.StatusOK, status)
	data := out["data"].(map[string]any)

	tasks := data["tasks"].([]any)
	require.Len(t, tasks, 2)
	assert.Equal(t, "archive", tasks[0].(map[string]any)["code"])
	assert.Equal(t, "[]", tasks[0].(map[string]any)["params_schema"])
	assert.Len(t, data["connectors"].([]any), 1)
}

func TestSchedules(t *testing.T) {
	ts := newServer(t, false)

	status, out := ts.do(t, http.MethodGet, "/api/v1/schedules", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["data"].([]any), len(domain.RequestJobKinds()))

	body := map[string]any{
		"mode": "ranges",
		"ranges": []map[string]any{
			{"dayfrom": 1, "dayto": 5, "timefrom": "08:00", "timeto": "18:00"},
		},
	}
	status, out = ts.do(t, http.MethodPut, "/api/v1/schedules/export", body)
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "RANGES", out["data"].(map[string]any)["mode"])

	values, err := ts.store.GetSettings(context.Background(), "schedule.export.")
	require.NoError(t, err)
	assert.Equal(t, "RANGES", values[domain.ScheduleModeKey(domain.JobExport)])

	status, out = ts.do(t, http.MethodGet, "/api/v1/schedules/export", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["data"].(map[string]any)["ranges"].([]any), 1)

	bad := map[string]any{
		"mode":   "RANGES",
		"ranges": []map[string]any{{"dayfrom": 0, "dayto": 9, "timefrom": "25:00", "timeto": "18:00"}},
	}
	status, _ = ts.do(t, http.MethodPut, "/api/v1/schedules/export", bad)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/schedules/plugins.sync", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSync(t *testing.T) {
	ts := newServer(t, false)

	status, out := ts.do(t, http.MethodPut, "/api/v1/sync", api.UpdateSyncRequest{Enabled: true, Cron: "*/5 * * * *"})
	require.Equal(t, http.StatusOK, status, out)
	data := out["data"].(map[string]any)
	assert.Equal(t, true, data["enabled"])
	assert.NotEmpty(t, data["next_run"])

	status, _ = ts.do(t, http.MethodPut, "/api/v1/sync", api.UpdateSyncRequest{Enabled: true, Cron: "every minute"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTriggerJob(t *testing.T) {
	ts := newServer(t, true)

	status, out := ts.do(t, http.MethodPost, "/api/v1/jobs/import/trigger", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, true, out["data"].(map[string]any)["queued"])
	require.Len(t, ts.trigger.all(), 1)
	assert.Equal(t, "manual", ts.trigger.all()[0].Reason)

	status, _ = ts.do(t, http.MethodPost, "/api/v1/jobs/cleanup/trigger", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	noBroker := newServer(t, false)
	status, out = noBroker.do(t, http.MethodPost, "/api/v1/jobs/import/trigger", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "UNAVAILABLE", errorCode(out))
}
