package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI отвечает как Extract API и записывает тела запросов.
type fakeAPI struct {
	mu     sync.Mutex
	bodies map[string]json.RawMessage
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{bodies: make(map[string]json.RawMessage)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":[
			{"kind":"import","mode":"ON","ranges":[]},
			{"kind":"export","mode":"RANGES","ranges":[{"dayfrom":1,"dayto":5,"timefrom":"08:00","timeto":"18:00"}]}
		],"total":2}`)
	})
	mux.HandleFunc("PUT /api/v1/schedules/{kind}", func(w http.ResponseWriter, r *http.Request) {
		var req UpdateScheduleRequest
		f.record(r, &req)
		resp, _ := json.Marshal(map[string]any{"data": ScheduleResponse{
			Kind: r.PathValue("kind"), Mode: strings.ToUpper(req.Mode), Windows: req.Windows,
		}})
		writeJSON(w, http.StatusOK, string(resp))
	})
	mux.HandleFunc("GET /api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.bodies["query"] = json.RawMessage(`"` + r.URL.RawQuery + `"`)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, `{"data":[
			{"id":"r-1","order_label":"ORD-7","product_label":"Cadastre","status":"STANDBY","task_index":1,"created_at":"2026-03-02T09:00:00Z"}
		],"total":1}`)
	})
	mux.HandleFunc("POST /api/v1/requests/{id}/actions", func(w http.ResponseWriter, r *http.Request) {
		var req ActionRequest
		f.record(r, &req)
		if req.Action == "resume" {
			writeJSON(w, http.StatusConflict, `{"error":{"code":"ACTION_NOT_ALLOWED","message":"action not allowed: resume from ERROR"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"id":"`+r.PathValue("id")+`","status":"REJECTED","remark":"`+req.Remark+`"}}`)
	})
	mux.HandleFunc("POST /api/v1/jobs/{kind}/trigger", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, `{"data":{"kind":"`+r.PathValue("kind")+`","queued":true}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) record(r *http.Request, v any) {
	var raw json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&raw)
	_ = json.Unmarshal(raw, v)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[r.Method+" "+r.URL.Path] = raw
}

func (f *fakeAPI) body(key string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd("test", &stdout, &stderr)
	root.SetArgs(append([]string{"--api-url", srv.URL}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestScheduleList_JSON(t *testing.T) {
	_, srv := newFakeAPI(t)

	stdout, _, err := run(t, srv, "--json", "schedule", "list")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "schedule_list", []byte(stdout))
}

func TestScheduleList_Table(t *testing.T) {
	_, srv := newFakeAPI(t)

	stdout, _, err := run(t, srv, "schedule", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "KIND"))
	assert.Contains(t, lines[3], "1-5,08:00-18:00")
}

func TestScheduleSet(t *testing.T) {
	f, srv := newFakeAPI(t)

	_, stderr, err := run(t, srv, "schedule", "set", "export",
		"--mode", "ranges", "--range", "1-5,08:00-18:00", "--range", "6-7, 22:00-06:00")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Schedule of export updated")

	var sent UpdateScheduleRequest
	require.NoError(t, json.Unmarshal(f.body("PUT /api/v1/schedules/export"), &sent))
	assert.Equal(t, "ranges", sent.Mode)
	assert.Equal(t, []Window{
		{DayFrom: 1, DayTo: 5, TimeFrom: "08:00", TimeTo: "18:00"},
		{DayFrom: 6, DayTo: 7, TimeFrom: "22:00", TimeTo: "06:00"},
	}, sent.Windows)

	_, _, err = run(t, srv, "schedule", "set", "export", "--mode", "ranges", "--range", "weekdays")
	assert.Error(t, err)
}

func TestRequestList(t *testing.T) {
	f, srv := newFakeAPI(t)

	stdout, _, err := run(t, srv, "request", "list", "--status", "STANDBY", "--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ORD-7")
	assert.Contains(t, stdout, "STANDBY")
	assert.JSONEq(t, `"limit=10&status=STANDBY"`, string(f.body("query")))
}

func TestRequestActions(t *testing.T) {
	f, srv := newFakeAPI(t)

	_, stderr, err := run(t, srv, "request", "reject", "r-1", "--actor", "alice", "--remark", "duplicate")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Request r-1: REJECTED")

	var sent ActionRequest
	require.NoError(t, json.Unmarshal(f.body("POST /api/v1/requests/r-1/actions"), &sent))
	assert.Equal(t, ActionRequest{Action: "reject", Actor: "alice", Remark: "duplicate"}, sent)

	_, _, err = run(t, srv, "request", "resume", "r-1", "--actor", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACTION_NOT_ALLOWED")

	_, _, err = run(t, srv, "request", "retry", "r-1", "--actor", "")
	assert.EqualError(t, err, "--actor is required")
}

func TestJobTrigger(t *testing.T) {
	_, srv := newFakeAPI(t)

	_, stderr, err := run(t, srv, "job", "trigger", "import")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Job import queued")
}

func TestParseWindow(t *testing.T) {
	w, err := parseWindow("6-2,20:00-24:00")
	require.NoError(t, err)
	assert.Equal(t, Window{DayFrom: 6, DayTo: 2, TimeFrom: "20:00", TimeTo: "24:00"}, w)
	assert.Equal(t, "6-2,20:00-24:00", formatWindow(w))

	for _, bad := range []string{"", "1-5", "x-5,08:00-09:00", "1-5,0800"} {
		_, err := parseWindow(bad)
		assert.Error(t, err, bad)
	}
}

func TestOutput_Table(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutput(false, &stdout, &stderr)

	out.Print([]string{"KIND", "RANGES"}, nil, nil)
	assert.Empty(t, stdout.String())
	assert.Equal(t, "No results\n", stderr.String())

	out.Print([]string{"KIND", "RANGES"}, [][]string{{"import", ""}}, nil)
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"import", "-"}, strings.Fields(lines[2]))
}
