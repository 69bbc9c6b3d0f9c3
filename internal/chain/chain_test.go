package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/plugin/plugintest"
)

type memHistory struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
	err     error
}

func (h *memHistory) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.err != nil {
		return h.err
	}
	rec.ID = uuid.New()
	rec.Step = len(h.records) + 1
	h.records = append(h.records, *rec)
	return nil
}

type memNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *memNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

type fixture struct {
	calls    *plugintest.Calls
	history  *memHistory
	notifier *memNotifier
	exec     *Executor
}

func newFixture(tasks ...*plugintest.Task) *fixture {
	f := &fixture{
		history:  &memHistory{},
		notifier: &memNotifier{},
	}
	f.exec = New(Config{
		Tasks:    plugintest.Registry(nil, tasks),
		History:  f.history,
		Notifier: f.notifier,
		Email:    &domain.EmailSettings{},
		Now:      func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) },
	})
	return f
}

func runningRequest() *domain.Request {
	return &domain.Request{
		ID:          uuid.New(),
		ConnectorID: uuid.New(),
		OrderLabel:  "ORD-1",
		Status:      domain.RequestStatusRunning,
	}
}

func standbyFn(context.Context, domain.Request, map[string]string) plugin.TaskResult {
	return plugin.Standby("please validate")
}

func TestRun_AllSucceed(t *testing.T) {
	calls := &plugintest.Calls{}
	f := newFixture(
		plugintest.NewTask("a", calls, nil),
		plugintest.NewTask("b", calls, nil),
		plugintest.NewTask("c", calls, nil),
	)

	req := runningRequest()
	// Порядок задаётся Position, а не порядком в срезе.
	tasks := []domain.Task{
		{Code: "c", Position: 3},
		{Code: "a", Position: 1},
		{Code: "b", Position: 2, Params: map[string]string{"k": "v"}},
	}

	out, err := f.exec.Run(context.Background(), req, tasks, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Executed)
	assert.NoError(t, out.Failure)
	assert.Equal(t, []string{"a", "b", "c"}, calls.Codes())
	assert.Equal(t, map[string]string{"k": "v"}, calls.All()[1].Params)

	assert.Equal(t, domain.RequestStatusFinished, req.Status)
	assert.Equal(t, 3, req.TaskIndex)
	assert.NotNil(t, req.EndedAt)

	require.Len(t, f.history.records, 3)
	for i, rec := range f.history.records {
		assert.Equal(t, i+1, rec.ProcessStep)
		assert.Equal(t, domain.HistoryStatusFinished, rec.Status)
		assert.Equal(t, domain.SystemActor, rec.Actor)
		assert.NotNil(t, rec.EndedAt)
	}
	assert.Empty(t, f.notifier.events)
}

func TestRun_StandbyStopsChain(t *testing.T) {
	calls := &plugintest.Calls{}
	f := newFixture(
		plugintest.NewTask("extract", calls, nil),
		plugintest.NewTask("validation", calls, standbyFn),
		plugintest.NewTask("deliver", calls, nil),
	)

	req := runningRequest()
	tasks := []domain.Task{
		{Code: "extract", Position: 1},
		{Code: "validation", Position: 2, Label: "Operator check"},
		{Code: "deliver", Position: 3},
	}

	out, err := f.exec.Run(context.Background(), req, tasks, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Executed)
	assert.Equal(t, []string{"extract", "validation"}, calls.Codes())
	assert.Equal(t, domain.RequestStatusStandby, req.Status)
	assert.Equal(t, 2, req.TaskIndex)
	assert.Equal(t, "please validate", req.Message)

	require.Len(t, f.history.records, 2)
	assert.Equal(t, domain.HistoryStatusStandby, f.history.records[1].Status)
	assert.Equal(t, "Operator check", f.history.records[1].TaskLabel)

	require.Len(t, f.notifier.events, 1)
	ev := f.notifier.events[0]
	assert.Equal(t, notify.EventRequestStandby, ev.Type)
	assert.Equal(t, notify.AudienceOperator, ev.Audience)
	assert.Equal(t, "Operator check", ev.TaskLabel)
}

func TestRun_ResumeFromTaskIndex(t *testing.T) {
	calls := &plugintest.Calls{}
	f := newFixture(
		plugintest.NewTask("extract", calls, nil),
		plugintest.NewTask("validation", calls, standbyFn),
		plugintest.NewTask("deliver", calls, nil),
	)

	req := runningRequest()
	req.TaskIndex = 2
	tasks := []domain.Task{
		{Code: "extract", Position: 1},
		{Code: "validation", Position: 2},
		{Code: "deliver", Position: 3},
	}

	_, err := f.exec.Run(context.Background(), req, tasks, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"deliver"}, calls.Codes())
	assert.Equal(t, domain.RequestStatusFinished, req.Status)
	require.Len(t, f.history.records, 1)
	assert.Equal(t, 3, f.history.records[0].ProcessStep)
}

func TestRun_RejectShortCircuits(t *testing.T) {
	calls := &plugintest.Calls{}
	reject := func(context.Context, domain.Request, map[string]string) plugin.TaskResult {
		remark := "out of area"
		rejected := true
		res := plugin.Success("rejected")
		res.Update = domain.RequestUpdate{Remark: &remark, Rejected: &rejected}
		return res
	}
	f := newFixture(
		plugintest.NewTask("reject", calls, reject),
		plugintest.NewTask("deliver", calls, nil),
	)

	req := runningRequest()
	out, err := f.exec.Run(context.Background(), req, []domain.Task{
		{Code: "reject", Position: 1},
		{Code: "deliver", Position: 2},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Executed)
	assert.Equal(t, []string{"reject"}, calls.Codes())
	assert.Equal(t, domain.RequestStatusRejected, req.Status)
	assert.True(t, req.Rejected)
	assert.Equal(t, "out of area", req.Remark)
	assert.Equal(t, 1, req.TaskIndex)
	require.Len(t, f.history.records, 1)
}

func TestRun_UnavailablePlugin(t *testing.T) {
	calls := &plugintest.Calls{}
	f := newFixture(plugintest.NewTask("a", calls, nil))

	req := runningRequest()
	out, err := f.exec.Run(context.Background(), req, []domain.Task{
		{Code: "a", Position: 1},
		{Code: "missing", Position: 2},
		{Code: "a", Position: 3},
	}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, out.Failure, plugin.ErrUnavailable)
	assert.Equal(t, 1, out.Executed)
	assert.Equal(t, domain.RequestStatusError, req.Status)
	assert.Equal(t, 1, req.TaskIndex)
	assert.Equal(t, plugin.ErrorCodeUnavailable, req.ErrorCode)

	require.Len(t, f.history.records, 2)
	assert.Equal(t, domain.HistoryStatusError, f.history.records[1].Status)
	assert.Equal(t, plugin.ErrorCodeUnavailable, f.history.records[1].ErrorCode)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventRequestError, f.notifier.events[0].Type)
	assert.Equal(t, notify.AudienceAdmin, f.notifier.events[0].Audience)
}

func TestRun_PanicBecomesError(t *testing.T) {
	boom := func(context.Context, domain.Request, map[string]string) plugin.TaskResult {
		panic("nil map write")
	}
	f := newFixture(plugintest.NewTask("boom", nil, boom))

	req := runningRequest()
	_, err := f.exec.Run(context.Background(), req, []domain.Task{{Code: "boom", Position: 1}}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RequestStatusError, req.Status)
	assert.Equal(t, 0, req.TaskIndex)
	assert.Equal(t, plugin.ErrorCodeExecution, req.ErrorCode)
}

func TestRun_NotRunCountsAsError(t *testing.T) {
	notRun := func(context.Context, domain.Request, map[string]string) plugin.TaskResult {
		return plugin.TaskResult{Status: plugin.TaskStatusNotRun, ErrorCode: "SKIPPED_BY_PLUGIN"}
	}
	f := newFixture(plugintest.NewTask("n", nil, notRun))

	req := runningRequest()
	_, err := f.exec.Run(context.Background(), req, []domain.Task{{Code: "n", Position: 1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusError, req.Status)
	assert.Equal(t, "SKIPPED_BY_PLUGIN", req.ErrorCode)
}

func TestRun_TaskSeesSnapshot(t *testing.T) {
	mutate := func(_ context.Context, req domain.Request, _ map[string]string) plugin.TaskResult {
		req.Parameters["injected"] = "yes"
		return plugin.Success("")
	}
	f := newFixture(plugintest.NewTask("m", nil, mutate))

	req := runningRequest()
	req.Parameters = map[string]string{"format": "pdf"}
	_, err := f.exec.Run(context.Background(), req, []domain.Task{{Code: "m", Position: 1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"format": "pdf"}, req.Parameters)
}

func TestRun_EmptyProcessFinishes(t *testing.T) {
	f := newFixture()
	req := runningRequest()
	out, err := f.exec.Run(context.Background(), req, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, out.Executed)
	assert.Equal(t, domain.RequestStatusFinished, req.Status)
	assert.Empty(t, f.history.records)
}

func TestRun_RequiresRunning(t *testing.T) {
	f := newFixture()
	req := runningRequest()
	req.Status = domain.RequestStatusStandby
	_, err := f.exec.Run(context.Background(), req, nil, nil)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, domain.RequestStatusStandby, req.Status)
}

func TestRun_CancelledBetweenTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := &plugintest.Calls{}
	first := func(context.Context, domain.Request, map[string]string) plugin.TaskResult {
		cancel()
		return plugin.Success("")
	}
	f := newFixture(
		plugintest.NewTask("first", calls, first),
		plugintest.NewTask("second", calls, nil),
	)

	req := runningRequest()
	_, err := f.exec.Run(ctx, req, []domain.Task{
		{Code: "first", Position: 1},
		{Code: "second", Position: 2},
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, calls.Codes())
	assert.Equal(t, domain.RequestStatusRunning, req.Status)
	assert.Equal(t, 1, req.TaskIndex)
	require.Len(t, f.history.records, 1)
	assert.Equal(t, "first", f.history.records[0].TaskCode)
}

func TestRun_CancelDuringTaskKeepsHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := &plugintest.Calls{}
	slow := func(ctx context.Context, _ domain.Request, _ map[string]string) plugin.TaskResult {
		cancel()
		<-ctx.Done()
		return plugin.Failure("HTTP", ctx.Err().Error())
	}
	f := newFixture(plugintest.NewTask("slow", calls, slow))

	req := runningRequest()
	_, err := f.exec.Run(ctx, req, []domain.Task{{Code: "slow", Position: 1}}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"slow"}, calls.Codes())
	assert.Equal(t, domain.RequestStatusError, req.Status)
	require.Len(t, f.history.records, 1)
	assert.Equal(t, domain.HistoryStatusError, f.history.records[0].Status)
	assert.Equal(t, 1, f.history.records[0].ProcessStep)
}

func TestRun_CheckpointAfterEachTask(t *testing.T) {
	calls := &plugintest.Calls{}
	f := newFixture(
		plugintest.NewTask("a", calls, nil),
		plugintest.NewTask("b", calls, nil),
		plugintest.NewTask("c", calls, nil),
	)

	var saved []int
	checkpoint := func(_ context.Context, req *domain.Request) error {
		assert.Equal(t, domain.RequestStatusRunning, req.Status)
		saved = append(saved, req.TaskIndex)
		return nil
	}

	req := runningRequest()
	_, err := f.exec.Run(context.Background(), req, []domain.Task{
		{Code: "a", Position: 1},
		{Code: "b", Position: 2},
		{Code: "c", Position: 3},
	}, checkpoint)
	require.NoError(t, err)

	// После последней задачи запрос сохраняет вызывающий.
	assert.Equal(t, []int{1, 2}, saved)
	assert.Equal(t, domain.RequestStatusFinished, req.Status)
	assert.Equal(t, 3, req.TaskIndex)
}

func TestRun_CheckpointFailureStopsChain(t *testing.T) {
	calls := &plugintest.Calls{}
	f := newFixture(
		plugintest.NewTask("a", calls, nil),
		plugintest.NewTask("b", calls, nil),
	)
	leaseLost := errors.New("lease lost")

	req := runningRequest()
	_, err := f.exec.Run(context.Background(), req, []domain.Task{
		{Code: "a", Position: 1},
		{Code: "b", Position: 2},
	}, func(context.Context, *domain.Request) error { return leaseLost })

	assert.ErrorIs(t, err, leaseLost)
	assert.Equal(t, []string{"a"}, calls.Codes())
	assert.Equal(t, domain.RequestStatusRunning, req.Status)
	assert.Len(t, f.history.records, 1)
}

func TestRun_HistoryFailure(t *testing.T) {
	f := newFixture(plugintest.NewTask("a", nil, nil))
	dbDown := errors.New("db down")
	f.history.err = dbDown

	req := runningRequest()
	_, err := f.exec.Run(context.Background(), req, []domain.Task{{Code: "a", Position: 1}}, nil)
	assert.ErrorIs(t, err, dbDown)
}
