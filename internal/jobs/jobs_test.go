package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Extract/internal/chain"
	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/jobs"
	"github.com/shaiso/Extract/internal/notify"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/plugin/plugintest"
	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/repo/litestore"
	"github.com/shaiso/Extract/internal/repo/repotest"
)

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

func (n *memNotifier) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.EventType
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	t         *testing.T
	store     repo.Store
	calls     *plugintest.Calls
	connector *plugintest.Connector
	registry  *plugin.Registry
	notifier  *memNotifier
	cfg       jobs.Config
}

func newFixture(t *testing.T, tasks ...*plugintest.Task) *fixture {
	t.Helper()
	store, err := litestore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		t:         t,
		store:     store,
		calls:     &plugintest.Calls{},
		connector: plugintest.NewConnector("fake"),
		notifier:  &memNotifier{},
	}
	if len(tasks) == 0 {
		tasks = []*plugintest.Task{
			plugintest.NewTask("a", f.calls, nil),
			plugintest.NewTask("b", f.calls, nil),
		}
	}
	f.registry = plugintest.Registry([]*plugintest.Connector{f.connector}, tasks)
	f.cfg = jobs.Config{
		Store:      store,
		Connectors: f.registry,
		Chain: chain.New(chain.Config{
			Tasks:    f.registry,
			History:  store,
			Notifier: f.notifier,
		}),
		Notifier:  f.notifier,
		BatchSize: 10,
		Workers:   2,
	}
	return f
}

// request создаёт запрос в статусе status с назначенным процессом.
func (f *fixture) request(connectorID uuid.UUID, status domain.RequestStatus, processID *uuid.UUID) *domain.Request {
	f.t.Helper()
	req := &domain.Request{
		ConnectorID:  connectorID,
		ProcessID:    processID,
		OrderLabel:   "Order",
		OrderGUID:    uuid.NewString(),
		ProductLabel: "Alpha123",
		ProductGUID:  uuid.NewString(),
		Perimeter:    "POLYGON((0 0,1 0,1 1,0 0))",
		Status:       status,
	}
	require.NoError(f.t, f.store.CreateRequest(context.Background(), req))
	return req
}

func (f *fixture) get(id uuid.UUID) *domain.Request {
	f.t.Helper()
	req, err := f.store.GetRequest(context.Background(), id)
	require.NoError(f.t, err)
	return req
}

func (f *fixture) history(id uuid.UUID) []domain.HistoryRecord {
	f.t.Helper()
	records, err := f.store.ListHistory(context.Background(), id)
	require.NoError(f.t, err)
	return records
}

func labels(records []domain.HistoryRecord) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.TaskLabel)
	}
	return out
}

func TestImport_CreatesRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)

	f.connector.Products = []plugin.Product{
		{OrderLabel: "O1", OrderGUID: "o1", ProductLabel: "P1", ProductGUID: "p1", Perimeter: "POLYGON((0 0,1 0,1 1,0 0))"},
		{OrderLabel: "O1", OrderGUID: "o1", ProductLabel: "P2", ProductGUID: "p2", Perimeter: "POLYGON((0 0,1 0,1 1,0 0))"},
		{OrderLabel: "O2", OrderGUID: "o2", ProductLabel: "P3", ProductGUID: "p3"},
	}

	require.NoError(t, jobs.NewImport(f.cfg).Run(ctx))

	reqs, err := f.store.ListRequests(ctx, domain.RequestFilter{ConnectorID: &c.ID})
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	byProduct := make(map[string]domain.Request)
	for _, r := range reqs {
		byProduct[r.ProductGUID] = r
	}
	assert.Equal(t, domain.RequestStatusImported, byProduct["p1"].Status)
	assert.Equal(t, domain.RequestStatusImported, byProduct["p2"].Status)
	assert.Equal(t, domain.RequestStatusImportFail, byProduct["p3"].Status)
	assert.Equal(t, jobs.ErrorCodeImportValidation, byProduct["p3"].ErrorCode)

	assert.Equal(t, []string{domain.HistoryLabelImport}, labels(f.history(byProduct["p1"].ID)))
	assert.Equal(t, []notify.EventType{notify.EventImportFail}, f.notifier.types())

	got, err := f.store.GetConnector(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "2 imported, 1 failed validation, 0 duplicates", got.LastImportMessage)
	assert.NotNil(t, got.LastImportAt)

	// Повторный импорт тех же заказов не создаёт дубликатов.
	require.NoError(t, jobs.NewImport(f.cfg).Run(ctx))
	reqs, err = f.store.ListRequests(ctx, domain.RequestFilter{ConnectorID: &c.ID})
	require.NoError(t, err)
	assert.Len(t, reqs, 3)
}

func TestImport_ConnectorFailureIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	f.connector.ImportError = "source unreachable"

	require.NoError(t, jobs.NewImport(f.cfg).Run(ctx))

	got, err := f.store.GetConnector(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ImportErrorCount)
	assert.Equal(t, "source unreachable", got.LastImportMessage)
	assert.Equal(t, []notify.EventType{notify.EventImportFailed}, f.notifier.types())
}

func TestImport_RespectsInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := &domain.Connector{Code: "fake", Label: "hourly", Active: true, ImportIntervalSec: 3600}
	require.NoError(t, f.store.CreateConnector(ctx, c))

	require.NoError(t, jobs.NewImport(f.cfg).Run(ctx))
	require.NoError(t, jobs.NewImport(f.cfg).Run(ctx))
	assert.Equal(t, 1, f.connector.Imports())
}

func TestMatch_LowestPositionWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	procA := repotest.NewProcess(t, f.store, "a")
	procB := repotest.NewProcess(t, f.store, "b")

	require.NoError(t, f.store.CreateRule(ctx, &domain.Rule{
		ConnectorID: c.ID, ProcessID: procB.ID, Position: 2, Active: true,
	}))
	require.NoError(t, f.store.CreateRule(ctx, &domain.Rule{
		ConnectorID: c.ID, ProcessID: procA.ID, Position: 1, Active: true,
		Predicate: `productlabel startswith "A"`,
	}))

	alpha := f.request(c.ID, domain.RequestStatusImported, nil)
	beta := &domain.Request{
		ConnectorID: c.ID, OrderGUID: "o", ProductGUID: "beta", ProductLabel: "Beta",
		Perimeter: "POLYGON((0 0,1 0,1 1,0 0))", Status: domain.RequestStatusImported,
	}
	require.NoError(t, f.store.CreateRequest(ctx, beta))

	require.NoError(t, jobs.NewMatch(f.cfg).Run(ctx))

	got := f.get(alpha.ID)
	assert.Equal(t, domain.RequestStatusRunning, got.Status)
	require.NotNil(t, got.ProcessID)
	assert.Equal(t, procA.ID, *got.ProcessID)
	assert.Equal(t, []string{domain.HistoryLabelMatch}, labels(f.history(alpha.ID)))

	got = f.get(beta.ID)
	require.NotNil(t, got.ProcessID)
	assert.Equal(t, procB.ID, *got.ProcessID)
}

func TestMatch_Escalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	req := f.request(c.ID, domain.RequestStatusImported, nil)

	cfg := f.cfg
	cfg.EscalateAfter = 2
	match := jobs.NewMatch(cfg)

	require.NoError(t, match.Run(ctx))
	got := f.get(req.ID)
	assert.Equal(t, domain.RequestStatusImported, got.Status)
	assert.Equal(t, 1, got.MatchAttempts)
	assert.Empty(t, f.history(req.ID))

	require.NoError(t, match.Run(ctx))
	got = f.get(req.ID)
	assert.Equal(t, domain.RequestStatusError, got.Status)
	assert.Equal(t, jobs.ErrorCodeNoMatchingRule, got.ErrorCode)
	assert.Len(t, f.history(req.ID), 1)
	assert.Equal(t, []notify.EventType{notify.EventUnmatched}, f.notifier.types())
}

func TestExecute_RunsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a", "b")
	req := f.request(c.ID, domain.RequestStatusRunning, &proc.ID)

	require.NoError(t, jobs.NewExecute(f.cfg).Run(ctx))

	got := f.get(req.ID)
	assert.Equal(t, domain.RequestStatusFinished, got.Status)
	assert.Equal(t, 2, got.TaskIndex)
	assert.Nil(t, got.ClaimedBy)
	assert.Equal(t, []string{"a", "b"}, f.calls.Codes())
	assert.Len(t, f.history(req.ID), 2)
}

func TestExecute_ConcurrentRunnersExecuteOnce(t *testing.T) {
	gate := make(chan struct{})
	calls := &plugintest.Calls{}
	blocking := plugintest.NewTask("a", calls, func(context.Context, domain.Request, map[string]string) plugin.TaskResult {
		<-gate
		return plugin.Success("done")
	})
	f := newFixture(t, blocking, plugintest.NewTask("b", calls, nil))
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a", "b")
	req := f.request(c.ID, domain.RequestStatusRunning, &proc.ID)

	first := jobs.NewExecute(f.cfg)
	second := jobs.NewExecute(f.cfg)

	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()

	require.Eventually(t, func() bool { return len(calls.All()) == 1 }, 5*time.Second, 10*time.Millisecond)

	// Запрос захвачен первым раннером: второй не выполняет ни одной задачи.
	require.NoError(t, second.Run(ctx))
	assert.Len(t, calls.All(), 1)

	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"a", "b"}, calls.Codes())
	assert.Equal(t, domain.RequestStatusFinished, f.get(req.ID).Status)
}

func TestExecute_StandbyThenResume(t *testing.T) {
	calls := &plugintest.Calls{}
	wait := plugintest.NewTask("wait", calls, func(context.Context, domain.Request, map[string]string) plugin.TaskResult {
		return plugin.Standby("check the perimeter")
	})
	f := newFixture(t, wait, plugintest.NewTask("b", calls, nil))
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "wait", "b")
	req := f.request(c.ID, domain.RequestStatusRunning, &proc.ID)

	execute := jobs.NewExecute(f.cfg)
	require.NoError(t, execute.Run(ctx))

	got := f.get(req.ID)
	assert.Equal(t, domain.RequestStatusStandby, got.Status)
	assert.Equal(t, 1, got.TaskIndex)
	assert.Equal(t, "check the perimeter", got.Message)
	assert.Equal(t, []notify.EventType{notify.EventRequestStandby}, f.notifier.types())

	actions := jobs.NewActions(f.store, nil, nil)
	resumed, err := actions.Apply(ctx, req.ID, jobs.ActionResume, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusRunning, resumed.Status)

	require.NoError(t, execute.Run(ctx))

	assert.Equal(t, domain.RequestStatusFinished, f.get(req.ID).Status)
	assert.Equal(t, []string{"wait", "b"}, calls.Codes())

	records := f.history(req.ID)
	require.Len(t, records, 3)
	assert.Equal(t, domain.HistoryStatusStandby, records[0].Status)
	assert.Equal(t, domain.HistoryLabelResume, records[1].TaskLabel)
	assert.Equal(t, "alice", records[1].Actor)
	assert.Equal(t, 2, records[2].ProcessStep)
}

func TestExecute_NoProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	req := f.request(c.ID, domain.RequestStatusRunning, nil)

	require.NoError(t, jobs.NewExecute(f.cfg).Run(ctx))

	got := f.get(req.ID)
	assert.Equal(t, domain.RequestStatusError, got.Status)
	assert.Equal(t, jobs.ErrorCodeNoProcess, got.ErrorCode)
	assert.Empty(t, f.calls.All())
}

// failingSave отказывает в сохранении захваченного запроса.
type failingSave struct {
	repo.Store
}

func (failingSave) SaveClaimed(context.Context, *domain.Request, uuid.UUID) error {
	return errors.New("disk full")
}

func TestExecute_PersistenceFailureAbortsBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a")
	var requests []*domain.Request
	for range 3 {
		requests = append(requests, f.request(c.ID, domain.RequestStatusRunning, &proc.ID))
	}

	cfg := f.cfg
	cfg.Workers = 1
	cfg.Store = failingSave{Store: f.store}
	err := jobs.NewExecute(cfg).Run(ctx)
	assert.ErrorIs(t, err, jobs.ErrPersistence)

	// Первый запрос выполнен, остаток пакета не захватывался.
	assert.Len(t, f.calls.All(), 1)
	var attempted int
	for _, req := range requests {
		got := f.get(req.ID)
		assert.Equal(t, domain.RequestStatusRunning, got.Status)
		if got.ClaimedBy != nil {
			attempted++
			assert.Len(t, f.history(req.ID), 1)
			continue
		}
		assert.Empty(t, f.history(req.ID))
	}
	assert.Equal(t, 1, attempted)
}

// failingSaveFor отказывает в сохранении одного запроса.
type failingSaveFor struct {
	repo.Store
	id     uuid.UUID
	failed chan struct{}
}

func (s failingSaveFor) SaveClaimed(ctx context.Context, req *domain.Request, token uuid.UUID) error {
	if req.ID == s.id {
		close(s.failed)
		return errors.New("disk full")
	}
	return s.Store.SaveClaimed(ctx, req, token)
}

func TestExecute_PersistenceFailureSparesRunningItems(t *testing.T) {
	calls := &plugintest.Calls{}
	gate := make(chan struct{})
	slowStarted := make(chan struct{})
	var slowID uuid.UUID
	task := plugintest.NewTask("a", calls, func(ctx context.Context, req domain.Request, _ map[string]string) plugin.TaskResult {
		if req.ID != slowID {
			<-slowStarted
			return plugin.Success("fast")
		}
		close(slowStarted)
		select {
		case <-gate:
			return plugin.Success("slow")
		case <-ctx.Done():
			return plugin.Failure("HTTP", ctx.Err().Error())
		}
	})
	f := newFixture(t, task)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a")
	fast := f.request(c.ID, domain.RequestStatusRunning, &proc.ID)
	slow := f.request(c.ID, domain.RequestStatusRunning, &proc.ID)
	slowID = slow.ID

	cfg := f.cfg
	failing := failingSaveFor{Store: f.store, id: fast.ID, failed: make(chan struct{})}
	cfg.Store = failing

	done := make(chan error, 1)
	go func() { done <- jobs.NewExecute(cfg).Run(ctx) }()

	<-failing.failed
	// Сбой соседнего элемента не отменяет уже идущую задачу.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	assert.ErrorIs(t, <-done, jobs.ErrPersistence)

	got := f.get(slow.ID)
	assert.Equal(t, domain.RequestStatusFinished, got.Status)
	assert.Equal(t, "slow", got.Message)
	records := f.history(slow.ID)
	require.Len(t, records, 1)
	assert.Equal(t, domain.HistoryStatusFinished, records[0].Status)
	assert.Len(t, calls.All(), 2)
}

func TestExecute_LongTaskKeepsLease(t *testing.T) {
	calls := &plugintest.Calls{}
	long := plugintest.NewTask("a", calls, func(ctx context.Context, _ domain.Request, _ map[string]string) plugin.TaskResult {
		select {
		case <-time.After(400 * time.Millisecond):
			return plugin.Success("done")
		case <-ctx.Done():
			return plugin.Failure("HTTP", ctx.Err().Error())
		}
	})
	f := newFixture(t, long)
	f.cfg.LeaseTimeout = 90 * time.Millisecond
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a")
	req := f.request(c.ID, domain.RequestStatusRunning, &proc.ID)

	first := jobs.NewExecute(f.cfg)
	second := jobs.NewExecute(f.cfg)

	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()
	require.Eventually(t, func() bool { return len(calls.All()) == 1 }, 5*time.Second, 10*time.Millisecond)

	// Задача идёт дольше LeaseTimeout, но аренда продлевается.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, second.Run(ctx))
	require.NoError(t, <-done)

	assert.Len(t, calls.All(), 1)
	assert.Len(t, f.history(req.ID), 1)
	got := f.get(req.ID)
	assert.Equal(t, domain.RequestStatusFinished, got.Status)
	assert.Nil(t, got.ClaimedBy)
}

func TestExecute_ReclaimedChainResumesAfterLastTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a", "b")
	req := f.request(c.ID, domain.RequestStatusRunning, &proc.ID)

	// Раннер упал после первой задачи, успев сохранить прогресс.
	crashed := uuid.New()
	past := time.Now().Add(-time.Hour)
	claimed, err := f.store.ClaimRequest(ctx, req.ID, domain.RequestStatusRunning, crashed, past, past.Add(-time.Hour))
	require.NoError(t, err)
	claimed.TaskIndex = 1
	require.NoError(t, f.store.SaveProgress(ctx, claimed, crashed, past))

	require.NoError(t, jobs.NewExecute(f.cfg).Run(ctx))

	assert.Equal(t, []string{"b"}, f.calls.Codes())
	got := f.get(req.ID)
	assert.Equal(t, domain.RequestStatusFinished, got.Status)
	assert.Equal(t, 2, got.TaskIndex)
	assert.Nil(t, got.ClaimedBy)
}

func TestExport_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a")
	req := f.request(c.ID, domain.RequestStatusFinished, &proc.ID)

	export := jobs.NewExport(f.cfg)
	require.NoError(t, export.Run(ctx))

	got := f.get(req.ID)
	assert.Equal(t, domain.RequestStatusExported, got.Status)
	assert.NotNil(t, got.EndedAt)
	require.Len(t, f.connector.Exports(), 1)
	assert.Equal(t, req.ID, f.connector.Exports()[0].Request.ID)
	assert.Len(t, f.history(req.ID), 1)

	require.NoError(t, export.Run(ctx))
	assert.Len(t, f.connector.Exports(), 1)
	assert.Len(t, f.history(req.ID), 1)
}

func TestExport_FailureThenRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a")
	req := f.request(c.ID, domain.RequestStatusRunning, &proc.ID)

	fail := true
	f.connector.ExportFn = func(plugin.ExportRequest) plugin.ExportResult {
		if fail {
			return plugin.ExportResult{ResultCode: "REMOTE_DOWN", ErrorDetails: "503 from source"}
		}
		return plugin.ExportResult{Success: true, ResultCode: "OK"}
	}

	execute := jobs.NewExecute(f.cfg)
	export := jobs.NewExport(f.cfg)
	require.NoError(t, execute.Run(ctx))
	require.NoError(t, export.Run(ctx))

	got := f.get(req.ID)
	assert.Equal(t, domain.RequestStatusError, got.Status)
	assert.Equal(t, "REMOTE_DOWN", got.ErrorCode)
	assert.Equal(t, "503 from source", got.Message)
	assert.Contains(t, f.notifier.types(), notify.EventExportFailed)

	// Повтор после ошибки экспорта не выполняет задачи заново.
	_, err := jobs.NewActions(f.store, nil, nil).Apply(ctx, req.ID, jobs.ActionRetry, "admin", "")
	require.NoError(t, err)
	fail = false
	require.NoError(t, execute.Run(ctx))
	require.NoError(t, export.Run(ctx))

	assert.Equal(t, domain.RequestStatusExported, f.get(req.ID).Status)
	assert.Equal(t, []string{"a"}, f.calls.Codes())
	assert.Len(t, f.connector.Exports(), 2)
}

func TestActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := repotest.NewConnector(t, f.store)
	proc := repotest.NewProcess(t, f.store, "a", "b")
	actions := jobs.NewActions(f.store, nil, nil)

	t.Run("reject from error", func(t *testing.T) {
		req := f.request(c.ID, domain.RequestStatusError, &proc.ID)
		got, err := actions.Apply(ctx, req.ID, jobs.ActionReject, "bob", "out of area")
		require.NoError(t, err)
		assert.Equal(t, domain.RequestStatusRejected, got.Status)
		assert.True(t, got.Rejected)
		assert.Equal(t, "out of area", f.get(req.ID).Remark)
	})

	t.Run("skip advances past failed task", func(t *testing.T) {
		req := f.request(c.ID, domain.RequestStatusError, &proc.ID)
		got, err := actions.Apply(ctx, req.ID, jobs.ActionSkip, "bob", "")
		require.NoError(t, err)
		assert.Equal(t, 1, got.TaskIndex)
		records := f.history(req.ID)
		require.Len(t, records, 1)
		assert.Equal(t, domain.HistoryStatusSkipped, records[0].Status)
	})

	t.Run("resume requires standby", func(t *testing.T) {
		req := f.request(c.ID, domain.RequestStatusError, &proc.ID)
		_, err := actions.Apply(ctx, req.ID, jobs.ActionResume, "bob", "")
		assert.ErrorIs(t, err, jobs.ErrActionNotAllowed)
	})

	t.Run("retry requires process", func(t *testing.T) {
		req := f.request(c.ID, domain.RequestStatusError, nil)
		_, err := actions.Apply(ctx, req.ID, jobs.ActionRetry, "bob", "")
		assert.ErrorIs(t, err, jobs.ErrNoProcess)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := actions.Apply(ctx, uuid.New(), jobs.ActionRetry, "bob", "")
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("parse", func(t *testing.T) {
		a, err := jobs.ParseAction(" Resume ")
		require.NoError(t, err)
		assert.Equal(t, jobs.ActionResume, a)
		_, err = jobs.ParseAction("restart")
		assert.ErrorIs(t, err, jobs.ErrActionNotAllowed)
	})
}

func TestPluginSync_ForcesRebuild(t *testing.T) {
	f := newFixture(t)
	f.registry.DiscoverTasks(false)
	before := f.registry.Rebuilds()

	job := jobs.NewPluginSync(f.registry, nil)
	assert.Equal(t, domain.JobPluginSync, job.Kind())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, before+1, f.registry.Rebuilds())
}
