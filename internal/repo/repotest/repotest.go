// Package repotest — общий набор контрактных тестов для реализаций repo.Store.
//
// Тесты изолированы данными (каждый создаёт свой connector и процесс),
// поэтому одно хранилище можно переиспользовать между ними.
package repotest

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
	"github.com/shaiso/Extract/internal/repo"
)

// Run прогоняет контрактные тесты над store.
func Run(t *testing.T, store repo.Store) {
	t.Helper()

	t.Run("ConnectorRoundTrip", func(t *testing.T) { testConnectorRoundTrip(t, store) })
	t.Run("RecordImport", func(t *testing.T) { testRecordImport(t, store) })
	t.Run("ProcessWithTasks", func(t *testing.T) { testProcessWithTasks(t, store) })
	t.Run("RulesOrdered", func(t *testing.T) { testRulesOrdered(t, store) })
	t.Run("RequestDedupe", func(t *testing.T) { testRequestDedupe(t, store) })
	t.Run("ListRequestsFilter", func(t *testing.T) { testListRequestsFilter(t, store) })
	t.Run("UpdateRequiresExpectedStatus", func(t *testing.T) { testUpdateRequiresExpectedStatus(t, store) })
	t.Run("ClaimRace", func(t *testing.T) { testClaimRace(t, store) })
	t.Run("SaveClaimedWrongToken", func(t *testing.T) { testSaveClaimedWrongToken(t, store) })
	t.Run("StaleClaimReclaimed", func(t *testing.T) { testStaleClaimReclaimed(t, store) })
	t.Run("RenewedClaimNotReclaimed", func(t *testing.T) { testRenewedClaimNotReclaimed(t, store) })
	t.Run("ReleaseClaim", func(t *testing.T) { testReleaseClaim(t, store) })
	t.Run("MissingRequest", func(t *testing.T) { testMissingRequest(t, store) })
	t.Run("HistorySteps", func(t *testing.T) { testHistorySteps(t, store) })
	t.Run("SettingsPrefix", func(t *testing.T) { testSettingsPrefix(t, store) })
}

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// NewConnector создаёт активный connector с уникальной меткой.
func NewConnector(t *testing.T, store repo.Store) *domain.Connector {
	t.Helper()
	c := &domain.Connector{
		Code:   "fake",
		Label:  "connector-" + uuid.NewString()[:8],
		Params: map[string]string{"url": "http://example.invalid"},
		Active: true,
	}
	require.NoError(t, store.CreateConnector(context.Background(), c))
	return c
}

// NewProcess создаёт процесс с задачами по кодам codes.
func NewProcess(t *testing.T, store repo.Store, codes ...string) *domain.Process {
	t.Helper()
	p := &domain.Process{Name: "process-" + uuid.NewString()[:8]}
	for i, code := range codes {
		p.Tasks = append(p.Tasks, domain.Task{Position: (i + 1) * 10, Code: code, Label: code})
	}
	require.NoError(t, store.CreateProcess(context.Background(), p))
	return p
}

// NewRequest создаёт запрос в статусе status.
func NewRequest(t *testing.T, store repo.Store, connectorID uuid.UUID, status domain.RequestStatus) *domain.Request {
	t.Helper()
	req := &domain.Request{
		ConnectorID:  connectorID,
		OrderLabel:   "Order",
		OrderGUID:    uuid.NewString(),
		ProductLabel: "Product",
		ProductGUID:  uuid.NewString(),
		Client:       "Client",
		Perimeter:    "POLYGON((0 0,1 0,1 1,0 0))",
		Status:       status,
		CreatedAt:    epoch,
	}
	require.NoError(t, store.CreateRequest(context.Background(), req))
	return req
}

func testConnectorRoundTrip(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)

	got, err := store.GetConnector(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Label, got.Label)
	assert.Equal(t, c.Params, got.Params)
	assert.True(t, got.Active)
	assert.Nil(t, got.LastImportAt)

	_, err = store.GetConnector(ctx, uuid.New())
	assert.ErrorIs(t, err, repo.ErrNotFound)

	inactive := &domain.Connector{Code: "fake", Label: "off"}
	require.NoError(t, store.CreateConnector(ctx, inactive))

	active, err := store.ListConnectors(ctx, true)
	require.NoError(t, err)
	for _, a := range active {
		assert.NotEqual(t, inactive.ID, a.ID)
	}
}

func testRecordImport(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)

	require.NoError(t, store.RecordImport(ctx, c.ID, epoch, "boom", true))
	require.NoError(t, store.RecordImport(ctx, c.ID, epoch.Add(time.Minute), "boom", true))

	got, err := store.GetConnector(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ImportErrorCount)
	require.NotNil(t, got.LastImportAt)
	assert.True(t, got.LastImportAt.Equal(epoch.Add(time.Minute)))

	require.NoError(t, store.RecordImport(ctx, c.ID, epoch.Add(2*time.Minute), "3 imported", false))
	got, err = store.GetConnector(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ImportErrorCount)
	assert.Equal(t, "3 imported", got.LastImportMessage)

	assert.ErrorIs(t, store.RecordImport(ctx, uuid.New(), epoch, "", false), repo.ErrNotFound)
}

func testProcessWithTasks(t *testing.T, store repo.Store) {
	ctx := context.Background()
	p := &domain.Process{
		Name: "process-" + uuid.NewString()[:8],
		Tasks: []domain.Task{
			{Position: 20, Code: "b", Label: "second", Params: map[string]string{"k": "{orderLabel}"}},
			{Position: 10, Code: "a", Label: "first"},
		},
	}
	require.NoError(t, store.CreateProcess(ctx, p))

	got, err := store.GetProcess(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "a", got.Tasks[0].Code)
	assert.Equal(t, "b", got.Tasks[1].Code)
	assert.Equal(t, "{orderLabel}", got.Tasks[1].Params["k"])

	dup := &domain.Process{Name: p.Name}
	assert.ErrorIs(t, store.CreateProcess(ctx, dup), repo.ErrAlreadyExists)

	all, err := store.ListProcesses(ctx)
	require.NoError(t, err)
	var found bool
	for _, proc := range all {
		if proc.ID == p.ID {
			found = true
			assert.Len(t, proc.Tasks, 2)
		}
	}
	assert.True(t, found)
}

func testRulesOrdered(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	p := NewProcess(t, store, "a")

	for _, pos := range []int{30, 10, 20} {
		rule := &domain.Rule{ConnectorID: c.ID, ProcessID: p.ID, Position: pos, Active: pos != 20}
		require.NoError(t, store.CreateRule(ctx, rule))
	}
	dup := &domain.Rule{ConnectorID: c.ID, ProcessID: p.ID, Position: 10}
	assert.ErrorIs(t, store.CreateRule(ctx, dup), repo.ErrAlreadyExists)

	rules, err := store.ListRules(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, []int{10, 20, 30}, []int{rules[0].Position, rules[1].Position, rules[2].Position})
	assert.False(t, rules[1].Active)
}

func testRequestDedupe(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	first := NewRequest(t, store, c.ID, domain.RequestStatusImported)

	dup := &domain.Request{
		ConnectorID: c.ID,
		OrderGUID:   first.OrderGUID,
		ProductGUID: first.ProductGUID,
		Status:      domain.RequestStatusImported,
	}
	assert.ErrorIs(t, store.CreateRequest(ctx, dup), repo.ErrAlreadyExists)

	// Запросы без ссылок на заказ (IMPORTFAIL) не дедуплицируются.
	for range 2 {
		bad := &domain.Request{ConnectorID: c.ID, Status: domain.RequestStatusImportFail}
		require.NoError(t, store.CreateRequest(ctx, bad))
	}
}

func testListRequestsFilter(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	NewRequest(t, store, c.ID, domain.RequestStatusImported)
	NewRequest(t, store, c.ID, domain.RequestStatusError)
	NewRequest(t, store, c.ID, domain.RequestStatusError)

	status := domain.RequestStatusError
	got, err := store.ListRequests(ctx, domain.RequestFilter{ConnectorID: &c.ID, Status: &status})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.ListRequests(ctx, domain.RequestFilter{ConnectorID: &c.ID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.ListRequests(ctx, domain.RequestFilter{ConnectorID: &c.ID, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testUpdateRequiresExpectedStatus(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	p := NewProcess(t, store, "a")
	req := NewRequest(t, store, c.ID, domain.RequestStatusImported)

	req.ProcessID = &p.ID
	req.Parameters = map[string]string{"k": "v"}
	req.TransitionTo(domain.RequestStatusRunning, epoch.Add(time.Minute))
	require.NoError(t, store.UpdateRequest(ctx, req, domain.RequestStatusImported))

	// Второй сопоставитель с тем же ожиданием проигрывает.
	assert.ErrorIs(t, store.UpdateRequest(ctx, req, domain.RequestStatusImported), repo.ErrInvalidState)

	got, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusRunning, got.Status)
	require.NotNil(t, got.ProcessID)
	assert.Equal(t, p.ID, *got.ProcessID)
	assert.Equal(t, "v", got.Parameters["k"])
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(epoch.Add(time.Minute)))
}

func testClaimRace(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	req := NewRequest(t, store, c.ID, domain.RequestStatusRunning)

	const runners = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners, losers int
	for range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ClaimRequest(ctx, req.ID, domain.RequestStatusRunning, uuid.New(), epoch, epoch.Add(-time.Hour))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, repo.ErrInvalidState):
				losers++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, runners-1, losers)
}

func testSaveClaimedWrongToken(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	req := NewRequest(t, store, c.ID, domain.RequestStatusRunning)

	token := uuid.New()
	claimed, err := store.ClaimRequest(ctx, req.ID, domain.RequestStatusRunning, token, epoch, epoch.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, token, *claimed.ClaimedBy)

	claimed.TaskIndex = 1
	assert.ErrorIs(t, store.SaveClaimed(ctx, claimed, uuid.New()), repo.ErrInvalidState)

	require.NoError(t, store.SaveClaimed(ctx, claimed, token))
	assert.Nil(t, claimed.ClaimedBy)

	got, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TaskIndex)
	assert.Nil(t, got.ClaimedBy)
	assert.Nil(t, got.ClaimedAt)
}

func testStaleClaimReclaimed(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	req := NewRequest(t, store, c.ID, domain.RequestStatusFinished)

	crashed := uuid.New()
	_, err := store.ClaimRequest(ctx, req.ID, domain.RequestStatusFinished, crashed, epoch, epoch.Add(-time.Hour))
	require.NoError(t, err)

	// Аренда ещё действует: запрос не виден и не захватывается.
	eligible, err := store.ListEligible(ctx, domain.RequestStatusFinished, epoch.Add(-time.Minute), 100)
	require.NoError(t, err)
	for _, e := range eligible {
		assert.NotEqual(t, req.ID, e.ID)
	}
	_, err = store.ClaimRequest(ctx, req.ID, domain.RequestStatusFinished, uuid.New(), epoch.Add(time.Second), epoch.Add(-time.Minute))
	assert.ErrorIs(t, err, repo.ErrInvalidState)

	// Аренда устарела: другой раннер её перехватывает.
	later := epoch.Add(time.Hour)
	eligible, err = store.ListEligible(ctx, domain.RequestStatusFinished, later.Add(-10*time.Minute), 100)
	require.NoError(t, err)
	var found bool
	for _, e := range eligible {
		found = found || e.ID == req.ID
	}
	assert.True(t, found)

	rescuer := uuid.New()
	_, err = store.ClaimRequest(ctx, req.ID, domain.RequestStatusFinished, rescuer, later, later.Add(-10*time.Minute))
	require.NoError(t, err)

	got, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, rescuer, *got.ClaimedBy)
	assert.ErrorIs(t, store.ReleaseClaim(ctx, req.ID, crashed), repo.ErrInvalidState)
}

func testRenewedClaimNotReclaimed(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	req := NewRequest(t, store, c.ID, domain.RequestStatusRunning)

	token := uuid.New()
	claimed, err := store.ClaimRequest(ctx, req.ID, domain.RequestStatusRunning, token, epoch, epoch.Add(-time.Hour))
	require.NoError(t, err)

	// Прогресс сохраняется, аренда остаётся за token и продлевается.
	later := epoch.Add(time.Hour)
	claimed.TaskIndex = 2
	claimed.Message = "step 2 done"
	require.NoError(t, store.SaveProgress(ctx, claimed, token, later))

	got, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TaskIndex)
	assert.Equal(t, "step 2 done", got.Message)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, token, *got.ClaimedBy)
	require.NotNil(t, got.ClaimedAt)
	assert.True(t, got.ClaimedAt.Equal(later))

	// Продлённая аренда не считается брошенной.
	_, err = store.ClaimRequest(ctx, req.ID, domain.RequestStatusRunning, uuid.New(), later.Add(time.Minute), later.Add(-time.Minute))
	assert.ErrorIs(t, err, repo.ErrInvalidState)

	evenLater := later.Add(time.Hour)
	require.NoError(t, store.RenewClaim(ctx, req.ID, token, evenLater))
	eligible, err := store.ListEligible(ctx, domain.RequestStatusRunning, evenLater.Add(-time.Minute), 100)
	require.NoError(t, err)
	for _, e := range eligible {
		assert.NotEqual(t, req.ID, e.ID)
	}

	// Чужой токен не продлевает и не сохраняет.
	other := uuid.New()
	assert.ErrorIs(t, store.RenewClaim(ctx, req.ID, other, evenLater), repo.ErrInvalidState)
	assert.ErrorIs(t, store.SaveProgress(ctx, claimed, other, evenLater), repo.ErrInvalidState)
	assert.ErrorIs(t, store.RenewClaim(ctx, uuid.New(), token, evenLater), repo.ErrNotFound)

	require.NoError(t, store.SaveClaimed(ctx, claimed, token))
	assert.ErrorIs(t, store.RenewClaim(ctx, req.ID, token, evenLater), repo.ErrInvalidState)
}

func testReleaseClaim(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	req := NewRequest(t, store, c.ID, domain.RequestStatusRunning)

	token := uuid.New()
	_, err := store.ClaimRequest(ctx, req.ID, domain.RequestStatusRunning, token, epoch, epoch.Add(-time.Hour))
	require.NoError(t, err)

	// Захваченный запрос недоступен для действий без аренды.
	req.Message = "operator"
	assert.ErrorIs(t, store.UpdateRequest(ctx, req, domain.RequestStatusRunning), repo.ErrInvalidState)

	require.NoError(t, store.ReleaseClaim(ctx, req.ID, token))
	require.NoError(t, store.UpdateRequest(ctx, req, domain.RequestStatusRunning))
}

func testMissingRequest(t *testing.T, store repo.Store) {
	ctx := context.Background()
	id := uuid.New()

	_, err := store.GetRequest(ctx, id)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = store.ClaimRequest(ctx, id, domain.RequestStatusRunning, uuid.New(), epoch, epoch)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	missing := &domain.Request{ID: id, Status: domain.RequestStatusRunning}
	assert.ErrorIs(t, store.UpdateRequest(ctx, missing, domain.RequestStatusImported), repo.ErrNotFound)
	assert.ErrorIs(t, store.ReleaseClaim(ctx, id, uuid.New()), repo.ErrNotFound)
}

func testHistorySteps(t *testing.T, store repo.Store) {
	ctx := context.Background()
	c := NewConnector(t, store)
	req := NewRequest(t, store, c.ID, domain.RequestStatusRunning)

	for i := range 3 {
		ended := epoch.Add(time.Duration(i+1) * time.Second)
		rec := &domain.HistoryRecord{
			RequestID:   req.ID,
			ProcessStep: i + 1,
			TaskCode:    "a",
			TaskLabel:   "step",
			Status:      domain.HistoryStatusFinished,
			Actor:       domain.SystemActor,
			StartedAt:   epoch,
			EndedAt:     &ended,
		}
		require.NoError(t, store.AppendHistory(ctx, rec))
		assert.Equal(t, i+1, rec.Step)
	}

	records, err := store.ListHistory(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Step)
		assert.Equal(t, i+1, rec.ProcessStep)
		require.NotNil(t, rec.EndedAt)
	}

	orphan := &domain.HistoryRecord{RequestID: uuid.New(), Status: domain.HistoryStatusError, Actor: domain.SystemActor, StartedAt: epoch}
	assert.ErrorIs(t, store.AppendHistory(ctx, orphan), repo.ErrNotFound)
}

func testSettingsPrefix(t *testing.T, store repo.Store) {
	ctx := context.Background()
	prefix := "test." + uuid.NewString()[:8] + "."

	require.NoError(t, store.SetSettings(ctx, map[string]string{
		prefix + "import.mode": "RANGES",
		prefix + "match.mode":  "OFF",
	}))
	require.NoError(t, store.SetSetting(ctx, prefix+"match.mode", "ON"))
	require.NoError(t, store.SetSetting(ctx, "other."+prefix, "x"))

	got, err := store.GetSettings(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		prefix + "import.mode": "RANGES",
		prefix + "match.mode":  "ON",
	}, got)

	got, err = store.GetSettings(ctx, prefix+"nothing")
	require.NoError(t, err)
	assert.Empty(t, got)
}
