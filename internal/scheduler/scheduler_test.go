package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Extract/internal/domain"
)

// day возвращает момент в ISO-день d (1 = понедельник) недели 2 марта 2026.
func day(d, hour, minute int) time.Time {
	return time.Date(2026, 3, 1+d, hour, minute, 0, 0, time.UTC)
}

func TestWindow_Wraparound(t *testing.T) {
	w := Window{DayFrom: 6, DayTo: 2, TimeFrom: "00:00", TimeTo: "24:00"}
	require.NoError(t, w.Validate())

	for _, d := range []int{6, 7, 1, 2} {
		assert.True(t, w.Contains(day(d, 0, 0)), "day %d start", d)
		assert.True(t, w.Contains(day(d, 23, 59)), "day %d end", d)
	}
	for _, d := range []int{3, 4, 5} {
		assert.False(t, w.Contains(day(d, 12, 0)), "day %d", d)
	}
}

func TestWindow_InclusiveBounds(t *testing.T) {
	w := Window{DayFrom: 1, DayTo: 5, TimeFrom: "08:00", TimeTo: "18:00"}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"start bound", day(1, 8, 0), true},
		{"end bound", day(5, 18, 0), true},
		{"end minute seconds", day(3, 18, 0).Add(59 * time.Second), true},
		{"before start", day(2, 7, 59), false},
		{"after end", day(2, 18, 1), false},
		{"weekend", day(6, 12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Contains(tt.at))
		})
	}
}

func TestWindow_Validate(t *testing.T) {
	tests := []struct {
		name string
		w    Window
	}{
		{"day zero", Window{DayFrom: 0, DayTo: 5, TimeFrom: "00:00", TimeTo: "01:00"}},
		{"day eight", Window{DayFrom: 1, DayTo: 8, TimeFrom: "00:00", TimeTo: "01:00"}},
		{"bad format", Window{DayFrom: 1, DayTo: 2, TimeFrom: "8:00", TimeTo: "10:00"}},
		{"bad minutes", Window{DayFrom: 1, DayTo: 2, TimeFrom: "08:60", TimeTo: "10:00"}},
		{"past midnight", Window{DayFrom: 1, DayTo: 2, TimeFrom: "08:00", TimeTo: "24:30"}},
		{"letters", Window{DayFrom: 1, DayTo: 2, TimeFrom: "ab:cd", TimeTo: "10:00"}},
		{"reversed", Window{DayFrom: 1, DayTo: 2, TimeFrom: "10:00", TimeTo: "08:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.w.Validate(), ErrInvalidWindow)
		})
	}
}

func TestWindows_RoundTrip(t *testing.T) {
	windows := []Window{
		{DayFrom: 1, DayTo: 5, TimeFrom: "07:30", TimeTo: "18:00"},
		{DayFrom: 6, DayTo: 2, TimeFrom: "00:00", TimeTo: "24:00"},
	}

	data, err := SerializeWindows(windows)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "windows", data)

	parsed, err := ParseWindows(data)
	require.NoError(t, err)
	assert.Equal(t, windows, parsed)

	// Пустой набор окон переживает сохранение без изменений.
	empty, err := SerializeWindows(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty))
	parsed, err = ParseWindows(empty)
	require.NoError(t, err)
	assert.Equal(t, []Window(nil), parsed)
}

func TestParseWindows_Errors(t *testing.T) {
	_, err := ParseWindows([]byte(`{"dayfrom":1}`))
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = ParseWindows([]byte(`[{"dayfrom":9,"dayto":1,"timefrom":"00:00","timeto":"01:00"}]`))
	assert.ErrorIs(t, err, ErrInvalidWindow)

	windows, err := ParseWindows(nil)
	assert.NoError(t, err)
	assert.Empty(t, windows)
}

func TestSchedule_Due(t *testing.T) {
	at := day(3, 12, 0)
	assert.True(t, Schedule{Mode: ModeOn}.Due(at))
	assert.False(t, Schedule{Mode: ModeOff}.Due(at))
	assert.False(t, Schedule{Mode: ModeRanges}.Due(at))

	ranges := Schedule{Mode: ModeRanges, Windows: []Window{
		{DayFrom: 1, DayTo: 1, TimeFrom: "00:00", TimeTo: "24:00"},
		{DayFrom: 3, DayTo: 3, TimeFrom: "11:00", TimeTo: "13:00"},
	}}
	assert.True(t, ranges.Due(at))
	assert.False(t, ranges.Due(day(3, 14, 0)))
}

func TestEncodeSchedule(t *testing.T) {
	values, err := EncodeSchedule(domain.JobExport, Schedule{
		Mode:    "ranges",
		Windows: []Window{{DayFrom: 1, DayTo: 5, TimeFrom: "07:30", TimeTo: "18:00"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "RANGES", values["schedule.export.mode"])

	sched, err := ParseSchedule(values, domain.JobExport, ModeOn)
	require.NoError(t, err)
	assert.Equal(t, ModeRanges, sched.Mode)
	assert.Len(t, sched.Windows, 1)

	_, err = EncodeSchedule(domain.JobExport, Schedule{Mode: ModeRanges, Windows: []Window{{DayFrom: 0}}})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestNextSyncRun(t *testing.T) {
	now := day(1, 10, 0)
	last := now.Add(-30 * time.Minute)

	_, ok := NextSyncRun(SyncSettings{Enabled: false, IntervalSec: 60}, now)
	assert.False(t, ok, "disabled")

	_, ok = NextSyncRun(SyncSettings{Enabled: true}, now)
	assert.False(t, ok, "no interval")

	next, ok := NextSyncRun(SyncSettings{Enabled: true, IntervalSec: 3600}, now)
	require.True(t, ok)
	assert.Equal(t, now, next, "never ran")

	next, ok = NextSyncRun(SyncSettings{Enabled: true, IntervalSec: 3600, LastRun: &last}, now)
	require.True(t, ok)
	assert.Equal(t, last.Add(time.Hour), next)

	next, ok = NextSyncRun(SyncSettings{Enabled: true, Cron: "0 * * * *", LastRun: &last}, now)
	require.True(t, ok)
	assert.Equal(t, day(1, 10, 0), next)
}

func TestParseSyncSettings(t *testing.T) {
	s, err := ParseSyncSettings(map[string]string{
		domain.SettingSyncEnabled:  "true",
		domain.SettingSyncInterval: "900",
		domain.SettingSyncLastRun:  "2026-03-02T10:00:00Z",
	})
	require.NoError(t, err)
	assert.True(t, s.Enabled)
	assert.Equal(t, 900, s.IntervalSec)
	require.NotNil(t, s.LastRun)

	_, err = ParseSyncSettings(map[string]string{domain.SettingSyncCron: "not a cron"})
	assert.Error(t, err)
}

// fakeJob блокируется до release и считает запуски.
type fakeJob struct {
	kind    domain.JobKind
	release chan struct{}
	started chan struct{}
	runs    atomic.Int32
	ctxErr  atomic.Value
	err     error
	panics  bool
}

func newFakeJob(kind domain.JobKind) *fakeJob {
	return &fakeJob{kind: kind, release: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (j *fakeJob) Kind() domain.JobKind { return j.kind }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	j.started <- struct{}{}
	<-j.release
	if ctx.Err() != nil {
		j.ctxErr.Store(ctx.Err())
	}
	if j.panics {
		panic("boom")
	}
	return j.err
}

func waitStarted(t *testing.T, j *fakeJob) {
	t.Helper()
	select {
	case <-j.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("job %s did not start", j.kind)
	}
}

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (m *memSettings) GetSettings(context.Context, string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memSettings) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memSettings) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func TestScheduler_NoOverlapPerKind(t *testing.T) {
	imp := newFakeJob(domain.JobImport)
	exp := newFakeJob(domain.JobExport)
	s := New(Config{Jobs: []Job{imp, exp}})

	started := s.Tick(context.Background())
	assert.Equal(t, []domain.JobKind{domain.JobImport, domain.JobExport}, started)
	waitStarted(t, imp)
	waitStarted(t, exp)

	// Оба ещё работают: второй тик ничего не запускает.
	assert.Empty(t, s.Tick(context.Background()))
	assert.ErrorIs(t, s.Trigger(domain.JobImport), ErrJobRunning)

	// Завершился только export: он может стартовать снова, import — нет.
	exp.release <- struct{}{}
	require.Eventually(t, func() bool {
		return len(s.Running()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []domain.JobKind{domain.JobExport}, s.Tick(context.Background()))
	waitStarted(t, exp)

	close(imp.release)
	close(exp.release)
	s.Stop()

	assert.EqualValues(t, 1, imp.runs.Load())
	assert.EqualValues(t, 2, exp.runs.Load())
}

func TestScheduler_RespectsWindows(t *testing.T) {
	store := &memSettings{values: map[string]string{
		"schedule.import.mode":   "RANGES",
		"schedule.import.ranges": `[{"dayfrom":1,"dayto":5,"timefrom":"08:00","timeto":"18:00"}]`,
		"schedule.export.mode":   "OFF",
	}}
	now := day(6, 12, 0)
	imp := newFakeJob(domain.JobImport)
	exp := newFakeJob(domain.JobExport)
	match := newFakeJob(domain.JobMatch)
	close(imp.release)
	close(exp.release)
	close(match.release)

	s := New(Config{
		Jobs:     []Job{imp, match, exp},
		Settings: store,
		Now:      func() time.Time { return now },
	})

	// Суббота: import вне окна, export выключен, match без настроек — ON.
	assert.Equal(t, []domain.JobKind{domain.JobMatch}, s.Tick(context.Background()))
	s.Stop()
}

func TestScheduler_InvalidSettingsKeepPrevious(t *testing.T) {
	store := &memSettings{values: map[string]string{"schedule.import.mode": "OFF"}}
	s := New(Config{Jobs: []Job{newFakeJob(domain.JobImport)}, Settings: store})

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, ModeOff, s.Snapshot().Schedules[domain.JobImport].Mode)

	store.SetSetting(context.Background(), "schedule.import.mode", "SOMETIMES")
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, ModeOff, s.Snapshot().Schedules[domain.JobImport].Mode)

	store.err = errors.New("db down")
	assert.Error(t, s.Refresh(context.Background()))
	assert.Equal(t, ModeOff, s.Snapshot().Schedules[domain.JobImport].Mode)
}

func TestScheduler_StopDrainsInFlight(t *testing.T) {
	job := newFakeJob(domain.JobExecute)
	s := New(Config{Jobs: []Job{job}, TickInterval: time.Hour})

	s.Start(context.Background())
	waitStarted(t, job)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	assert.Never(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond)

	close(job.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after job finished")
	}

	assert.Nil(t, job.ctxErr.Load(), "in-flight job must not see cancellation")
	assert.ErrorIs(t, s.Trigger(domain.JobExecute), ErrStopped)
	assert.True(t, s.IsStopped())
}

func TestScheduler_JobFailureDoesNotStopTicks(t *testing.T) {
	job := newFakeJob(domain.JobMatch)
	job.panics = true
	close(job.release)
	s := New(Config{Jobs: []Job{job}})

	require.NoError(t, s.Trigger(domain.JobMatch))
	require.Eventually(t, func() bool { return len(s.Running()) == 0 && job.runs.Load() == 1 },
		2*time.Second, 5*time.Millisecond)

	job.panics = false
	job.err = errors.New("persistence failure")
	require.NoError(t, s.Trigger(domain.JobMatch))
	require.Eventually(t, func() bool { return job.runs.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.ErrorIs(t, s.Trigger("unknown"), ErrUnknownJob)
}

func TestScheduler_SyncTrigger(t *testing.T) {
	store := &memSettings{values: map[string]string{
		domain.SettingSyncEnabled:  "true",
		domain.SettingSyncInterval: "3600",
	}}
	now := day(2, 9, 0)
	syncJob := newFakeJob(domain.JobPluginSync)
	close(syncJob.release)

	s := New(Config{Settings: store, Sync: syncJob, Now: func() time.Time { return now }})

	assert.Equal(t, []domain.JobKind{domain.JobPluginSync}, s.Tick(context.Background()))
	require.Eventually(t, func() bool {
		return store.get(domain.SettingSyncLastRun) != ""
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "2026-03-03T09:00:00Z", store.get(domain.SettingSyncLastRun))

	// Интервал не истёк.
	require.Eventually(t, func() bool { return len(s.Running()) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Tick(context.Background()))

	now = now.Add(time.Hour)
	assert.Equal(t, []domain.JobKind{domain.JobPluginSync}, s.Tick(context.Background()))
	s.Stop()
}
