package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/telemetry"
)

// Default configuration values.
const (
	defaultTickInterval = 10 * time.Second
)

// Ошибки ручного запуска.
var (
	ErrUnknownJob = errors.New("unknown job kind")
	ErrJobRunning = errors.New("job already running")
	ErrStopped    = errors.New("scheduler stopped")
)

// Job — задание, запускаемое планировщиком.
type Job interface {
	Kind() domain.JobKind
	Run(ctx context.Context) error
}

// SettingsStore — источник настроек расписаний.
type SettingsStore interface {
	GetSettings(ctx context.Context, prefix string) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Snapshot — неизменяемый снимок настроек на момент Refresh.
type Snapshot struct {
	Schedules map[domain.JobKind]Schedule
	Sync      SyncSettings
}

// Scheduler — периодический драйвер заданий.
//
// На каждом тике для каждого вида задания проверяется расписание; задание
// запускается, если «сейчас» попадает в окно и предыдущий запуск этого вида
// завершён. Разные виды работают независимо.
type Scheduler struct {
	jobs     map[domain.JobKind]Job
	order    []domain.JobKind
	sync     Job
	settings SettingsStore
	defaults Schedule

	tickInterval time.Duration
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	snapshot Snapshot
	running  map[domain.JobKind]bool
	jobCtx   context.Context
	stopped  bool

	jobsWG     sync.WaitGroup
	loopWG     sync.WaitGroup
	cancelFunc context.CancelFunc
}

// Config — конфигурация Scheduler.
type Config struct {
	// Jobs — задания, проверяемые на каждом тике, в порядке проверки.
	Jobs []Job

	// Sync — вспомогательное задание со своим триггером (опционально).
	Sync Job

	// Settings — источник расписаний. Без него действует DefaultMode.
	Settings SettingsStore

	// DefaultMode — режим для заданий без настроек (default: ON).
	DefaultMode Mode

	TickInterval time.Duration // интервал тика (default: 10s)

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	mode := cfg.DefaultMode
	if mode == "" {
		mode = ModeOn
	}

	s := &Scheduler{
		jobs:         make(map[domain.JobKind]Job, len(cfg.Jobs)),
		sync:         cfg.Sync,
		settings:     cfg.Settings,
		defaults:     Schedule{Mode: mode},
		tickInterval: tickInterval,
		metrics:      cfg.Metrics,
		logger:       logger.With("component", "scheduler"),
		now:          now,
		running:      make(map[domain.JobKind]bool),
		jobCtx:       context.Background(),
	}
	for _, j := range cfg.Jobs {
		if _, dup := s.jobs[j.Kind()]; dup {
			continue
		}
		s.jobs[j.Kind()] = j
		s.order = append(s.order, j.Kind())
	}

	s.snapshot = Snapshot{Schedules: make(map[domain.JobKind]Schedule)}
	for _, k := range s.order {
		s.snapshot.Schedules[k] = s.defaults
	}
	return s
}

// Start запускает цикл тиков. Первый тик выполняется сразу.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.mu.Lock()
	// Задания не прерываются остановкой цикла: Stop дожидается их завершения.
	s.jobCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("starting scheduler",
		"tick_interval", s.tickInterval,
		"jobs", len(s.order),
	)

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		s.tickLoop(ctx)
	}()
}

// Stop прекращает тики сразу и ждёт завершения заданий, уже запущенных.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info("stopping scheduler...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.loopWG.Wait()
	s.jobsWG.Wait()

	s.logger.Info("scheduler stopped")
}

// IsStopped проверяет, остановлен ли Scheduler.
func (s *Scheduler) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick выполняет один тик: обновляет настройки и запускает задания,
// попадающие в своё расписание. Возвращает запущенные виды.
func (s *Scheduler) Tick(ctx context.Context) []domain.JobKind {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Error("failed to refresh schedules, using previous", "error", err)
	}

	now := s.now()
	snap := s.Snapshot()

	var started []domain.JobKind
	for _, kind := range s.order {
		sched, ok := snap.Schedules[kind]
		if !ok {
			sched = s.defaults
		}
		if !sched.Due(now) {
			continue
		}
		if s.launch(s.jobs[kind], "tick") == nil {
			started = append(started, kind)
		}
	}

	if s.sync != nil {
		if next, ok := NextSyncRun(snap.Sync, now); ok && !next.After(now) {
			if s.launch(s.sync, "tick") == nil {
				started = append(started, s.sync.Kind())
			}
		}
	}

	if len(started) > 0 {
		s.logger.Debug("scheduler tick completed", "started", started)
	}
	return started
}

// Trigger запускает задание вне расписания. Окна не проверяются,
// но второй одновременный запуск того же вида запрещён.
func (s *Scheduler) Trigger(kind domain.JobKind) error {
	job, ok := s.jobs[kind]
	if !ok && s.sync != nil && s.sync.Kind() == kind {
		job, ok = s.sync, true
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, kind)
	}
	return s.launch(job, "manual")
}

// Running возвращает виды заданий, выполняющихся сейчас.
func (s *Scheduler) Running() []domain.JobKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []domain.JobKind
	for k, r := range s.running {
		if r {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (s *Scheduler) launch(job Job, reason string) error {
	kind := job.Kind()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running[kind] {
		s.mu.Unlock()
		s.logger.Debug("job still running, skipped", "job", kind, "reason", reason)
		return fmt.Errorf("%w: %s", ErrJobRunning, kind)
	}
	s.running[kind] = true
	ctx := s.jobCtx
	s.jobsWG.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.jobsWG.Done()
		defer func() {
			s.mu.Lock()
			s.running[kind] = false
			s.mu.Unlock()
		}()
		s.run(ctx, job, reason)
	}()
	return nil
}

// run выполняет задание. Ошибки и паники логируются, планировщик продолжает работу.
func (s *Scheduler) run(ctx context.Context, job Job, reason string) {
	kind := job.Kind()
	logger := telemetry.WithJob(s.logger, string(kind))
	started := s.now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		return job.Run(ctx)
	}()

	elapsed := s.now().Sub(started)
	s.metrics.ObserveJob(string(kind), elapsed, err)

	if err != nil {
		logger.Error("job failed", "reason", reason, "duration", elapsed, "error", err)
	} else {
		logger.Debug("job completed", "reason", reason, "duration", elapsed)
	}

	if s.sync != nil && kind == s.sync.Kind() && err == nil {
		s.recordSync(ctx, started)
	}
}

func (s *Scheduler) recordSync(ctx context.Context, at time.Time) {
	s.mu.Lock()
	last := at
	s.snapshot.Sync.LastRun = &last
	s.mu.Unlock()

	if s.settings == nil {
		return
	}
	if err := s.settings.SetSetting(ctx, domain.SettingSyncLastRun, at.UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("failed to store sync last run", "error", err)
	}
}

// Refresh перечитывает настройки. Некорректное расписание вида задания
// логируется и оставляет его предыдущее значение.
func (s *Scheduler) Refresh(ctx context.Context) error {
	if s.settings == nil {
		return nil
	}

	values, err := s.settings.GetSettings(ctx, "")
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := Snapshot{
		Schedules: make(map[domain.JobKind]Schedule, len(s.order)),
		Sync:      s.snapshot.Sync,
	}
	for _, kind := range s.order {
		sched, err := ParseSchedule(values, kind, s.defaults.Mode)
		if err != nil {
			s.logger.Error("invalid schedule, keeping previous", "job", kind, "error", err)
			sched = s.snapshot.Schedules[kind]
		}
		next.Schedules[kind] = sched
	}
	if s.sync != nil {
		syncSettings, err := ParseSyncSettings(values)
		if err != nil {
			s.logger.Error("invalid sync settings, keeping previous", "error", err)
		} else {
			next.Sync = syncSettings
		}
	}

	s.snapshot = next
	return nil
}

// Snapshot возвращает текущий снимок настроек.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// ParseSchedule собирает расписание вида задания из таблицы настроек.
func ParseSchedule(values map[string]string, kind domain.JobKind, defaultMode Mode) (Schedule, error) {
	sched := Schedule{Mode: defaultMode}

	if v := strings.TrimSpace(values[domain.ScheduleModeKey(kind)]); v != "" {
		mode, err := ParseMode(v)
		if err != nil {
			return Schedule{}, err
		}
		sched.Mode = mode
	}

	windows, err := ParseWindows([]byte(values[domain.ScheduleRangesKey(kind)]))
	if err != nil {
		return Schedule{}, err
	}
	sched.Windows = windows
	return sched, nil
}

// EncodeSchedule превращает расписание в пары ключ/значение для хранения.
// Расписание проверяется до записи, поэтому планировщик не видит невалидных окон.
func EncodeSchedule(kind domain.JobKind, sched Schedule) (map[string]string, error) {
	mode, err := ParseMode(string(sched.Mode))
	if err != nil {
		return nil, err
	}
	sched.Mode = mode
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	ranges, err := SerializeWindows(sched.Windows)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		domain.ScheduleModeKey(kind):   string(sched.Mode),
		domain.ScheduleRangesKey(kind): string(ranges),
	}, nil
}
