package plugin

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
)

// DefaultLanguage — язык по умолчанию.
const DefaultLanguage = "en"

// Config — настройки реестра.
type Config struct {
	// Language — код языка, с которым создаются экземпляры.
	Language string

	// Sources — источники плагинов: имена встроенных источников или каталоги с *.so.
	Sources []string

	// Builtins — встроенные источники, доступные по имени.
	Builtins []Source

	// OnRebuild вызывается после каждой перестройки кэша (метрики).
	OnRebuild func()

	Logger *slog.Logger
}

// Registry — реестр плагинов двух видов: коннекторы и обработчики задач.
//
// Кэш, флаг инициализации, язык и набор источников защищены одним мьютексом.
// Смена языка или источников сбрасывает кэш; перестройка произойдёт
// при следующем обращении. Потокобезопасен.
type Registry struct {
	mu          sync.Mutex
	language    string
	sources     []string
	builtins    map[string]Source
	initialized bool
	connectors  map[string]SourceConnector
	tasks       map[string]TaskProcessor
	rebuilds    int

	onRebuild func()
	logger    *slog.Logger
}

// NewRegistry создаёт реестр. Обнаружение выполняется лениво.
func NewRegistry(cfg Config) *Registry {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Sources == nil {
		cfg.Sources = []string{BuiltinSource}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	builtins := make(map[string]Source, len(cfg.Builtins))
	for _, s := range cfg.Builtins {
		builtins[s.Name()] = s
	}

	return &Registry{
		language:   cfg.Language,
		sources:    normalizeSources(cfg.Sources),
		builtins:   builtins,
		connectors: make(map[string]SourceConnector),
		tasks:      make(map[string]TaskProcessor),
		onRebuild:  cfg.OnRebuild,
		logger:     cfg.Logger.With("component", "plugin-registry"),
	}
}

// SetLanguage меняет язык. Кэш сбрасывается только если код изменился.
func (r *Registry) SetLanguage(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code == "" || code == r.language {
		return
	}
	r.language = code
	r.initialized = false
}

// Language возвращает текущий язык.
func (r *Registry) Language() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.language
}

// SetPluginSources меняет набор источников. Кэш сбрасывается,
// если набор (без учёта порядка и повторов) изменился.
func (r *Registry) SetPluginSources(paths []string) {
	normalized := normalizeSources(paths)

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Equal(normalized, r.sources) {
		return
	}
	r.sources = normalized
	r.initialized = false
}

// DiscoverConnectors возвращает все коннекторы по коду.
// force=true перестраивает кэш безусловно.
func (r *Registry) DiscoverConnectors(force bool) map[string]SourceConnector {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureLocked(force)
	return maps.Clone(r.connectors)
}

// DiscoverTasks возвращает все обработчики задач по коду.
func (r *Registry) DiscoverTasks(force bool) map[string]TaskProcessor {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureLocked(force)
	return maps.Clone(r.tasks)
}

// Connector возвращает прототип коннектора по коду.
func (r *Registry) Connector(code string) (SourceConnector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureLocked(false)
	c, ok := r.connectors[code]
	return c, ok
}

// Task возвращает прототип обработчика по коду.
func (r *Registry) Task(code string) (TaskProcessor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureLocked(false)
	t, ok := r.tasks[code]
	return t, ok
}

// NewConnector создаёт рабочий экземпляр коннектора с параметрами.
func (r *Registry) NewConnector(code string, params map[string]string) (inst SourceConnector, err error) {
	proto, ok := r.Connector(code)
	if !ok {
		return nil, fmt.Errorf("%w: connector %q", ErrUnavailable, code)
	}
	lang := r.Language()

	defer func() {
		if rec := recover(); rec != nil {
			inst, err = nil, fmt.Errorf("%w: connector %q: panic: %v", ErrInstantiation, code, rec)
		}
	}()
	inst, err = proto.NewInstance(lang, params)
	if err != nil {
		return nil, fmt.Errorf("%w: connector %q: %v", ErrInstantiation, code, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: connector %q returned nil", ErrInstantiation, code)
	}
	return inst, nil
}

// NewTask создаёт рабочий экземпляр обработчика с параметрами задачи.
func (r *Registry) NewTask(code string, params map[string]string) (inst TaskProcessor, err error) {
	proto, ok := r.Task(code)
	if !ok {
		return nil, fmt.Errorf("%w: task %q", ErrUnavailable, code)
	}
	lang := r.Language()

	defer func() {
		if rec := recover(); rec != nil {
			inst, err = nil, fmt.Errorf("%w: task %q: panic: %v", ErrInstantiation, code, rec)
		}
	}()
	inst, err = proto.NewInstance(lang, params)
	if err != nil {
		return nil, fmt.Errorf("%w: task %q: %v", ErrInstantiation, code, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: task %q returned nil", ErrInstantiation, code)
	}
	return inst, nil
}

// Rebuilds возвращает число перестроек кэша с момента создания.
func (r *Registry) Rebuilds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuilds
}

// ensureLocked перестраивает кэш при необходимости. Вызывается под r.mu.
func (r *Registry) ensureLocked(force bool) {
	if r.initialized && !force {
		return
	}

	connectors := make(map[string]SourceConnector)
	tasks := make(map[string]TaskProcessor)

	for _, name := range r.sources {
		src := r.resolve(name)
		catalog, err := src.Catalog()
		if err != nil {
			// Частичный каталог всё равно используется.
			r.logger.Error("plugin source failed", "source", name, "error", err)
		}

		for _, ctor := range catalog.Connectors {
			inst, err := constructConnector(ctor, r.language)
			if err != nil {
				r.logger.Error("connector construction failed, skipped", "source", name, "error", err)
				continue
			}
			addUnique(r.logger, connectors, inst, name, "connector")
		}
		for _, ctor := range catalog.Tasks {
			inst, err := constructTask(ctor, r.language)
			if err != nil {
				r.logger.Error("task construction failed, skipped", "source", name, "error", err)
				continue
			}
			addUnique(r.logger, tasks, inst, name, "task")
		}
	}

	r.connectors = connectors
	r.tasks = tasks
	r.initialized = true
	r.rebuilds++

	r.logger.Info("plugin registry rebuilt",
		"language", r.language,
		"sources", r.sources,
		"connectors", len(connectors),
		"tasks", len(tasks),
	)
	if r.onRebuild != nil {
		r.onRebuild()
	}
}

func (r *Registry) resolve(name string) Source {
	if src, ok := r.builtins[name]; ok {
		return src
	}
	return NewDirSource(name)
}

// addUnique регистрирует экземпляр; при повторе кода побеждает первый источник.
func addUnique[T Descriptor](logger *slog.Logger, m map[string]T, inst T, source, kind string) {
	code := inst.Code()
	if _, dup := m[code]; dup {
		logger.Warn("duplicate plugin code ignored", "kind", kind, "code", code, "source", source)
		return
	}
	m[code] = inst
}

func constructConnector(ctor ConnectorConstructor, lang string) (inst SourceConnector, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			inst, err = nil, fmt.Errorf("%w: panic: %v", ErrInstantiation, rec)
		}
	}()
	inst, err = ctor(lang)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInstantiation, err)
	}
	if inst == nil || inst.Code() == "" {
		return nil, fmt.Errorf("%w: empty connector", ErrInstantiation)
	}
	return inst, nil
}

func constructTask(ctor TaskConstructor, lang string) (inst TaskProcessor, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			inst, err = nil, fmt.Errorf("%w: panic: %v", ErrInstantiation, rec)
		}
	}()
	inst, err = ctor(lang)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInstantiation, err)
	}
	if inst == nil || inst.Code() == "" {
		return nil, fmt.Errorf("%w: empty task", ErrInstantiation)
	}
	return inst, nil
}

// normalizeSources сортирует и убирает дубликаты и пустые строки.
func normalizeSources(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
