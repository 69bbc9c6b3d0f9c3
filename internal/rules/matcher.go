package rules

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/shaiso/Extract/internal/domain"
)

// Matcher компилирует правила и выбирает процесс для запроса.
//
// Скомпилированные предикаты кэшируются по (rule ID, текст предиката),
// поэтому ошибка в правиле логируется один раз, а не для каждого запроса.
// Безопасен для конкурентного использования.
type Matcher struct {
	logger *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]compiled
}

type cacheKey struct {
	ruleID    string
	predicate string
}

type compiled struct {
	pred Predicate
	err  error
}

// NewMatcher создаёт Matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		logger: logger,
		cache:  make(map[cacheKey]compiled),
	}
}

// RuleSet — активные правила одного connector'а в порядке проверки.
type RuleSet struct {
	entries []ruleEntry
}

type ruleEntry struct {
	rule domain.Rule
	pred Predicate
}

// Len возвращает число применимых правил.
func (rs *RuleSet) Len() int {
	return len(rs.entries)
}

// Compile строит RuleSet: оставляет активные правила, сортирует по Position
// и компилирует предикаты. Правила с ошибкой компиляции пропускаются.
func (m *Matcher) Compile(rules []domain.Rule) *RuleSet {
	active := make([]domain.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Position < active[j].Position
	})

	rs := &RuleSet{entries: make([]ruleEntry, 0, len(active))}
	for _, r := range active {
		pred, err := m.compile(r)
		if err != nil {
			continue
		}
		rs.entries = append(rs.entries, ruleEntry{rule: r, pred: pred})
	}
	return rs
}

func (m *Matcher) compile(r domain.Rule) (Predicate, error) {
	key := cacheKey{ruleID: r.ID.String(), predicate: r.Predicate}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.cache[key]; ok {
		return c.pred, c.err
	}

	pred, err := Compile(r.Predicate)
	m.cache[key] = compiled{pred: pred, err: err}
	if err != nil {
		m.logger.Error("invalid rule predicate, rule skipped",
			"rule_id", r.ID,
			"connector_id", r.ConnectorID,
			"position", r.Position,
			"predicate", r.Predicate,
			"error", err,
		)
	}
	return pred, err
}

// Match возвращает первое правило, чей предикат истинен для запроса.
// Правило с меньшим Position всегда имеет приоритет.
func (rs *RuleSet) Match(req *domain.Request) (domain.Rule, bool) {
	for _, e := range rs.entries {
		if e.pred.Eval(req) {
			return e.rule, true
		}
	}
	return domain.Rule{}, false
}

// Match — сокращение для Compile(rules).Match(req).
func (m *Matcher) Match(rules []domain.Rule, req *domain.Request) (domain.Rule, bool) {
	return m.Compile(rules).Match(req)
}
