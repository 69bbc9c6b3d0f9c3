package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Process — именованная упорядоченная цепочка задач.
type Process struct {
	// ID — уникальный идентификатор process.
	ID uuid.UUID `json:"id"`

	// Name — имя процесса.
	Name string `json:"name"`

	// Tasks — задачи в порядке возрастания Position.
	Tasks []Task `json:"tasks,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// SortTasks упорядочивает задачи по возрастанию Position.
func (p *Process) SortTasks() {
	sort.SliceStable(p.Tasks, func(i, j int) bool {
		return p.Tasks[i].Position < p.Tasks[j].Position
	})
}

// Task — шаг процесса, привязанный к плагину-обработчику.
//
// Position уникален в пределах процесса и задаёт порядок выполнения.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// ProcessID — ссылка на процесс.
	ProcessID uuid.UUID `json:"process_id"`

	// Position — порядковый номер в процессе (по возрастанию).
	Position int `json:"position"`

	// Code — код плагина-обработчика в реестре.
	Code string `json:"code"`

	// Label — имя шага для истории и UI.
	Label string `json:"label"`

	// Params — параметры задачи. Значения могут содержать плейсхолдеры {field}.
	Params map[string]string `json:"params,omitempty"`
}

// Rule — правило сопоставления запроса с процессом.
//
// Правила одного connector'а проверяются по возрастанию Position;
// первое истинное правило определяет процесс.
type Rule struct {
	// ID — уникальный идентификатор rule.
	ID uuid.UUID `json:"id"`

	// ConnectorID — connector, которому принадлежит правило.
	ConnectorID uuid.UUID `json:"connector_id"`

	// ProcessID — целевой процесс.
	ProcessID uuid.UUID `json:"process_id"`

	// Position — порядок проверки (уникален в пределах connector'а).
	Position int `json:"position"`

	// Active — участвует ли правило в сопоставлении.
	Active bool `json:"active"`

	// Predicate — условие над полями запроса. Пустое условие всегда истинно.
	Predicate string `json:"predicate"`
}
