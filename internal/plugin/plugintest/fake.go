// Package plugintest содержит управляемые реализации плагинов для тестов.
package plugintest

import (
	"context"
	"sync"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/plugin"
)

// Descriptor — общая часть фейковых плагинов.
type Descriptor struct {
	PluginCode string
}

func (d Descriptor) Code() string         { return d.PluginCode }
func (d Descriptor) Label() string        { return d.PluginCode }
func (d Descriptor) Description() string  { return "test plugin " + d.PluginCode }
func (d Descriptor) Help() string         { return "" }
func (d Descriptor) Icon() string         { return "" }
func (d Descriptor) ParamsSchema() string { return "[]" }

// ExecuteFunc — поведение фейковой задачи.
type ExecuteFunc func(ctx context.Context, req domain.Request, params map[string]string) plugin.TaskResult

// Task — фейковый обработчик, записывающий вызовы.
type Task struct {
	Descriptor
	Fn ExecuteFunc

	// Params заполняется в экземплярах, созданных NewInstance.
	Params map[string]string

	calls *Calls
}

// Calls — журнал вызовов задач, общий для прототипа и экземпляров.
type Calls struct {
	mu      sync.Mutex
	entries []Call
}

// Call — один вызов Execute.
type Call struct {
	Code      string
	RequestID string
	Params    map[string]string
}

// Record добавляет вызов.
func (c *Calls) Record(call Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, call)
}

// All возвращает копию журнала.
func (c *Calls) All() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.entries))
	copy(out, c.entries)
	return out
}

// Codes возвращает коды задач в порядке вызова.
func (c *Calls) Codes() []string {
	var codes []string
	for _, call := range c.All() {
		codes = append(codes, call.Code)
	}
	return codes
}

// NewTask создаёт фейковую задачу. calls может быть общим для нескольких задач.
func NewTask(code string, calls *Calls, fn ExecuteFunc) *Task {
	if calls == nil {
		calls = &Calls{}
	}
	if fn == nil {
		fn = func(context.Context, domain.Request, map[string]string) plugin.TaskResult {
			return plugin.Success("ok")
		}
	}
	return &Task{Descriptor: Descriptor{PluginCode: code}, Fn: fn, calls: calls}
}

// NewInstance возвращает экземпляр с параметрами и тем же журналом.
func (t *Task) NewInstance(_ string, params map[string]string) (plugin.TaskProcessor, error) {
	return &Task{Descriptor: t.Descriptor, Fn: t.Fn, Params: params, calls: t.calls}, nil
}

// Execute записывает вызов и выполняет Fn.
func (t *Task) Execute(ctx context.Context, req domain.Request, _ *domain.EmailSettings) plugin.TaskResult {
	t.calls.Record(Call{Code: t.PluginCode, RequestID: req.ID.String(), Params: t.Params})
	return t.Fn(ctx, req, t.Params)
}

// Calls возвращает журнал вызовов.
func (t *Task) Calls() *Calls { return t.calls }

// Connector — фейковый коннектор.
type Connector struct {
	Descriptor

	mu          sync.Mutex
	Products    []plugin.Product
	ImportError string
	ExportFn    func(req plugin.ExportRequest) plugin.ExportResult
	imports     int
	exports     []plugin.ExportRequest
}

// NewConnector создаёт фейковый коннектор.
func NewConnector(code string) *Connector {
	return &Connector{Descriptor: Descriptor{PluginCode: code}}
}

// NewInstance возвращает сам прототип: состояние общее для всех экземпляров.
func (c *Connector) NewInstance(string, map[string]string) (plugin.SourceConnector, error) {
	return c, nil
}

// ImportCommands возвращает настроенные продукты или ошибку.
func (c *Connector) ImportCommands(context.Context) plugin.ImportResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imports++
	if c.ImportError != "" {
		return plugin.ImportResult{ErrorMessage: c.ImportError}
	}
	return plugin.ImportResult{Success: true, Products: c.Products}
}

// ExportResult записывает экспорт.
func (c *Connector) ExportResult(_ context.Context, req plugin.ExportRequest) plugin.ExportResult {
	c.mu.Lock()
	c.exports = append(c.exports, req)
	fn := c.ExportFn
	c.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return plugin.ExportResult{Success: true, ResultCode: "OK"}
}

// Imports возвращает число вызовов ImportCommands.
func (c *Connector) Imports() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imports
}

// Exports возвращает принятые запросы экспорта.
func (c *Connector) Exports() []plugin.ExportRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]plugin.ExportRequest, len(c.exports))
	copy(out, c.exports)
	return out
}

// Source собирает статический источник из фейков.
func Source(name string, connectors []*Connector, tasks []*Task) plugin.Source {
	var catalog plugin.Catalog
	for _, c := range connectors {
		c := c
		catalog.Connectors = append(catalog.Connectors, func(string) (plugin.SourceConnector, error) {
			return c, nil
		})
	}
	for _, t := range tasks {
		t := t
		catalog.Tasks = append(catalog.Tasks, func(string) (plugin.TaskProcessor, error) {
			return t, nil
		})
	}
	return plugin.NewStaticSource(name, catalog)
}

// Registry создаёт реестр с единственным источником из фейков.
func Registry(connectors []*Connector, tasks []*Task) *plugin.Registry {
	return plugin.NewRegistry(plugin.Config{
		Sources:  []string{"test"},
		Builtins: []plugin.Source{Source("test", connectors, tasks)},
	})
}
