// Package builtin содержит плагины, собранные в бинарник (источник "builtin").
//
// Коннекторы:
//   - httpjson — заказы из JSON HTTP API, экспорт результата POST-запросом
//
// Задачи:
//   - validation — остановка цепочки до подтверждения оператором
//   - remark     — замечание по шаблону с плейсхолдерами {field}
//   - reject     — отклонение запроса с замечанием
//   - webhook    — POST снимка запроса на внешний URL
package builtin

import (
	"github.com/shaiso/Extract/internal/plugin"
)

// Source возвращает источник со всеми встроенными плагинами.
func Source() plugin.Source {
	return plugin.NewStaticSource(plugin.BuiltinSource, Catalog())
}

// Catalog возвращает конструкторы встроенных плагинов.
func Catalog() plugin.Catalog {
	return plugin.Catalog{
		Connectors: []plugin.ConnectorConstructor{
			func(lang string) (plugin.SourceConnector, error) { return NewHTTPJSONConnector(lang), nil },
		},
		Tasks: []plugin.TaskConstructor{
			func(lang string) (plugin.TaskProcessor, error) { return NewValidationTask(lang), nil },
			func(lang string) (plugin.TaskProcessor, error) { return NewRemarkTask(lang), nil },
			func(lang string) (plugin.TaskProcessor, error) { return NewRejectTask(lang), nil },
			func(lang string) (plugin.TaskProcessor, error) { return NewWebhookTask(lang), nil },
		},
	}
}

// texts — локализованные строки одного плагина: язык → ключ → текст.
type texts map[string]map[string]string

// get возвращает строку для языка с откатом на английский.
func (t texts) get(lang, key string) string {
	if m, ok := t[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return t[plugin.DefaultLanguage][key]
}

// descriptor — общая реализация plugin.Descriptor.
type descriptor struct {
	code   string
	lang   string
	icon   string
	texts  texts
	params []plugin.Param
}

func (d descriptor) Code() string         { return d.code }
func (d descriptor) Label() string        { return d.texts.get(d.lang, "label") }
func (d descriptor) Description() string  { return d.texts.get(d.lang, "description") }
func (d descriptor) Help() string         { return d.texts.get(d.lang, "help") }
func (d descriptor) Icon() string         { return d.icon }
func (d descriptor) ParamsSchema() string { return plugin.SchemaJSON(d.params) }
