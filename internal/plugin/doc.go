// Package plugin содержит контракты плагинов и их реестр.
//
// # Контракты
//
// Два вида плагинов идентифицируются стабильным кодом:
//   - SourceConnector — импорт заказов из исходной системы и экспорт результата
//   - TaskProcessor   — выполнение одного шага процесса над запросом
//
// Оба описывают свои параметры через ParamsSchema (см. schema.go).
//
// # Registry
//
// Registry строит кэш плагинов из набора источников:
//
//	reg := plugin.NewRegistry(plugin.Config{
//	    Language: "fr",
//	    Sources:  []string{"builtin", "/opt/extract/plugins"},
//	    Builtins: []plugin.Source{builtin.Source()},
//	})
//	task, err := reg.NewTask("remark", params)
//
// Источник "builtin" собран в бинарник; каталоги сканируются на *.so
// (Go plugins с ExtractABIVersion и ExtractPlugins). Ошибка создания
// одной реализации логируется и не мешает остальным.
//
// SetLanguage и SetPluginSources сбрасывают кэш только при реальном изменении.
//
// # Вызов
//
// Execute, Import и Export (invoke.go) перехватывают панику плагина
// и возвращают результат с ошибкой ErrExecution.
package plugin
