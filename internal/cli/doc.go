// Package cli реализует инструмент командной строки Extract.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Extract API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется оператором: просмотр запросов и их истории,
// действия над остановленными запросами, расписания и ручной запуск заданий.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Extract API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	requests, err := client.ListRequests(cli.ListRequestsOpts{Status: "STANDBY"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: extract request list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - request: list, show, history, resume, retry, skip, reject
//   - schedule: list, show, set, sync [set]
//   - job: trigger
//   - plugins, connectors
//
// Каждая группа создаётся через фабричную функцию (NewRequestCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
