// Package api содержит HTTP API оператора.
//
// Структура:
//   - handler.go          — Handler с DI (хранилище, действия, каталог плагинов, триггер)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (логирование и метрики по маршруту, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - request_handler.go  — обработчики для /requests
//   - catalog_handler.go  — обработчики для /connectors, /processes, /plugins
//   - schedule_handler.go — обработчики для /schedules, /sync и /jobs
//
// API не выполняет заданий сам: ручной запуск и продолжение после действия
// оператора передаются демону планировщика через RabbitMQ.
package api
