// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, переоткрытие канала)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - notification — уведомление оператору или администратору (STANDBY, ERROR, IMPORTFAIL, ...)
//   - job.trigger  — ручной запуск задания планировщика
//
// Exchanges:
//   - extract.notifications — уведомления, routing key = аудитория
//   - extract.jobs          — ручные запуски заданий
//   - extract.dlq           — dead letter queue
//
// RabbitMQ опционален: без него планировщик работает только по тикам,
// а уведомления пишутся в лог.
package mq
