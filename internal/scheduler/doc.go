// Package scheduler реализует периодический драйвер заданий.
//
// Scheduler на каждом тике перечитывает настройки (Refresh) и запускает
// задания, для которых «сейчас» попадает в расписание. Пока задание
// выполняется, второй запуск того же вида не начинается.
//
// Структура:
//   - window.go    — окна работы (дни 1..7, HH:mm), режимы ON/OFF/RANGES, JSON
//   - scheduler.go — цикл тиков, ручной запуск, остановка с ожиданием заданий
//   - cron.go      — вспомогательный триггер: следующий запуск по интервалу или cron
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Jobs:     []scheduler.Job{importJob, matchJob, executeJob, exportJob},
//	    Sync:     pluginSync,  // опционально
//	    Settings: store,
//	    Logger:   logger,
//	})
//
//	sched.Start(ctx)
//	defer sched.Stop()
package scheduler
