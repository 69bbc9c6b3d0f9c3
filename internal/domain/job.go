package domain

import "fmt"

// JobKind — вид задания планировщика.
type JobKind string

const (
	JobImport  JobKind = "import"
	JobMatch   JobKind = "match"
	JobExecute JobKind = "execute"
	JobExport  JobKind = "export"

	// JobPluginSync — пересканирование каталогов плагинов (вспомогательный триггер).
	JobPluginSync JobKind = "plugins.sync"
)

// RequestJobKinds — задания, работающие с запросами, в порядке конвейера.
func RequestJobKinds() []JobKind {
	return []JobKind{JobImport, JobMatch, JobExecute, JobExport}
}

// ParseJobKind проверяет код задания.
func ParseJobKind(s string) (JobKind, error) {
	k := JobKind(s)
	switch k {
	case JobImport, JobMatch, JobExecute, JobExport, JobPluginSync:
		return k, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", s)
	}
}

// Ключи таблицы настроек.
const (
	SettingSyncEnabled  = "sync.enabled"
	SettingSyncInterval = "sync.interval_sec"
	SettingSyncCron     = "sync.cron"
	SettingSyncLastRun  = "sync.last_run"
)

// ScheduleModeKey — ключ режима расписания задания.
func ScheduleModeKey(k JobKind) string { return "schedule." + string(k) + ".mode" }

// ScheduleRangesKey — ключ JSON-массива окон задания.
func ScheduleRangesKey(k JobKind) string { return "schedule." + string(k) + ".ranges" }
