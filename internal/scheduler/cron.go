package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Extract/internal/domain"
)

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SyncSettings — неизменяемый снимок настроек вспомогательного триггера.
type SyncSettings struct {
	Enabled     bool
	IntervalSec int

	// Cron имеет приоритет над IntervalSec.
	Cron string

	LastRun *time.Time
}

// NextSyncRun вычисляет время следующего запуска. false — запусков нет
// (выключено или не задан ни интервал, ни cron). Без LastRun запуск нужен сразу.
func NextSyncRun(s SyncSettings, now time.Time) (time.Time, bool) {
	if !s.Enabled {
		return time.Time{}, false
	}
	if s.Cron == "" && s.IntervalSec <= 0 {
		return time.Time{}, false
	}
	if s.LastRun == nil {
		return now, true
	}

	if s.Cron != "" {
		sched, err := cronParser.Parse(s.Cron)
		if err != nil {
			return time.Time{}, false
		}
		return sched.Next(*s.LastRun), true
	}
	return s.LastRun.Add(time.Duration(s.IntervalSec) * time.Second), true
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// ParseSyncSettings собирает SyncSettings из таблицы настроек.
func ParseSyncSettings(values map[string]string) (SyncSettings, error) {
	var s SyncSettings

	if v := strings.TrimSpace(values[domain.SettingSyncEnabled]); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return s, fmt.Errorf("%s: %w", domain.SettingSyncEnabled, err)
		}
		s.Enabled = enabled
	}
	if v := strings.TrimSpace(values[domain.SettingSyncInterval]); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("%s: %w", domain.SettingSyncInterval, err)
		}
		s.IntervalSec = sec
	}
	if v := strings.TrimSpace(values[domain.SettingSyncCron]); v != "" {
		if err := ValidateCronExpr(v); err != nil {
			return s, err
		}
		s.Cron = v
	}
	if v := strings.TrimSpace(values[domain.SettingSyncLastRun]); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return s, fmt.Errorf("%s: %w", domain.SettingSyncLastRun, err)
		}
		s.LastRun = &t
	}
	return s, nil
}
