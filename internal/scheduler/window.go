package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWindow — некорректное окно расписания (день вне 1..7, время не HH:mm).
var ErrInvalidWindow = errors.New("invalid time window")

// endOfDay — "24:00" в минутах.
const endOfDay = 24 * 60

// Window — окно работы задания: диапазон дней недели и диапазон времени.
// Дни 1..7, 1 — понедельник. Если DayFrom > DayTo, окно переходит через
// конец недели (6..2 = сб, вс, пн, вт).
type Window struct {
	DayFrom  int    `json:"dayfrom"`
	DayTo    int    `json:"dayto"`
	TimeFrom string `json:"timefrom"`
	TimeTo   string `json:"timeto"`
}

// Validate проверяет окно.
func (w Window) Validate() error {
	if w.DayFrom < 1 || w.DayFrom > 7 {
		return fmt.Errorf("%w: dayfrom %d out of 1..7", ErrInvalidWindow, w.DayFrom)
	}
	if w.DayTo < 1 || w.DayTo > 7 {
		return fmt.Errorf("%w: dayto %d out of 1..7", ErrInvalidWindow, w.DayTo)
	}
	from, err := parseClock(w.TimeFrom)
	if err != nil {
		return err
	}
	to, err := parseClock(w.TimeTo)
	if err != nil {
		return err
	}
	if from > to {
		return fmt.Errorf("%w: timefrom %s after timeto %s", ErrInvalidWindow, w.TimeFrom, w.TimeTo)
	}
	return nil
}

// Contains сообщает, попадает ли t в окно. Границы времени включительно,
// сравнение с точностью до минуты. Окно должно быть валидным.
func (w Window) Contains(t time.Time) bool {
	if !w.containsDay(isoWeekday(t)) {
		return false
	}
	from, err := parseClock(w.TimeFrom)
	if err != nil {
		return false
	}
	to, err := parseClock(w.TimeTo)
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return from <= m && m <= to
}

func (w Window) containsDay(d int) bool {
	if w.DayFrom <= w.DayTo {
		return w.DayFrom <= d && d <= w.DayTo
	}
	return d >= w.DayFrom || d <= w.DayTo
}

// isoWeekday — день недели 1..7, понедельник = 1.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// parseClock разбирает "HH:mm" в минуты от начала суток. "24:00" допустимо.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: time %q is not HH:mm", ErrInvalidWindow, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q is not HH:mm", ErrInvalidWindow, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q is not HH:mm", ErrInvalidWindow, s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: time %q out of range", ErrInvalidWindow, s)
	}
	return h*60 + m, nil
}

// ParseWindows разбирает и валидирует JSON-массив окон.
// Пустая строка и пустой массив означают отсутствие окон (nil).
func ParseWindows(data []byte) ([]Window, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var windows []Window
	if err := json.Unmarshal(data, &windows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	for i, w := range windows {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
	}
	if len(windows) == 0 {
		return nil, nil
	}
	return windows, nil
}

// SerializeWindows сериализует окна в JSON-массив.
func SerializeWindows(windows []Window) ([]byte, error) {
	if windows == nil {
		windows = []Window{}
	}
	return json.Marshal(windows)
}

// Mode — режим расписания задания.
type Mode string

const (
	ModeOn     Mode = "ON"
	ModeOff    Mode = "OFF"
	ModeRanges Mode = "RANGES"
)

// ParseMode проверяет режим. Регистр не важен.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case ModeOn, ModeOff, ModeRanges:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidWindow, s)
	}
}

// Schedule — расписание одного вида задания.
type Schedule struct {
	Mode    Mode     `json:"mode"`
	Windows []Window `json:"ranges"`
}

// Due сообщает, должно ли задание работать в момент now.
// В режиме RANGES достаточно попадания в любое окно.
func (s Schedule) Due(now time.Time) bool {
	switch s.Mode {
	case ModeOn:
		return true
	case ModeRanges:
		for _, w := range s.Windows {
			if w.Contains(now) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Validate проверяет режим и окна.
func (s Schedule) Validate() error {
	if _, err := ParseMode(string(s.Mode)); err != nil {
		return err
	}
	for i, w := range s.Windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	return nil
}
