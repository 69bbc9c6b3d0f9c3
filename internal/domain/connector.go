package domain

import (
	"time"

	"github.com/google/uuid"
)

// Connector — настроенный экземпляр плагина-коннектора исходной системы.
//
// Connector — это конфигурация: создаётся и редактируется администратором,
// движок во время прогона только читает её (кроме отметок об импорте).
// Каждый connector владеет набором Rule и множеством Request.
type Connector struct {
	// ID — уникальный идентификатор connector.
	ID uuid.UUID `json:"id"`

	// Code — код плагина-коннектора в реестре (например, "httpjson").
	Code string `json:"code"`

	// Label — человекочитаемое имя.
	Label string `json:"label"`

	// Params — значения параметров плагина (ключи из его ParamsSchema).
	Params map[string]string `json:"params,omitempty"`

	// Active — участвует ли connector в импорте и сопоставлении.
	Active bool `json:"active"`

	// ImportIntervalSec — минимальный интервал между импортами (секунды).
	// 0 — импортировать на каждом прогоне Import.
	ImportIntervalSec int `json:"import_interval_sec"`

	// LastImportAt — время последней попытки импорта.
	LastImportAt *time.Time `json:"last_import_at,omitempty"`

	// LastImportMessage — сообщение последнего импорта (ошибка или счётчик).
	LastImportMessage string `json:"last_import_message,omitempty"`

	// ImportErrorCount — число неудачных импортов подряд.
	ImportErrorCount int `json:"import_error_count"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// ImportDue возвращает true, если connector активен и его интервал импорта истёк.
func (c *Connector) ImportDue(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.LastImportAt == nil || c.ImportIntervalSec <= 0 {
		return true
	}
	return !now.Before(c.LastImportAt.Add(time.Duration(c.ImportIntervalSec) * time.Second))
}
