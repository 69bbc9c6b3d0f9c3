package domain

import "fmt"

// RequestStatus — статус запроса в жизненном цикле.
//
// Жизненный цикл:
//
//	IMPORTED → RUNNING → FINISHED → EXPORTED
//	    ↓         ↓ ↑        ↓
//	  ERROR ←─────┤ │      ERROR
//	              ↓ │
//	          STANDBY / ERROR → REJECTED
//
//	IMPORTFAIL — терминальный статус, выставляется только при создании.
type RequestStatus string

const (
	// RequestStatusImported — запрос импортирован, процесс ещё не назначен.
	RequestStatusImported RequestStatus = "IMPORTED"

	// RequestStatusRunning — цепочка задач процесса выполняется.
	RequestStatusRunning RequestStatus = "RUNNING"

	// RequestStatusStandby — ожидает действия оператора.
	RequestStatusStandby RequestStatus = "STANDBY"

	// RequestStatusError — ожидает оператора или администратора.
	RequestStatusError RequestStatus = "ERROR"

	// RequestStatusRejected — отклонён (терминальный).
	RequestStatusRejected RequestStatus = "REJECTED"

	// RequestStatusFinished — цепочка завершена, ожидает экспорта.
	RequestStatusFinished RequestStatus = "FINISHED"

	// RequestStatusExported — результат отправлен в исходную систему (терминальный).
	RequestStatusExported RequestStatus = "EXPORTED"

	// RequestStatusImportFail — не прошёл валидацию при импорте (терминальный).
	RequestStatusImportFail RequestStatus = "IMPORTFAIL"
)

// transitions — единственный источник допустимых переходов.
var transitions = map[RequestStatus][]RequestStatus{
	RequestStatusImported: {RequestStatusRunning, RequestStatusError},
	RequestStatusRunning:  {RequestStatusFinished, RequestStatusStandby, RequestStatusError, RequestStatusRejected},
	RequestStatusStandby:  {RequestStatusRunning, RequestStatusRejected},
	RequestStatusError:    {RequestStatusRunning, RequestStatusRejected},
	RequestStatusFinished: {RequestStatusExported, RequestStatusError},
}

// AllRequestStatuses возвращает все статусы в порядке жизненного цикла.
func AllRequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusImported,
		RequestStatusRunning,
		RequestStatusStandby,
		RequestStatusError,
		RequestStatusRejected,
		RequestStatusFinished,
		RequestStatusExported,
		RequestStatusImportFail,
	}
}

// IsValid проверяет, что статус известен.
func (s RequestStatus) IsValid() bool {
	for _, known := range AllRequestStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для статусов, из которых нет переходов.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusRejected, RequestStatusExported, RequestStatusImportFail:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода s → to.
func (s RequestStatus) CanTransitionTo(to RequestStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// String возвращает строковое представление статуса.
func (s RequestStatus) String() string {
	return string(s)
}

// InvalidTransitionError — попытка применить недопустимый переход.
// Это ошибка программы, а не рабочая ситуация: MustTransition паникует с ней.
type InvalidTransitionError struct {
	From RequestStatus
	To   RequestStatus
}

// Error реализует интерфейс error.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid request transition %s -> %s", e.From, e.To)
}

// MustTransition проверяет переход и паникует, если он недопустим.
func MustTransition(from, to RequestStatus) {
	if !from.CanTransitionTo(to) {
		panic(&InvalidTransitionError{From: from, To: to})
	}
}

// HistoryStatus — статус отдельной записи истории.
type HistoryStatus string

const (
	// HistoryStatusOngoing — шаг начат, но ещё не завершён.
	HistoryStatusOngoing HistoryStatus = "ONGOING"

	// HistoryStatusFinished — шаг успешно завершён.
	HistoryStatusFinished HistoryStatus = "FINISHED"

	// HistoryStatusStandby — шаг остановил цепочку в ожидании оператора.
	HistoryStatusStandby HistoryStatus = "STANDBY"

	// HistoryStatusError — шаг завершился ошибкой.
	HistoryStatusError HistoryStatus = "ERROR"

	// HistoryStatusSkipped — шаг пропущен оператором.
	HistoryStatusSkipped HistoryStatus = "SKIPPED"
)
