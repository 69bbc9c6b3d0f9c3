package rules

import (
	"errors"
	"fmt"
)

// Ошибки компиляции предикатов.
var (
	// ErrSyntax — предикат не соответствует грамматике.
	ErrSyntax = errors.New("predicate syntax error")

	// ErrUnknownField — ссылка на неизвестное поле запроса.
	ErrUnknownField = errors.New("unknown request field")

	// ErrUnknownOperator — неизвестный оператор сравнения.
	ErrUnknownOperator = errors.New("unknown operator")
)

// Ошибки подстановки плейсхолдеров.
var (
	// ErrUnclosedPlaceholder — '{' без парной '}'.
	ErrUnclosedPlaceholder = errors.New("unclosed placeholder")
)

// PredicateError — ошибка компиляции предиката с позицией.
type PredicateError struct {
	Pos     int    // смещение в тексте предиката
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *PredicateError) Error() string {
	return fmt.Sprintf("at %d: %s", e.Pos, e.Message)
}

// Unwrap возвращает базовую ошибку.
func (e *PredicateError) Unwrap() error {
	return e.Err
}

func newPredicateError(pos int, err error, format string, args ...any) *PredicateError {
	return &PredicateError{
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
