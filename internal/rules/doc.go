// Package rules сопоставляет импортированные запросы с процессами.
//
// Включает:
//   - lexer.go, parser.go — разбор предикатов правил в дерево выражений
//   - matcher.go          — упорядоченная проверка правил connector'а
//   - template.go         — подстановка {field} в параметры задач
//
// Предикат — выражение над полями запроса:
//
//	productlabel startswith "A" and not (client == "ACME" or tiers in ("x", "y"))
//
// Поля разрешаются через словарь accessor'ов domain.LookupField на этапе
// компиляции, поэтому вычисление предиката не может завершиться ошибкой.
package rules
