package domain

import (
	"sort"
	"strconv"
	"strings"
)

// FieldAccessor возвращает строковое значение поля запроса.
type FieldAccessor func(r *Request) string

// ParametersPrefix — префикс доступа к произвольным параметрам: "parameters.<key>".
const ParametersPrefix = "parameters."

// requestFields — словарь имён полей для предикатов правил и плейсхолдеров задач.
// Собирается один раз; имена в нижнем регистре.
var requestFields = map[string]FieldAccessor{
	"orderlabel":   func(r *Request) string { return r.OrderLabel },
	"orderguid":    func(r *Request) string { return r.OrderGUID },
	"productlabel": func(r *Request) string { return r.ProductLabel },
	"productguid":  func(r *Request) string { return r.ProductGUID },
	"client":       func(r *Request) string { return r.Client },
	"clientguid":   func(r *Request) string { return r.ClientGUID },
	"organism":     func(r *Request) string { return r.Organism },
	"tiers":        func(r *Request) string { return r.Tiers },
	"perimeter":    func(r *Request) string { return r.Perimeter },
	"surface":      func(r *Request) string { return strconv.FormatFloat(r.Surface, 'f', -1, 64) },
	"folderin":     func(r *Request) string { return r.FolderIn },
	"folderout":    func(r *Request) string { return r.FolderOut },
	"externalurl":  func(r *Request) string { return r.ExternalURL },
	"remark":       func(r *Request) string { return r.Remark },
	"status":       func(r *Request) string { return string(r.Status) },
	"connector":    func(r *Request) string { return r.ConnectorID.String() },
	"id":           func(r *Request) string { return r.ID.String() },
}

// LookupField возвращает accessor по имени поля (без учёта регистра).
// Имена вида "parameters.<key>" читают Request.Parameters[key].
func LookupField(name string) (FieldAccessor, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if key, ok := strings.CutPrefix(lower, ParametersPrefix); ok {
		if key == "" {
			return nil, false
		}
		// Ключ параметра берём в исходном регистре.
		key = strings.TrimSpace(name)[len(ParametersPrefix):]
		return func(r *Request) string {
			return r.Parameters[key]
		}, true
	}
	fn, ok := requestFields[lower]
	return fn, ok
}

// FieldNames возвращает отсортированный список известных полей.
func FieldNames() []string {
	names := make([]string, 0, len(requestFields))
	for name := range requestFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
