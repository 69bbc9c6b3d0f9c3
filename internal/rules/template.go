package rules

import (
	"strings"

	"github.com/shaiso/Extract/internal/domain"
)

// Render подставляет значения полей запроса вместо плейсхолдеров {field}.
//
// Поле ищется через domain.LookupField; неизвестные плейсхолдеры
// остаются в тексте как есть. "{{" выводит литеральную '{'.
func Render(tmpl string, req *domain.Request) (string, error) {
	if !strings.Contains(tmpl, "{") {
		return tmpl, nil
	}

	var sb strings.Builder
	sb.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		if c != '{' {
			sb.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			sb.WriteByte('{')
			i += 2
			continue
		}

		end := strings.IndexByte(tmpl[i+1:], '}')
		if end < 0 {
			return "", newPredicateError(i, ErrUnclosedPlaceholder, "unclosed placeholder")
		}
		name := tmpl[i+1 : i+1+end]
		if accessor, ok := domain.LookupField(name); ok {
			sb.WriteString(accessor(req))
		} else {
			sb.WriteString(tmpl[i : i+end+2])
		}
		i += end + 2
	}

	return sb.String(), nil
}

// RenderParams рендерит все значения карты параметров задачи.
func RenderParams(params map[string]string, req *domain.Request) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k, v := range params {
		rendered, err := Render(v, req)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}
