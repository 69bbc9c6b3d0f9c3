package plugin

import (
	"encoding/json"
	"strconv"
)

// Param — описание одного настраиваемого параметра плагина.
type Param struct {
	Code      string   `json:"code"`
	Label     string   `json:"label"`
	Type      string   `json:"type"` // text, pass, multitext, numeric, boolean, list
	Req       bool     `json:"req"`
	MaxLength int      `json:"maxlength,omitempty"`
	Help      string   `json:"help,omitempty"`
	Options   []string `json:"options,omitempty"`
}

// SchemaJSON сериализует набор параметров в JSON для ParamsSchema.
func SchemaJSON(params []Param) string {
	if len(params) == 0 {
		return "[]"
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ParamString возвращает значение параметра или def, если его нет.
func ParamString(params map[string]string, key, def string) string {
	if v, ok := params[key]; ok && v != "" {
		return v
	}
	return def
}

// ParamInt возвращает числовое значение параметра или def.
func ParamInt(params map[string]string, key string, def int) int {
	if v, ok := params[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// ParamBool возвращает булево значение параметра или def.
func ParamBool(params map[string]string, key string, def bool) bool {
	if v, ok := params[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
