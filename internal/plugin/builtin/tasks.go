package builtin

import (
	"context"
	"fmt"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/rules"
)

// Коды встроенных задач.
const (
	TaskValidation = "validation"
	TaskRemark     = "remark"
	TaskReject     = "reject"
	TaskWebhook    = "webhook"
)

// Ключи параметров.
const (
	paramMessage  = "message"
	paramAutoRule = "auto_validate"
	paramRemark   = "remark"
	paramMode     = "mode"
)

// Коды ошибок встроенных задач.
const (
	ErrorCodeTemplate   = "TEMPLATE_ERROR"
	ErrorCodeHTTP       = "HTTP_ERROR"
	ErrorCodeHTTPStatus = "HTTP_STATUS"
)

// --- validation ---

// ValidationTask останавливает цепочку в STANDBY до подтверждения оператором.
//
// Параметры:
//   - message       — текст для оператора (плейсхолдеры {field})
//   - auto_validate — предикат правила; если истинен, задача проходит без остановки
type ValidationTask struct {
	descriptor
	params map[string]string
	auto   rules.Predicate
}

var validationTexts = texts{
	"en": {"label": "Operator validation", "description": "Waits for an operator to validate the request.", "help": "Resume the request to validate it, reject it otherwise."},
	"fr": {"label": "Validation opérateur", "description": "Attend la validation de la demande par un opérateur.", "help": "Reprendre la demande pour la valider, sinon la refuser."},
	"de": {"label": "Operatorprüfung", "description": "Wartet auf die Freigabe durch einen Operator.", "help": "Anfrage fortsetzen, um sie freizugeben, sonst ablehnen."},
}

// NewValidationTask создаёт прототип задачи validation.
func NewValidationTask(lang string) *ValidationTask {
	return &ValidationTask{descriptor: descriptor{
		code:  TaskValidation,
		lang:  lang,
		icon:  "fa-check-square",
		texts: validationTexts,
		params: []plugin.Param{
			{Code: paramMessage, Label: "Message", Type: "multitext", MaxLength: 5000},
			{Code: paramAutoRule, Label: "Auto-validate when", Type: "text", MaxLength: 1000},
		},
	}}
}

// NewInstance компилирует условие автоподтверждения.
func (t *ValidationTask) NewInstance(lang string, params map[string]string) (plugin.TaskProcessor, error) {
	inst := NewValidationTask(lang)
	inst.params = params

	if expr := params[paramAutoRule]; expr != "" {
		pred, err := rules.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", paramAutoRule, err)
		}
		inst.auto = pred
	}
	return inst, nil
}

// Execute возвращает STANDBY, если запрос не подходит под автоподтверждение.
func (t *ValidationTask) Execute(_ context.Context, req domain.Request, _ *domain.EmailSettings) plugin.TaskResult {
	if t.auto != nil && t.auto.Eval(&req) {
		return plugin.Success("validated automatically")
	}

	msg, err := rules.Render(plugin.ParamString(t.params, paramMessage, "Awaiting operator validation"), &req)
	if err != nil {
		return plugin.Failure(ErrorCodeTemplate, err.Error())
	}
	return plugin.Standby(msg)
}

// --- remark ---

// RemarkTask записывает замечание по шаблону.
//
// Параметры:
//   - remark — шаблон замечания (плейсхолдеры {field})
//   - mode   — "replace" (по умолчанию) или "append"
type RemarkTask struct {
	descriptor
	params map[string]string
}

var remarkTexts = texts{
	"en": {"label": "Remark", "description": "Sets the remark of the request from a template.", "help": "Placeholders like {orderlabel} are replaced with request fields."},
	"fr": {"label": "Remarque", "description": "Renseigne la remarque de la demande à partir d'un modèle.", "help": "Les champs comme {orderlabel} sont remplacés."},
}

// NewRemarkTask создаёт прототип задачи remark.
func NewRemarkTask(lang string) *RemarkTask {
	return &RemarkTask{descriptor: descriptor{
		code:  TaskRemark,
		lang:  lang,
		icon:  "fa-comment",
		texts: remarkTexts,
		params: []plugin.Param{
			{Code: paramRemark, Label: "Remark", Type: "multitext", Req: true, MaxLength: 5000},
			{Code: paramMode, Label: "Mode", Type: "list", Options: []string{"replace", "append"}},
		},
	}}
}

// NewInstance проверяет параметры.
func (t *RemarkTask) NewInstance(lang string, params map[string]string) (plugin.TaskProcessor, error) {
	switch mode := params[paramMode]; mode {
	case "", "replace", "append":
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	inst := NewRemarkTask(lang)
	inst.params = params
	return inst, nil
}

// Execute рендерит шаблон и возвращает новое замечание.
func (t *RemarkTask) Execute(_ context.Context, req domain.Request, _ *domain.EmailSettings) plugin.TaskResult {
	text, err := rules.Render(t.params[paramRemark], &req)
	if err != nil {
		return plugin.Failure(ErrorCodeTemplate, err.Error())
	}
	if t.params[paramMode] == "append" && req.Remark != "" {
		text = req.Remark + "\n" + text
	}

	res := plugin.Success("remark set")
	res.Update.Remark = &text
	return res
}

// --- reject ---

// RejectTask отклоняет запрос с замечанием.
type RejectTask struct {
	descriptor
	params map[string]string
}

var rejectTexts = texts{
	"en": {"label": "Reject", "description": "Rejects the request with a remark.", "help": "The chain stops after this task."},
	"fr": {"label": "Refus", "description": "Refuse la demande avec une remarque.", "help": "Le traitement s'arrête après cette tâche."},
}

// NewRejectTask создаёт прототип задачи reject.
func NewRejectTask(lang string) *RejectTask {
	return &RejectTask{descriptor: descriptor{
		code:  TaskReject,
		lang:  lang,
		icon:  "fa-ban",
		texts: rejectTexts,
		params: []plugin.Param{
			{Code: paramRemark, Label: "Remark", Type: "multitext", Req: true, MaxLength: 5000},
		},
	}}
}

// NewInstance требует непустое замечание.
func (t *RejectTask) NewInstance(lang string, params map[string]string) (plugin.TaskProcessor, error) {
	if params[paramRemark] == "" {
		return nil, fmt.Errorf("%s is required", paramRemark)
	}
	inst := NewRejectTask(lang)
	inst.params = params
	return inst, nil
}

// Execute возвращает SUCCESS с флагом отклонения.
func (t *RejectTask) Execute(_ context.Context, req domain.Request, _ *domain.EmailSettings) plugin.TaskResult {
	text, err := rules.Render(t.params[paramRemark], &req)
	if err != nil {
		return plugin.Failure(ErrorCodeTemplate, err.Error())
	}
	rejected := true

	res := plugin.Success("request rejected")
	res.Update.Remark = &text
	res.Update.Rejected = &rejected
	return res
}
