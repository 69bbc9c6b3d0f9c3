package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/plugin"
	"github.com/shaiso/Extract/internal/rules"
)

const (
	// ConnectorHTTPJSON — код коннектора JSON HTTP API.
	ConnectorHTTPJSON = "httpjson"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи параметров HTTP-плагинов.
const (
	paramURL        = "url"
	paramExportURL  = "export_url"
	paramToken      = "token"
	paramTimeoutSec = "timeout_sec"
	paramFailStatus = "fail_status"
)

// httpClient создаёт клиент с таймаутом из параметров.
func httpClient(params map[string]string) *http.Client {
	timeout := defaultHTTPTimeout
	if sec := plugin.ParamInt(params, paramTimeoutSec, 0); sec > 0 {
		timeout = time.Duration(sec) * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// doJSON выполняет запрос с JSON-телом и возвращает статус и тело ответа.
func doJSON(ctx context.Context, client *http.Client, method, rawURL, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// --- httpjson connector ---

// HTTPJSONConnector импортирует заказы из JSON HTTP API.
//
// Импорт: GET url → массив продуктов или {"products": [...]}.
// Экспорт: POST export_url (по умолчанию url) с результатом по каждому запросу.
type HTTPJSONConnector struct {
	descriptor
	params map[string]string
	client *http.Client
}

var httpJSONTexts = texts{
	"en": {"label": "JSON HTTP API", "description": "Imports orders from a JSON HTTP endpoint.", "help": "The endpoint returns an array of products; results are posted back to the export URL."},
	"fr": {"label": "API HTTP JSON", "description": "Importe les commandes depuis un service HTTP JSON.", "help": "Le service renvoie une liste de produits ; les résultats sont envoyés à l'URL d'export."},
}

// NewHTTPJSONConnector создаёт прототип коннектора.
func NewHTTPJSONConnector(lang string) *HTTPJSONConnector {
	return &HTTPJSONConnector{descriptor: descriptor{
		code:  ConnectorHTTPJSON,
		lang:  lang,
		icon:  "fa-cloud-download",
		texts: httpJSONTexts,
		params: []plugin.Param{
			{Code: paramURL, Label: "Import URL", Type: "text", Req: true, MaxLength: 255},
			{Code: paramExportURL, Label: "Export URL", Type: "text", MaxLength: 255},
			{Code: paramToken, Label: "Token", Type: "pass", MaxLength: 255},
			{Code: paramTimeoutSec, Label: "Timeout (s)", Type: "numeric"},
		},
	}}
}

// NewInstance проверяет URL.
func (c *HTTPJSONConnector) NewInstance(lang string, params map[string]string) (plugin.SourceConnector, error) {
	if _, err := url.ParseRequestURI(params[paramURL]); err != nil {
		return nil, fmt.Errorf("%s: %w", paramURL, err)
	}
	inst := NewHTTPJSONConnector(lang)
	inst.params = params
	inst.client = httpClient(params)
	return inst, nil
}

// ImportCommands читает продукты.
func (c *HTTPJSONConnector) ImportCommands(ctx context.Context) plugin.ImportResult {
	status, body, err := doJSON(ctx, c.client, http.MethodGet, c.params[paramURL], c.params[paramToken], nil)
	if err != nil {
		return plugin.ImportResult{ErrorMessage: err.Error()}
	}
	if !isSuccess(status) {
		return plugin.ImportResult{ErrorMessage: fmt.Sprintf("import endpoint returned HTTP %d", status)}
	}

	var products []plugin.Product
	if err := json.Unmarshal(body, &products); err != nil {
		var wrapped struct {
			Products []plugin.Product `json:"products"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return plugin.ImportResult{ErrorMessage: fmt.Sprintf("decode products: %v", err)}
		}
		products = wrapped.Products
	}
	return plugin.ImportResult{Success: true, Products: products}
}

// exportPayload — тело POST при экспорте.
type exportPayload struct {
	OrderGUID   string `json:"order_guid"`
	ProductGUID string `json:"product_guid"`
	Rejected    bool   `json:"rejected"`
	Remark      string `json:"remark,omitempty"`
	FolderOut   string `json:"folder_out,omitempty"`
}

// ExportResult отправляет результат.
func (c *HTTPJSONConnector) ExportResult(ctx context.Context, req plugin.ExportRequest) plugin.ExportResult {
	target := plugin.ParamString(c.params, paramExportURL, c.params[paramURL])
	payload := exportPayload{
		OrderGUID:   req.Request.OrderGUID,
		ProductGUID: req.Request.ProductGUID,
		Rejected:    req.Request.Rejected,
		Remark:      req.Request.Remark,
		FolderOut:   req.Request.FolderOut,
	}

	status, body, err := doJSON(ctx, c.client, http.MethodPost, target, c.params[paramToken], payload)
	if err != nil {
		return plugin.ExportResult{ResultCode: ErrorCodeHTTP, ErrorDetails: err.Error()}
	}
	if !isSuccess(status) {
		return plugin.ExportResult{
			ResultCode:    ErrorCodeHTTPStatus,
			ResultMessage: fmt.Sprintf("HTTP %d", status),
			ErrorDetails:  truncate(string(body), 500),
		}
	}
	return plugin.ExportResult{Success: true, ResultCode: "OK", ResultMessage: fmt.Sprintf("HTTP %d", status)}
}

// --- webhook task ---

// WebhookTask отправляет снимок запроса POST-запросом.
//
// Параметры:
//   - url         — адрес (плейсхолдеры {field})
//   - token       — Bearer-токен
//   - timeout_sec — таймаут
//   - fail_status — статус при ответе не 2xx: ERROR (по умолчанию) или STANDBY
type WebhookTask struct {
	descriptor
	params map[string]string
	client *http.Client
}

var webhookTexts = texts{
	"en": {"label": "Webhook", "description": "Posts the request to an external URL.", "help": "A 2xx response continues the chain."},
	"fr": {"label": "Webhook", "description": "Envoie la demande à une URL externe.", "help": "Une réponse 2xx poursuit le traitement."},
}

// NewWebhookTask создаёт прототип задачи webhook.
func NewWebhookTask(lang string) *WebhookTask {
	return &WebhookTask{descriptor: descriptor{
		code:  TaskWebhook,
		lang:  lang,
		icon:  "fa-paper-plane",
		texts: webhookTexts,
		params: []plugin.Param{
			{Code: paramURL, Label: "URL", Type: "text", Req: true, MaxLength: 255},
			{Code: paramToken, Label: "Token", Type: "pass", MaxLength: 255},
			{Code: paramTimeoutSec, Label: "Timeout (s)", Type: "numeric"},
			{Code: paramFailStatus, Label: "On failure", Type: "list", Options: []string{"ERROR", "STANDBY"}},
		},
	}}
}

// NewInstance проверяет параметры.
func (t *WebhookTask) NewInstance(lang string, params map[string]string) (plugin.TaskProcessor, error) {
	if params[paramURL] == "" {
		return nil, fmt.Errorf("%s is required", paramURL)
	}
	switch params[paramFailStatus] {
	case "", string(plugin.TaskStatusError), string(plugin.TaskStatusStandby):
	default:
		return nil, fmt.Errorf("%s: unsupported value %q", paramFailStatus, params[paramFailStatus])
	}
	inst := NewWebhookTask(lang)
	inst.params = params
	inst.client = httpClient(params)
	return inst, nil
}

// Execute отправляет снимок запроса.
func (t *WebhookTask) Execute(ctx context.Context, req domain.Request, _ *domain.EmailSettings) plugin.TaskResult {
	target, err := rules.Render(t.params[paramURL], &req)
	if err != nil {
		return plugin.Failure(ErrorCodeTemplate, err.Error())
	}

	status, body, err := doJSON(ctx, t.client, http.MethodPost, target, t.params[paramToken], req)
	if err != nil {
		return t.fail(ErrorCodeHTTP, err.Error())
	}
	if !isSuccess(status) {
		return t.fail(ErrorCodeHTTPStatus, fmt.Sprintf("HTTP %d: %s", status, truncate(string(body), 200)))
	}
	return plugin.Success(fmt.Sprintf("HTTP %d", status))
}

func (t *WebhookTask) fail(code, message string) plugin.TaskResult {
	if t.params[paramFailStatus] == string(plugin.TaskStatusStandby) {
		res := plugin.Standby(message)
		res.ErrorCode = code
		return res
	}
	return plugin.Failure(code, message)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
