package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RequestResponse — запрос из API.
type RequestResponse struct {
	ID            string            `json:"id"`
	ConnectorID   string            `json:"connector_id"`
	ProcessID     string            `json:"process_id,omitempty"`
	OrderLabel    string            `json:"order_label"`
	ProductLabel  string            `json:"product_label"`
	Client        string            `json:"client"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Remark        string            `json:"remark,omitempty"`
	Rejected      bool              `json:"rejected"`
	Status        string            `json:"status"`
	TaskIndex     int               `json:"task_index"`
	Message       string            `json:"message,omitempty"`
	ErrorCode     string            `json:"error_code,omitempty"`
	MatchAttempts int               `json:"match_attempts"`
	Claimed       bool              `json:"claimed"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

// HistoryResponse — запись истории из API.
type HistoryResponse struct {
	Step        int    `json:"step"`
	ProcessStep int    `json:"process_step"`
	TaskCode    string `json:"task_code,omitempty"`
	TaskLabel   string `json:"task_label"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	Actor       string `json:"actor"`
	StartedAt   string `json:"started_at"`
}

// ConnectorResponse — connector из API.
type ConnectorResponse struct {
	ID                string `json:"id"`
	Code              string `json:"code"`
	Label             string `json:"label"`
	Active            bool   `json:"active"`
	ImportIntervalSec int    `json:"import_interval_sec"`
	LastImportAt      string `json:"last_import_at,omitempty"`
	LastImportMessage string `json:"last_import_message,omitempty"`
	ImportErrorCount  int    `json:"import_error_count"`
}

// PluginInfo — описание плагина из API.
type PluginInfo struct {
	Code         string `json:"code"`
	Label        string `json:"label"`
	Description  string `json:"description"`
	ParamsSchema string `json:"params_schema"`
}

// PluginsResponse — каталог плагинов.
type PluginsResponse struct {
	Connectors []PluginInfo `json:"connectors"`
	Tasks      []PluginInfo `json:"tasks"`
}

// Window — окно расписания.
type Window struct {
	DayFrom  int    `json:"dayfrom"`
	DayTo    int    `json:"dayto"`
	TimeFrom string `json:"timefrom"`
	TimeTo   string `json:"timeto"`
}

// ScheduleResponse — расписание вида задания из API.
type ScheduleResponse struct {
	Kind    string   `json:"kind"`
	Mode    string   `json:"mode"`
	Windows []Window `json:"ranges"`
}

// SyncResponse — настройки пересканирования плагинов.
type SyncResponse struct {
	Enabled     bool   `json:"enabled"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Cron        string `json:"cron,omitempty"`
	LastRun     string `json:"last_run,omitempty"`
	NextRun     string `json:"next_run,omitempty"`
}

// --- Request types ---

// ActionRequest — действие оператора.
type ActionRequest struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
	Remark string `json:"remark,omitempty"`
}

// UpdateScheduleRequest — новое расписание.
type UpdateScheduleRequest struct {
	Mode    string   `json:"mode"`
	Windows []Window `json:"ranges"`
}

// UpdateSyncRequest — новые настройки пересканирования.
type UpdateSyncRequest struct {
	Enabled     bool   `json:"enabled"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Cron        string `json:"cron,omitempty"`
}

// ListRequestsOpts — параметры фильтрации запросов.
type ListRequestsOpts struct {
	ConnectorID string
	Status      string
	Limit       int
	Offset      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Extract API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Requests ---

// ListRequests возвращает запросы с фильтрацией.
func (c *Client) ListRequests(opts ListRequestsOpts) ([]RequestResponse, error) {
	params := url.Values{}
	if opts.ConnectorID != "" {
		params.Set("connector_id", opts.ConnectorID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var requests []RequestResponse
	err := c.list("/api/v1/requests", params, &requests)
	return requests, err
}

// GetRequest возвращает запрос по ID.
func (c *Client) GetRequest(id string) (*RequestResponse, error) {
	var req RequestResponse
	err := c.get("/api/v1/requests/"+url.PathEscape(id), &req)
	return &req, err
}

// History возвращает историю запроса.
func (c *Client) History(id string) ([]HistoryResponse, error) {
	var records []HistoryResponse
	err := c.list("/api/v1/requests/"+url.PathEscape(id)+"/history", nil, &records)
	return records, err
}

// Act выполняет действие оператора над запросом.
func (c *Client) Act(id string, req ActionRequest) (*RequestResponse, error) {
	var out RequestResponse
	err := c.post("/api/v1/requests/"+url.PathEscape(id)+"/actions", req, &out)
	return &out, err
}

// --- Catalog ---

// ListConnectors возвращает connectors.
func (c *Client) ListConnectors(activeOnly bool) ([]ConnectorResponse, error) {
	params := url.Values{}
	if activeOnly {
		params.Set("active", "true")
	}
	var connectors []ConnectorResponse
	err := c.list("/api/v1/connectors", params, &connectors)
	return connectors, err
}

// ListPlugins возвращает каталог плагинов. refresh пересканирует источники.
func (c *Client) ListPlugins(refresh bool) (*PluginsResponse, error) {
	path := "/api/v1/plugins"
	if refresh {
		path += "?refresh=true"
	}
	var plugins PluginsResponse
	err := c.get(path, &plugins)
	return &plugins, err
}

// --- Schedules ---

// ListSchedules возвращает расписания всех видов заданий.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// GetSchedule возвращает расписание вида задания.
func (c *Client) GetSchedule(kind string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+url.PathEscape(kind), &schedule)
	return &schedule, err
}

// UpdateSchedule сохраняет расписание вида задания.
func (c *Client) UpdateSchedule(kind string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+url.PathEscape(kind), req, &schedule)
	return &schedule, err
}

// GetSync возвращает настройки пересканирования плагинов.
func (c *Client) GetSync() (*SyncResponse, error) {
	var sync SyncResponse
	err := c.get("/api/v1/sync", &sync)
	return &sync, err
}

// UpdateSync сохраняет настройки пересканирования плагинов.
func (c *Client) UpdateSync(req UpdateSyncRequest) (*SyncResponse, error) {
	var sync SyncResponse
	err := c.put("/api/v1/sync", req, &sync)
	return &sync, err
}

// TriggerJob ставит вид задания в очередь на немедленный запуск.
func (c *Client) TriggerJob(kind string) error {
	return c.post("/api/v1/jobs/"+url.PathEscape(kind)+"/trigger", nil, nil)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
