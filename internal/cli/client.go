package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// SubmitChangeResponse — подтверждение приёма события.
type SubmitChangeResponse struct {
	EventID  string `json:"event_id"`
	ChangeID string `json:"change_id"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	ChangeID   string          `json:"change_id"`
	Status     string          `json:"status"`
	Flags      map[string]bool `json:"flags,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// JobResultResponse — результат job из API.
type JobResultResponse struct {
	JobID      string `json:"job_id"`
	Name       string `json:"name"`
	Ref        string `json:"ref"`
	Outcome    string `json:"outcome"`
	Status     string `json:"status,omitempty"`
	BestEffort bool   `json:"best_effort,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TableResponse — сводка gating-таблицы из API.
type TableResponse struct {
	Version string `json:"version,omitempty"`
	Flags   []struct {
		Name  string   `json:"name"`
		Paths []string `json:"paths"`
	} `json:"flags"`
	Jobs []struct {
		Name       string   `json:"name"`
		Ref        string   `json:"ref"`
		Guard      string   `json:"guard"`
		Needs      []string `json:"needs,omitempty"`
		Secrets    []string `json:"secrets,omitempty"`
		BestEffort bool     `json:"best_effort,omitempty"`
	} `json:"jobs"`
}

// --- Request types ---

// SubmitChangeRequest — регистрация события об изменении.
type SubmitChangeRequest struct {
	ChangeID string   `json:"change_id"`
	BaseRef  string   `json:"base_ref,omitempty"`
	HeadRef  string   `json:"head_ref,omitempty"`
	Files    []string `json:"files,omitempty"`
	ForceAll bool     `json:"force_all,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	ChangeID string
	Status   string
	Limit    int
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

// Client — HTTP-клиент для Gatekeeper API.
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

// --- Changes ---

// SubmitChange отправляет событие об изменении.
func (c *Client) SubmitChange(req SubmitChangeRequest) (*SubmitChangeResponse, error) {
	var resp SubmitChangeResponse
	err := c.post("/api/v1/changes", req, &resp)
	return &resp, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.ChangeID != "" {
		params.Set("change_id", opts.ChangeID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// CancelRun запрашивает отмену run.
func (c *Client) CancelRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+id+"/cancel", nil, &run)
	return &run, err
}

// ListJobs возвращает результаты jobs для run.
func (c *Client) ListJobs(runID string) ([]JobResultResponse, error) {
	var jobs []JobResultResponse
	err := c.list("/api/v1/runs/"+runID+"/jobs", nil, &jobs)
	return jobs, err
}

// --- Gating table ---

// GetTable возвращает сводку gating-таблицы.
func (c *Client) GetTable() (*TableResponse, error) {
	var table TableResponse
	err := c.get("/api/v1/table", &table)
	return &table, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
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

	if len(lr.Data) == 0 || string(lr.Data) == "null" {
		return nil
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
