package diff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound — одна из ревизий неизвестна code host'у.
var ErrNotFound = errors.New("revision not found")

// Service возвращает файлы, изменённые между base и head.
type Service interface {
	// ModifiedFiles возвращает пути файлов, изменённых между base и head.
	// Пути нормализуются вызывающей стороной, здесь они отдаются как есть.
	ModifiedFiles(ctx context.Context, base, head string) ([]string, error)
}

// Client — Service поверх HTTP API code host'а.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient создаёт клиент диффов.
// token может быть пустым для анонимного доступа.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// compareResponse — ответ эндпоинта сравнения ревизий.
type compareResponse struct {
	Files []struct {
		Path string `json:"path"`
	} `json:"files"`
}

// ModifiedFiles запрашивает GET {base_url}/compare?base=..&head=..
func (c *Client) ModifiedFiles(ctx context.Context, base, head string) ([]string, error) {
	q := url.Values{}
	q.Set("base", base)
	q.Set("head", head)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/compare?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build compare request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compare %s..%s: %w", base, head, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("compare %s..%s: %w", base, head, ErrNotFound)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("compare %s..%s: unexpected status %d: %s", base, head, resp.StatusCode, body)
	}

	var parsed compareResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode compare response: %w", err)
	}

	files := make([]string, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		files = append(files, f.Path)
	}
	return files, nil
}
