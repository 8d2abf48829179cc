package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"siteCMS/internal/sections"
)

const (
	sectionsPath    = "/api/admin/home/sections"
	adminCookieName = "admin-token"
)

var (
	// ErrUnauthorized 表示管理员会话无效或已过期。
	ErrUnauthorized = errors.New("admin session required")
	// ErrConflict 表示服务端文档已被其他会话修改。
	ErrConflict = errors.New("document was modified by another session")
)

// StatusError 描述其他非 2xx 响应。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sections api status %d: %s", e.Code, e.Body)
}

// Client 通过管理后台接口读写首页区块文档。
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// Optimistic 为 true 时保存请求携带 If-Match，服务端版本不一致返回 ErrConflict。
	Optimistic bool

	mu   sync.Mutex
	etag string
}

// NewClient 创建客户端，token 为登录后获得的 admin-token。
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Load 读取文档并记住服务端返回的版本。
func (c *Client) Load(ctx context.Context) (sections.Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return sections.Document{}, err
	}
	body, resp, err := c.do(req)
	if err != nil {
		return sections.Document{}, err
	}

	doc, err := sections.Decode(body)
	if err != nil {
		return sections.Document{}, fmt.Errorf("decode sections response: %w", err)
	}
	c.setETag(resp.Header.Get("ETag"))
	return doc, nil
}

// Save 以完整文档覆盖服务端副本。
func (c *Client) Save(ctx context.Context, doc sections.Document) error {
	data, err := sections.Marshal(doc)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, data)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Optimistic {
		if etag := c.ETag(); etag != "" {
			req.Header.Set("If-Match", etag)
		}
	}

	body, _, err := c.do(req)
	if err != nil {
		return err
	}

	var out struct {
		OK       bool  `json:"ok"`
		Revision int64 `json:"revision"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode save response: %w", err)
	}
	c.setETag(strconv.Quote(strconv.FormatInt(out.Revision, 10)))
	return nil
}

// ETag 返回最近一次读写得到的版本标记。
func (c *Client) ETag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.etag
}

func (c *Client) setETag(v string) {
	c.mu.Lock()
	c.etag = v
	c.mu.Unlock()
}

func (c *Client) newRequest(ctx context.Context, method string, body []byte) (*http.Request, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("sections api base url missing")
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+sectionsPath, reader)
	if err != nil {
		return nil, fmt.Errorf("build sections request: %w", err)
	}
	if c.Token != "" {
		req.AddCookie(&http.Cookie{Name: adminCookieName, Value: c.Token})
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, *http.Response, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request sections api: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, resp, ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		return nil, resp, ErrConflict
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, resp, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, fmt.Errorf("read sections response: %w", err)
	}
	return data, resp, nil
}
