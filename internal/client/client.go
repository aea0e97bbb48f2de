// Package client talks to the memorymap HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"memorymap/internal/blob"
	"memorymap/internal/memory"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Session struct {
	UID       string `json:"uid"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
	// Backoff is the first reconnect delay of Subscribe; it doubles up to a minute.
	Backoff time.Duration
	Log     *zap.Logger

	mu    sync.RWMutex
	token string
}

var _ blob.Uploader = (*Client)(nil)

func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Dialer:  websocket.DefaultDialer,
		Backoff: 500 * time.Millisecond,
		Log:     log,
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// StartSession obtains an anonymous session and uses it for later calls.
func (c *Client) StartSession(ctx context.Context) (Session, error) {
	var s Session
	if err := c.postJSON(ctx, "/session", nil, &s); err != nil {
		return Session{}, err
	}
	c.SetToken(s.Token)
	return s, nil
}

// Authorize checks key and, on success, marks the current session as allowed to post.
func (c *Client) Authorize(ctx context.Context, key string) error {
	return c.postJSON(ctx, "/authorize", map[string]string{"key": key}, nil)
}

func (c *Client) SaveMemory(ctx context.Context, in memory.CreateInput) (string, error) {
	in.ImageURLs = memory.CopyURLs(in.ImageURLs)
	var out struct {
		MemoryID string `json:"memoryId"`
	}
	if err := c.postJSON(ctx, "/save-memory", in, &out); err != nil {
		return "", err
	}
	return out.MemoryID, nil
}

func (c *Client) DeleteMemory(ctx context.Context, id string) error {
	return c.postJSON(ctx, "/delete-memory", map[string]string{"id": id}, nil)
}

func (c *Client) ListMemories(ctx context.Context) ([]memory.Memory, error) {
	var ms []memory.Memory
	if err := c.do(ctx, http.MethodGet, "/memories", nil, "", &ms); err != nil {
		return nil, err
	}
	if ms == nil {
		ms = []memory.Memory{}
	}
	return ms, nil
}

// UploadFile uploads one photo and returns its public url.
func (c *Client) UploadFile(ctx context.Context, f blob.File) (string, error) {
	ct := f.ContentType
	if ct == "" {
		ct = http.DetectContentType(f.Data)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", err
	}
	if err := mw.WriteField("name", f.Name); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/upload", &buf, mw.FormDataContentType(), &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, http.MethodPost, path, body, "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&msg)
		return NewAPIError(res.StatusCode, msg.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrServer, path, err)
	}
	return nil
}
