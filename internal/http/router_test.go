package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"memorymap/internal/auth"
	"memorymap/internal/blob"
	"memorymap/internal/config"
	httpx "memorymap/internal/http"
	"memorymap/internal/memory"
	"memorymap/internal/realtime"
	"memorymap/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "open-sesame"

type fakeBlobs struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (b *fakeBlobs) Upload(_ context.Context, r io.Reader, _ int64, _ string, key string) (string, error) {
	if b.fail {
		return "", errors.New("bucket offline")
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	b.mu.Lock()
	b.keys = append(b.keys, key)
	b.mu.Unlock()
	return "https://cdn.test/" + key, nil
}

func (b *fakeBlobs) Delete(context.Context, string) error { return nil }

func (b *fakeBlobs) KeyFromURL(u string) (string, bool) {
	return strings.CutPrefix(u, "https://cdn.test/")
}

type env struct {
	srv   *httptest.Server
	store *store.InMemory
}

type envOpts struct {
	key       string
	blobs     blob.Store
	rateLimit int
	hub       bool
}

func newEnv(t *testing.T, o envOpts) *env {
	t.Helper()
	st := store.NewInMemory()
	t.Cleanup(func() { _ = st.Close() })

	svc := &memory.Service{Store: st, Gate: auth.NewKeyGate(o.key)}
	if o.rateLimit == 0 {
		o.rateLimit = 1000
	}
	d := httpx.Deps{
		Config: config.Config{AppID: "memory-map-v1", AuthorizeRateLimit: o.rateLimit, UploadMaxBytes: 1 << 10},
		Svc:    svc,
		JWT:    auth.NewJWT("test-secret", time.Hour),
		Blobs:  o.blobs,
	}
	if o.hub {
		h := realtime.NewHub(st, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			_ = h.Run(ctx)
			close(done)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
		d.Hub = h
	}

	srv := httptest.NewServer(httpx.NewRouter(d))
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: st}
}

func (e *env) post(t *testing.T, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	out := map[string]any{}
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	}
	return res, out
}

func (e *env) session(t *testing.T) (uid, token string) {
	t.Helper()
	res, body := e.post(t, "/session", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	return body["uid"].(string), body["token"].(string)
}

func (e *env) authorizedSession(t *testing.T) (uid, token string) {
	t.Helper()
	uid, token = e.session(t)
	res, _ := e.post(t, "/authorize", token, map[string]string{"key": testKey})
	require.Equal(t, http.StatusOK, res.StatusCode)
	return uid, token
}

func TestHealthAndNotFound(t *testing.T) {
	e := newEnv(t, envOpts{key: testKey})

	res, err := http.Get(e.srv.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/nope", nil)
	res, body := do(t, req)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.NotEmpty(t, body["message"])
}

func TestAuthorize(t *testing.T) {
	e := newEnv(t, envOpts{key: testKey})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantAuth   any
	}{
		{"missing body", nil, http.StatusBadRequest, nil},
		{"missing key field", map[string]string{}, http.StatusBadRequest, nil},
		{"bad json", "{", http.StatusBadRequest, nil},
		{"wrong key", map[string]string{"key": "guess"}, http.StatusUnauthorized, false},
		{"empty key", map[string]string{"key": ""}, http.StatusUnauthorized, false},
		{"unicode key", map[string]string{"key": "ключ🔑"}, http.StatusUnauthorized, false},
		{"long key", map[string]string{"key": strings.Repeat("k", 10_000)}, http.StatusUnauthorized, false},
		{"oversized body", map[string]string{"key": strings.Repeat("k", 100_000)}, http.StatusRequestEntityTooLarge, nil},
		{"null key", map[string]any{"key": nil}, http.StatusBadRequest, nil},
		{"numeric key", map[string]any{"key": 123}, http.StatusUnauthorized, false},
		{"array key", map[string]any{"key": []string{testKey}}, http.StatusUnauthorized, false},
		{"correct key", map[string]string{"key": testKey}, http.StatusOK, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, body := e.post(t, "/authorize", "", tc.body)
			assert.Equal(t, tc.wantStatus, res.StatusCode)
			assert.NotEmpty(t, body["message"])
			if tc.wantAuth != nil {
				assert.Equal(t, tc.wantAuth, body["authorized"])
			}
		})
	}
}

func TestAuthorize_MethodNotAllowed(t *testing.T) {
	e := newEnv(t, envOpts{key: testKey})

	for _, path := range []string{"/authorize", "/save-memory", "/delete-memory"} {
		req, _ := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
		res, body := do(t, req)
		assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode, path)
		assert.Equal(t, "Method Not Allowed. Use POST.", body["message"], path)
	}
}

func TestAuthorize_MissingSecret(t *testing.T) {
	e := newEnv(t, envOpts{key: ""})
	res, body := e.post(t, "/authorize", "", map[string]string{"key": "anything"})
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, body["message"], "configuration")
}

func TestAuthorize_RateLimited(t *testing.T) {
	e := newEnv(t, envOpts{key: testKey, rateLimit: 2})
	for i := 0; i < 2; i++ {
		res, _ := e.post(t, "/authorize", "", map[string]string{"key": "guess"})
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	}
	res, _ := e.post(t, "/authorize", "", map[string]string{"key": testKey})
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
}

func TestSaveMemory(t *testing.T) {
	e := newEnv(t, envOpts{key: testKey})
	payload := map[string]any{
		"location":  map[string]float64{"lat": 12.34, "lng": -56.78},
		"story":     "Test",
		"imageUrls": []string{},
	}

	res, _ := e.post(t, "/save-memory", "", payload)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "no session")

	uid, token := e.session(t)
	res, _ = e.post(t, "/save-memory", token, payload)
	assert.Equal(t, http.StatusForbidden, res.StatusCode, "session never passed the key check")

	res, _ = e.post(t, "/authorize", token, map[string]string{"key": testKey})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = e.post(t, "/save-memory", token, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, _ = e.post(t, "/save-memory", token, map[string]any{"story": strings.Repeat("s", 100_000)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
	res, _ = e.post(t, "/save-memory", token, map[string]any{"story": "  "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	ms, err := e.store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, ms, "rejected submissions create nothing")

	res, body := e.post(t, "/save-memory", token, payload)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, body["success"])
	id := body["memoryId"].(string)

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/memories", nil)
	res2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res2.Body.Close()
	var list []memory.Memory
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, memory.Location{Lat: 12.34, Lng: -56.78}, list[0].Location)
	assert.Equal(t, uid, list[0].ContributorID)
	assert.Equal(t, "Test", list[0].Story)
	assert.NotNil(t, list[0].ImageURLs)
}

func TestDeleteMemory_Idempotent(t *testing.T) {
	e := newEnv(t, envOpts{key: testKey})
	_, token := e.authorizedSession(t)

	var ids []string
	for _, story := range []string{"keep", "drop"} {
		res, body := e.post(t, "/save-memory", token, map[string]any{
			"location": map[string]float64{"lat": 1, "lng": 2},
			"story":    story,
		})
		require.Equal(t, http.StatusOK, res.StatusCode)
		ids = append(ids, body["memoryId"].(string))
	}

	for i := 0; i < 2; i++ {
		res, body := e.post(t, "/delete-memory", token, map[string]string{"id": ids[1]})
		assert.Equal(t, http.StatusOK, res.StatusCode, "attempt %d", i)
		assert.Equal(t, true, body["success"])
	}

	ms, err := e.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, ids[0], ms[0].ID)

	res, _ := e.post(t, "/delete-memory", token, map[string]string{"id": ""})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	_, stranger := e.session(t)
	res, _ = e.post(t, "/delete-memory", stranger, map[string]string{"id": ids[0]})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func uploadRequest(t *testing.T, url, token, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="beach.jpg"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUpload(t *testing.T) {
	blobs := &fakeBlobs{}
	e := newEnv(t, envOpts{key: testKey, blobs: blobs})
	uid, token := e.authorizedSession(t)

	res, body := do(t, uploadRequest(t, e.srv.URL, token, "image/jpeg", []byte("jpeg-bytes")))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.HasPrefix(body["url"].(string), "https://cdn.test/artifacts/memory-map-v1/memories/"+uid+"/beach.jpg_"))

	res, _ = do(t, uploadRequest(t, e.srv.URL, token, "text/plain", []byte("hi")))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, uploadRequest(t, e.srv.URL, token, "image/png", bytes.Repeat([]byte{1}, 4<<10)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)

	_, stranger := e.session(t)
	res, _ = do(t, uploadRequest(t, e.srv.URL, stranger, "image/jpeg", []byte("x")))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	blobs.fail = true
	res, _ = do(t, uploadRequest(t, e.srv.URL, token, "image/jpeg", []byte("x")))
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestUpload_NotConfigured(t *testing.T) {
	e := newEnv(t, envOpts{key: testKey})
	_, token := e.authorizedSession(t)

	res, _ := do(t, uploadRequest(t, e.srv.URL, token, "image/jpeg", []byte("x")))
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestSubscribe_EverySubscriberSeesNewRecord(t *testing.T) {
	e := newEnv(t, envOpts{key: testKey, hub: true})
	_, token := e.authorizedSession(t)

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/subscribe"
	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		conns = append(conns, c)
	}

	type envelope struct {
		Type string          `json:"type"`
		Data []memory.Memory `json:"data"`
	}
	next := func(c *websocket.Conn) []memory.Memory {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		for {
			var m envelope
			require.NoError(t, c.ReadJSON(&m))
			if m.Type == realtime.MessageTypeMemories {
				return m.Data
			}
		}
	}
	for _, c := range conns {
		assert.Empty(t, next(c))
	}

	res, body := e.post(t, "/save-memory", token, map[string]any{
		"location": map[string]float64{"lat": 48.85, "lng": 2.35},
		"story":    "Paris",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	for _, c := range conns {
		got := next(c)
		require.Len(t, got, 1)
		assert.Equal(t, body["memoryId"], got[0].ID)
	}
}
