package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"memorymap/internal/memory"
	"memorymap/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T, src Source) *Hub {
	t.Helper()
	h := NewHub(src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return h
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn, typ string) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == typ {
			return env
		}
	}
}

func TestHub_StreamsFullSet(t *testing.T) {
	st := store.NewInMemory()
	defer st.Close()
	ctx := context.Background()
	_, err := st.Create(ctx, memory.Memory{Story: "first", Timestamp: 1})
	require.NoError(t, err)

	h := startHub(t, st)
	conn := dial(t, h)

	var got []memory.Memory
	require.NoError(t, json.Unmarshal(readType(t, conn, MessageTypeMemories).Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Story)

	_, err = st.Create(ctx, memory.Memory{Story: "second", Timestamp: 2})
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(readType(t, conn, MessageTypeMemories).Data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Story, "newest first")
}

func TestHub_PingPong(t *testing.T) {
	h := startHub(t, store.NewInMemory())
	conn := dial(t, h)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	readType(t, conn, MessageTypePong)
}

type fakeSource struct {
	mu        sync.Mutex
	onRecords func([]memory.Memory)
	onError   func(error)
	ready     chan struct{}
}

func newFakeSource() *fakeSource { return &fakeSource{ready: make(chan struct{})} }

func (f *fakeSource) Subscribe(_ context.Context, onRecords func([]memory.Memory), onError func(error)) (func(), error) {
	f.mu.Lock()
	f.onRecords, f.onError = onRecords, onError
	f.mu.Unlock()
	close(f.ready)
	return func() {}, nil
}

func (f *fakeSource) emit(ms []memory.Memory) {
	<-f.ready
	f.mu.Lock()
	fn := f.onRecords
	f.mu.Unlock()
	fn(ms)
}

func (f *fakeSource) fail(err error) {
	<-f.ready
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()
	fn(err)
}

func recv(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return Message{}, false
	}
}

func TestHub_ForwardsErrorsAndKeepsLastSet(t *testing.T) {
	src := newFakeSource()
	h := startHub(t, src)

	a := &Client{hub: h, send: make(chan Message, 4)}
	require.True(t, h.join(context.Background(), a))

	src.emit([]memory.Memory{{ID: "m1"}})
	m, _ := recv(t, a)
	assert.Equal(t, MessageTypeMemories, m.Type)

	src.fail(errors.New("listener reset"))
	m, _ = recv(t, a)
	assert.Equal(t, MessageTypeError, m.Type)
	assert.Equal(t, ErrorData{Message: "live updates interrupted, retrying"}, m.Data)

	// a late joiner still gets the last good set, not the error
	b := &Client{hub: h, send: make(chan Message, 4)}
	require.True(t, h.join(context.Background(), b))
	m, _ = recv(t, b)
	assert.Equal(t, MessageTypeMemories, m.Type)
	assert.Equal(t, []memory.Memory{{ID: "m1"}}, m.Data)
}

func TestHub_DropsSlowClient(t *testing.T) {
	src := newFakeSource()
	h := startHub(t, src)

	slow := &Client{hub: h, send: make(chan Message, 1)}
	slow.send <- Message{Type: MessageTypePong}
	require.True(t, h.join(context.Background(), slow))

	src.emit(nil)
	_, ok := recv(t, slow)
	require.True(t, ok, "buffered message still readable")
	_, ok = recv(t, slow)
	assert.False(t, ok, "send channel closed")
}

func TestHub_CheckOrigin(t *testing.T) {
	h := NewHub(newFakeSource(), nil)
	r := httptest.NewRequest("GET", "/subscribe", nil)
	r.Header.Set("Origin", "https://evil.test")
	assert.True(t, h.checkOrigin(r))

	h.Origins = []string{"https://map.test"}
	assert.False(t, h.checkOrigin(r))
	r.Header.Set("Origin", "https://map.test")
	assert.True(t, h.checkOrigin(r))
}
