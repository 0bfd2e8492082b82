package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/invoice-relay/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/invoice-relay/backend/internal/service/chat"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/registry"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	reply func(message string) string
}

func (f *fakeProcessor) Process(_ context.Context, message string) string {
	f.mu.Lock()
	f.calls = append(f.calls, message)
	f.mu.Unlock()
	return f.reply(message)
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	server    *httptest.Server
	processor *fakeProcessor
	history   *chatservice.Service
	registry  *registry.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		processor: &fakeProcessor{reply: func(m string) string { return "echo: " + m }},
		history:   chatservice.NewService(),
		registry:  registry.New(),
	}

	r := chi.NewRouter()
	NewWebSocketHandler(h.processor, h.history, h.registry).RegisterRoutes(r)
	h.server = httptest.NewServer(r)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) chat.ChatResponse {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var resp chat.ChatResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestStructuredChatFrame(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	resp := roundTrip(t, conn, `{"session_id":"s1","message":"Create an invoice for $50"}`)

	assert.True(t, resp.Success)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, chat.MessageTypeResponse, resp.MessageType)
	assert.Equal(t, chat.DefaultSender, resp.Sender)
	assert.Equal(t, "echo: Create an invoice for $50", resp.Message)
	assert.NotEmpty(t, resp.Timestamp)
	assert.Nil(t, resp.Error)
	assert.Equal(t, 1, h.processor.callCount())
}

func TestStructuredClearFrames(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	for _, frame := range []string{
		`{"session_id":"s1","message":"ignored","message_type":"clear"}`,
		`{"session_id":"s1","message":"  /CLEAR "}`,
	} {
		h.history.Append(chat.RoleUser, "something")

		resp := roundTrip(t, conn, frame)

		assert.True(t, resp.Success)
		assert.Equal(t, "s1", resp.SessionID)
		assert.Equal(t, ClearedMessage, resp.Message)
		assert.Empty(t, h.history.Snapshot())
	}
	assert.Equal(t, 0, h.processor.callCount())
}

func TestRawClearText(t *testing.T) {
	h := newHarness(t)
	h.history.Append(chat.RoleUser, "old")
	conn := h.dial(t)

	resp := roundTrip(t, conn, "/clear")

	assert.Equal(t, ClearedMessage, resp.Message)
	assert.Equal(t, 0, h.history.Len())
	assert.Equal(t, 0, h.processor.callCount())
}

func TestRawTextUsesGeneratedSessionID(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	first := roundTrip(t, conn, "hello there")
	second := roundTrip(t, conn, "{broken json")

	assert.True(t, first.Success)
	assert.Equal(t, "echo: hello there", first.Message)
	assert.Len(t, first.SessionID, 36)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "echo: {broken json", second.Message)
}

func TestSchemaMismatchReturnsErrorEnvelope(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	resp := roundTrip(t, conn, `{"message":"no session id"}`)

	assert.False(t, resp.Success)
	assert.Equal(t, ErrorMessage, resp.Message)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "session_id")
	assert.Len(t, resp.SessionID, 36)
	assert.Equal(t, 0, h.processor.callCount())

	// The session keeps serving after a failed frame.
	ok := roundTrip(t, conn, `{"session_id":"s2","message":"still there?"}`)
	assert.True(t, ok.Success)
}

func TestProcessorPanicBecomesErrorEnvelope(t *testing.T) {
	h := newHarness(t)
	h.processor.reply = func(string) string { panic("agent exploded") }
	conn := h.dial(t)

	resp := roundTrip(t, conn, `{"session_id":"s1","message":"hi"}`)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "agent exploded")
	assert.NotEqual(t, "s1", resp.SessionID)
}

func TestOneResponsePerFrameInOrder(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"session_id":"s","message":"`+m+`"}`)))
	}
	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var resp chat.ChatResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, "echo: "+m, resp.Message)
	}
}

func TestConnectionsRegisterAndDeregister(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	other := h.dial(t)

	// A round trip guarantees both handlers are past registration.
	roundTrip(t, conn, "ping")
	roundTrip(t, other, "ping")
	require.Equal(t, 2, h.registry.Count())

	require.NoError(t, h.registry.Broadcast(`{"notice":true}`))
	for _, c := range []*websocket.Conn{conn, other} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"notice":true}`, string(data))
	}

	conn.Close()
	assert.Eventually(t, func() bool { return h.registry.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	roundTrip(t, conn, "ping")
	require.Equal(t, 1, h.registry.Count())

	big := `{"session_id":"s1","message":"` + strings.Repeat("a", maxMessageSize) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 1, h.processor.callCount())
	assert.Eventually(t, func() bool { return h.registry.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}
