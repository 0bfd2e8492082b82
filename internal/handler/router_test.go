package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/invoice-relay/backend/internal/model/chat"
	chatService "github.com/zhouzirui/invoice-relay/backend/internal/service/chat"
	"github.com/zhouzirui/invoice-relay/backend/internal/service/registry"
)

type staticProcessor string

func (p staticProcessor) Process(context.Context, string) string { return string(p) }

func setup(t *testing.T) (*httptest.Server, *chatService.Service) {
	t.Helper()
	history := chatService.NewService()
	srv := httptest.NewServer(NewRouter("s3cret", history, staticProcessor("Invoice created."), registry.New()))
	t.Cleanup(srv.Close)
	return srv, history
}

func do(t *testing.T, method, url, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestClearChatWithoutKeyIsForbidden(t *testing.T) {
	srv, history := setup(t)
	history.Append(model.RoleUser, "keep me")

	resp := do(t, http.MethodPost, srv.URL+"/clear-chat", "")

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, history.Len())
}

func TestClearChatWithWrongKeyIsForbidden(t *testing.T) {
	srv, history := setup(t)
	history.Append(model.RoleUser, "keep me")

	resp := do(t, http.MethodPost, srv.URL+"/clear-chat", "guess")

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, history.Len())
}

func TestClearChatWithKey(t *testing.T) {
	srv, history := setup(t)
	history.Append(model.RoleUser, "forget me")

	resp := do(t, http.MethodPost, srv.URL+"/clear-chat", "s3cret")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, history.Len())
}

func TestRootRequiresKey(t *testing.T) {
	srv, _ := setup(t)

	assert.Equal(t, http.StatusForbidden, do(t, http.MethodGet, srv.URL+"/", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/", "s3cret").StatusCode)
}

func TestHealthzIsOpen(t *testing.T) {
	srv, _ := setup(t)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/healthz", "").StatusCode)
}

func TestSocketDoesNotRequireKey(t *testing.T) {
	srv, _ := setup(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"session_id":"s1","message":"Create an invoice for $50"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var reply model.ChatResponse
	require.NoError(t, conn.ReadJSON(&reply))
	assert.True(t, reply.Success)
	assert.Equal(t, "Invoice created.", reply.Message)
}

func TestClearChatDoesNotPushFramesToSockets(t *testing.T) {
	srv, history := setup(t)
	history.Append(model.RoleUser, "old turn")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := do(t, http.MethodPost, srv.URL+"/clear-chat", "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, history.Len())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"session_id":"s1","message":"bill acme"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// The first frame on the socket is the reply to our own message.
	var reply model.ChatResponse
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "s1", reply.SessionID)
	assert.Equal(t, model.MessageTypeResponse, reply.MessageType)
	assert.Equal(t, "Invoice created.", reply.Message)
}
