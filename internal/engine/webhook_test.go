package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procflow/procflow/internal/expressions"
	"github.com/procflow/procflow/internal/store"
	"github.com/procflow/procflow/pkg/schema"
)

func newWebhookInput(config map[string]any) *Input {
	return &Input{
		Instance: &store.Instance{
			ID:   "inst-wh",
			Data: map[string]any{"order_id": "ord-7", "token": "s3cret"},
		},
		Node: &schema.WorkflowNode{
			ID:   "call",
			Type: schema.StepTypeWebhook,
			Data: schema.NodeData{Config: config},
		},
		Scope: &expressions.Scope{
			Data: map[string]any{"order_id": "ord-7", "token": "s3cret"},
		},
	}
}

func newTestWebhookProcessor() *WebhookProcessor {
	return NewWebhookProcessor(expressions.NewInterpolator(), expressions.NewGoJQEngine(), DefaultConfig())
}

func TestWebhookProcessor_Success(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"accepted","id":42}`))
	}))
	defer server.Close()

	p := newTestWebhookProcessor()
	result, err := p.Process(context.Background(), newWebhookInput(map[string]any{
		"url": server.URL,
		"headers": map[string]any{
			"Authorization": "Bearer ${{data.token}}",
		},
	}))
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, 200, result.Data["status_code"])
	body := result.Data["body"].(map[string]any)
	assert.Equal(t, "accepted", body["result"])
}

func TestWebhookProcessor_ResultJQ(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer server.Close()

	p := newTestWebhookProcessor()
	result, err := p.Process(context.Background(), newWebhookInput(map[string]any{
		"url":       server.URL,
		"result_jq": ".body.items | length",
	}))
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.EqualValues(t, 2, result.Data["body"])
}

func TestWebhookProcessor_NonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain text ack"))
	}))
	defer server.Close()

	p := newTestWebhookProcessor()
	result, err := p.Process(context.Background(), newWebhookInput(map[string]any{"url": server.URL}))
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Equal(t, "plain text ack", result.Data["body"])
}

func TestWebhookProcessor_Non2xxStalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := newTestWebhookProcessor()
	result, err := p.Process(context.Background(), newWebhookInput(map[string]any{"url": server.URL}))
	require.NoError(t, err)

	assert.False(t, result.Completed)
	assert.Contains(t, result.Err, "503")
}

func TestWebhookProcessor_TransportErrorStalls(t *testing.T) {
	p := newTestWebhookProcessor()
	// Closed server: connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	result, err := p.Process(context.Background(), newWebhookInput(map[string]any{"url": url}))
	require.NoError(t, err)

	assert.False(t, result.Completed)
	assert.NotEmpty(t, result.Err)
}

func TestWebhookProcessor_MissingURL(t *testing.T) {
	p := newTestWebhookProcessor()
	_, err := p.Process(context.Background(), newWebhookInput(nil))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestWebhookProcessor_InvalidURLScheme(t *testing.T) {
	p := newTestWebhookProcessor()
	_, err := p.Process(context.Background(), newWebhookInput(map[string]any{"url": "ftp://example.com"}))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestWebhookProcessor_InterpolatedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/ord-7", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := newTestWebhookProcessor()
	result, err := p.Process(context.Background(), newWebhookInput(map[string]any{
		"url":    server.URL + "/orders/${{data.order_id}}",
		"method": "put",
	}))
	require.NoError(t, err)
	assert.True(t, result.Completed)
}
