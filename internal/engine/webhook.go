package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/procflow/procflow/internal/expressions"
	"github.com/procflow/procflow/pkg/schema"
)

// WebhookProcessor handles webhook nodes: an outbound HTTP call whose JSON
// body carries the instance ID, step ID, instance data, and any custom
// payload from the node config. A transport error or non-2xx response is a
// recoverable failure: the instance stalls at the step so a later
// re-invocation retries the call. A 2xx response completes the step with
// the parsed response body as result data.
type WebhookProcessor struct {
	client *http.Client
	interp *expressions.Interpolator
	jq     *expressions.GoJQEngine
	config Config
}

// NewWebhookProcessor creates the webhook-node processor.
func NewWebhookProcessor(interp *expressions.Interpolator, jq *expressions.GoJQEngine, cfg Config) *WebhookProcessor {
	cfg = cfg.withDefaults()
	return &WebhookProcessor{
		client: &http.Client{Timeout: cfg.WebhookTimeout},
		interp: interp,
		jq:     jq,
		config: cfg,
	}
}

func (p *WebhookProcessor) Type() schema.StepType { return schema.StepTypeWebhook }

func (p *WebhookProcessor) Process(ctx context.Context, input *Input) (*Result, error) {
	config := input.Node.Data.Config

	rawURL := stringParam(config, "url", "")
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "webhook node has no url configured").
			WithStep(input.Node.ID)
	}
	rawURL, err := p.interp.ResolveString(rawURL, input.Scope)
	if err != nil {
		return nil, err
	}
	if u, err := url.ParseRequestURI(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "webhook node has invalid url %q", rawURL).
			WithStep(input.Node.ID)
	}

	method := strings.ToUpper(stringParam(config, "method", http.MethodPost))

	body, err := p.buildBody(input)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "build webhook request").WithCause(err).
			WithStep(input.Node.ID)
	}
	req.Header.Set("Content-Type", "application/json")

	for key, raw := range mapParam(config, "headers") {
		val := fmt.Sprintf("%v", raw)
		if resolved, err := p.interp.ResolveString(val, input.Scope); err == nil {
			val = resolved
		}
		req.Header.Set(key, val)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Network failure: stall, do not fail the instance.
		return &Result{Completed: false, Err: fmt.Sprintf("webhook request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxWebhookResponseBody))
	if err != nil {
		return &Result{Completed: false, Err: fmt.Sprintf("read webhook response: %v", err)}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Result{
			Completed: false,
			Err:       fmt.Sprintf("webhook returned status %d", resp.StatusCode),
		}, nil
	}

	parsed := parseBody(respBody)

	// Optional jq transform of the response body.
	if prog := stringParam(config, "result_jq", ""); prog != "" {
		transformed, err := p.jq.Evaluate(ctx, prog, map[string]any{"body": parsed})
		if err != nil {
			return nil, err
		}
		parsed = transformed
	}

	return &Result{
		Completed: true,
		Data: map[string]any{
			"status_code": resp.StatusCode,
			"body":        parsed,
		},
	}, nil
}

// buildBody assembles the outbound JSON body. Custom payload entries are
// interpolated against the instance scope, then merged over the standard
// fields.
func (p *WebhookProcessor) buildBody(input *Input) ([]byte, error) {
	body := map[string]any{
		"workflowInstanceId": input.Instance.ID,
		"stepId":             input.Node.ID,
		"data":               input.Instance.Data,
	}

	if payload := mapParam(input.Node.Data.Config, "payload"); payload != nil {
		resolved, err := p.interp.ResolveValue(payload, input.Scope)
		if err != nil {
			return nil, err
		}
		for k, v := range resolved.(map[string]any) {
			body[k] = v
		}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "marshal webhook body").WithCause(err).
			WithStep(input.Node.ID)
	}
	return b, nil
}

// parseBody decodes a JSON response body, falling back to the raw string.
func parseBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw)
	}
	return parsed
}

var _ Processor = (*WebhookProcessor)(nil)
