package engine

import "time"

// Priorities assigned to tasks when the node config does not set one.
const (
	DefaultTaskPriority     = "medium"
	DefaultApprovalPriority = "high"
)

// DefaultAssignmentType is used when a task node does not set one.
const DefaultAssignmentType = "user"

// DefaultMaxStepsPerRun bounds the advancement loop of a single
// ProcessWorkflowInstance call. A definition that chains more completed
// steps than this without suspending or terminating is considered stalled.
const DefaultMaxStepsPerRun = 100

const (
	defaultWebhookTimeout  = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultCacheTTL        = 5 * time.Minute
)

// Config holds the execution service's tunables. The zero value is usable;
// NewService fills in defaults.
type Config struct {
	MaxStepsPerRun          int           // advancement loop bound per invocation
	DefaultTaskPriority     string        // task nodes without a priority config
	DefaultApprovalPriority string        // approval nodes without a priority config
	DefaultAssignmentType   string        // task/approval nodes without an assignment_type config
	WebhookTimeout          time.Duration // per-call timeout for webhook requests
	MaxWebhookResponseBody  int64         // response body read limit
	DefinitionCacheTTL      time.Duration // read-through definition cache TTL
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxStepsPerRun:          DefaultMaxStepsPerRun,
		DefaultTaskPriority:     DefaultTaskPriority,
		DefaultApprovalPriority: DefaultApprovalPriority,
		DefaultAssignmentType:   DefaultAssignmentType,
		WebhookTimeout:          defaultWebhookTimeout,
		MaxWebhookResponseBody:  defaultMaxResponseBody,
		DefinitionCacheTTL:      defaultCacheTTL,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxStepsPerRun <= 0 {
		c.MaxStepsPerRun = d.MaxStepsPerRun
	}
	if c.DefaultTaskPriority == "" {
		c.DefaultTaskPriority = d.DefaultTaskPriority
	}
	if c.DefaultApprovalPriority == "" {
		c.DefaultApprovalPriority = d.DefaultApprovalPriority
	}
	if c.DefaultAssignmentType == "" {
		c.DefaultAssignmentType = d.DefaultAssignmentType
	}
	if c.WebhookTimeout <= 0 {
		c.WebhookTimeout = d.WebhookTimeout
	}
	if c.MaxWebhookResponseBody <= 0 {
		c.MaxWebhookResponseBody = d.MaxWebhookResponseBody
	}
	if c.DefinitionCacheTTL <= 0 {
		c.DefinitionCacheTTL = d.DefinitionCacheTTL
	}
	return c
}
