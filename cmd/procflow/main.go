package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/procflow/procflow/internal/audit"
	"github.com/procflow/procflow/internal/engine"
	"github.com/procflow/procflow/internal/expressions"
	"github.com/procflow/procflow/internal/logging"
	"github.com/procflow/procflow/internal/notify"
	"github.com/procflow/procflow/internal/store"
	"github.com/procflow/procflow/internal/tasks"
	"github.com/procflow/procflow/internal/validation"
	"github.com/procflow/procflow/pkg/schema"
)

const usage = `procflow - workflow execution engine

Usage:
  procflow validate <definition.json>   check a workflow definition
  procflow run <definition.json>        register and execute a workflow
  procflow resume <instance-id>         re-process a parked instance
  procflow serve                        run until interrupted
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "procflow:", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg := loadConfig()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if command == "validate" {
		// Validation needs no store.
		if len(args) != 1 {
			return fmt.Errorf("usage: procflow validate <definition.json>")
		}
		return validateCommand(args[0])
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	svc, err := buildService(st, cfg, logger)
	if err != nil {
		return err
	}

	switch command {
	case "run":
		if len(args) != 1 {
			return fmt.Errorf("usage: procflow run <definition.json>")
		}
		return runCommand(ctx, svc, args[0])
	case "resume":
		if len(args) != 1 {
			return fmt.Errorf("usage: procflow resume <instance-id>")
		}
		return resumeCommand(ctx, svc, args[0])
	case "serve":
		logger.Info("procflow engine ready", "db_path", cfg.DBPath)
		<-ctx.Done()
		logger.Info("procflow engine stopping")
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func validateCommand(path string) error {
	def, err := readDefinition(path)
	if err != nil {
		return err
	}
	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return fmt.Errorf("init validator: %w", err)
	}
	result := validator.Validate(def)
	for _, issue := range result.Errors {
		fmt.Printf("%s %s: %s\n", issue.Severity, issue.Path, issue.Message)
	}
	for _, issue := range result.Warnings {
		fmt.Printf("%s %s: %s\n", issue.Severity, issue.Path, issue.Message)
	}
	if !result.Valid() {
		return fmt.Errorf("definition %s is invalid", def.ID)
	}
	fmt.Printf("definition %s is valid (%d nodes)\n", def.ID, len(def.Nodes))
	return nil
}

func runCommand(ctx context.Context, svc *engine.Service, path string) error {
	def, err := readDefinition(path)
	if err != nil {
		return err
	}
	if err := svc.CreateWorkflowDefinition(ctx, def); err != nil {
		return err
	}
	inst, err := svc.ExecuteWorkflow(ctx, def.OrganizationID, "cli", &schema.ExecuteWorkflowRequest{
		WorkflowID: def.ID,
	})
	if inst != nil {
		printInstance(inst)
	}
	return err
}

func resumeCommand(ctx context.Context, svc *engine.Service, instanceID string) error {
	inst, err := svc.ProcessWorkflowInstance(ctx, instanceID)
	if inst != nil {
		printInstance(inst)
	}
	return err
}

func readDefinition(path string) (*schema.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	return &def, nil
}

func printInstance(inst *store.Instance) {
	out, _ := json.MarshalIndent(inst, "", "  ")
	fmt.Println(string(out))
}

func buildService(st store.Store, cfg Config, logger *slog.Logger) (*engine.Service, error) {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("init cel engine: %w", err)
	}
	exprEngine := expressions.NewExprEngine()
	jq := expressions.NewGoJQEngine()
	interp := expressions.NewInterpolator()

	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}

	auditor := audit.NewStoreService(st)
	taskSvc := tasks.NewStoreService(st)
	notifier := notify.NewLogService(logger)

	engineCfg := engine.DefaultConfig()
	if cfg.MaxStepsPerRun > 0 {
		engineCfg.MaxStepsPerRun = cfg.MaxStepsPerRun
	}

	resolver, err := engine.NewResolver(
		engine.NewStartProcessor(),
		engine.NewTaskProcessor(taskSvc, engineCfg, logger),
		engine.NewApprovalProcessor(taskSvc, engineCfg, logger),
		engine.NewConditionProcessor(cel, exprEngine),
		engine.NewNotificationProcessor(notifier, interp, logger),
		engine.NewWebhookProcessor(interp, jq, engineCfg),
		engine.NewEndProcessor(),
	)
	if err != nil {
		return nil, fmt.Errorf("build processor table: %w", err)
	}

	fsm := engine.NewLifecycleFSM(auditor)

	return engine.NewService(st, resolver, fsm, auditor, validator, engineCfg, logger), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	})
	return slog.New(logging.NewCorrelationHandler(handler))
}
