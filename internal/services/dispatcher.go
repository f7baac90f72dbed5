package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/rhyzero/file-organizer/internal/models"
)

// Dispatcher hands a batch run to an external orchestrator and returns its execution id.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.BatchRequest) (string, error)
}

// ExecutionCreator is the slice of the Workflows executions client the dispatcher uses.
type ExecutionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowDispatcherConfig names the workflow that runs batch reconciliation.
type WorkflowDispatcherConfig struct {
	ProjectID        string
	WorkflowLocation string
	WorkflowID       string
}

// WorkflowDispatcher starts a Cloud Workflows execution per batch request.
type WorkflowDispatcher struct {
	config WorkflowDispatcherConfig
	client ExecutionCreator
	logger *slog.Logger
}

// NewWorkflowDispatcher opens an executions client for the configured workflow.
func NewWorkflowDispatcher(ctx context.Context, cfg WorkflowDispatcherConfig, logger *slog.Logger) (*WorkflowDispatcher, *executions.Client, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create workflows executions client: %w", err)
	}
	return newWorkflowDispatcher(cfg, client, logger), client, nil
}

func newWorkflowDispatcher(cfg WorkflowDispatcherConfig, client ExecutionCreator, logger *slog.Logger) *WorkflowDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowDispatcher{config: cfg, client: client, logger: logger}
}

// Dispatch creates the execution with the request as its JSON argument.
func (d *WorkflowDispatcher) Dispatch(ctx context.Context, req models.BatchRequest) (string, error) {
	logCtx := d.logger.With("workflowId", d.config.WorkflowID, "mode", req.Mode)
	logCtx.Info("Triggering workflow.")

	payloadBytes, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := d.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", d.config.ProjectID, d.config.WorkflowLocation, d.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	})
	if err != nil {
		logCtx.Error("Failed to trigger workflow execution.", "error", err)
		return "", fmt.Errorf("%w: failed to trigger workflow execution: %w", models.ErrExternalService, err)
	}
	logCtx.Info("Workflow execution started.", "executionId", exec.GetName())
	return exec.GetName(), nil
}
