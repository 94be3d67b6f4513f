// Package workflow implements the Temporal-backed execution of
// DataSourcingWorkflow.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

const taskQueue = "cogmem-sourcing-task-queue"

// Engine manages Temporal workflow execution for data sourcing runs.
type Engine struct {
	logger       *zap.SugaredLogger
	temporalHost string
	client       *TemporalClient
}

// NewEngine creates a new workflow engine.
func NewEngine(temporalHost string, logger *zap.SugaredLogger) (*Engine, error) {
	tc, err := NewTemporalClient(temporalHost, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		logger:       logger,
		temporalHost: temporalHost,
		client:       tc,
	}, nil
}

// SourcingExecution represents a running or completed data sourcing workflow.
type SourcingExecution struct {
	RunID       string     `json:"run_id"`
	WorkflowID  string     `json:"workflow_id"`
	Schema      string     `json:"schema"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StartDataSourcing starts a DataSourcingWorkflow run for the given schema.
func (e *Engine) StartDataSourcing(ctx context.Context, schema string) (*SourcingExecution, error) {
	workflowID := fmt.Sprintf("data-sourcing-%s-%d", schema, time.Now().UnixNano())

	e.logger.Infow("starting data sourcing workflow", "workflow_id", workflowID, "schema", schema)

	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: taskQueue,
	}

	we, err := e.client.ExecuteWorkflow(ctx, options, DataSourcingWorkflow, DataSourcingInput{Schema: schema})
	if err != nil {
		return nil, fmt.Errorf("failed to start data sourcing workflow: %w", err)
	}

	e.logger.Infow("started data sourcing workflow", "workflow_id", workflowID, "run_id", we.GetRunID())

	return &SourcingExecution{
		RunID:      we.GetRunID(),
		WorkflowID: workflowID,
		Schema:     schema,
		StartedAt:  time.Now(),
	}, nil
}

// AwaitDataSourcing blocks until the named workflow run completes and
// returns its result.
func (e *Engine) AwaitDataSourcing(ctx context.Context, workflowID, runID string) (*DataSourcingOutput, error) {
	we := e.client.GetWorkflow(ctx, workflowID, runID)

	var out DataSourcingOutput
	if err := we.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("data sourcing workflow failed: %w", err)
	}

	return &out, nil
}

// ListWorkflows returns open and recently closed data sourcing workflows.
func (e *Engine) ListWorkflows(ctx context.Context) ([]*SourcingExecution, error) {
	openResp, err := e.client.ListOpenWorkflow(ctx, &workflowservice.ListOpenWorkflowExecutionsRequest{
		Namespace: "default",
	})
	if err != nil {
		e.logger.Errorw("failed to list open workflows", "error", err)
		return nil, err
	}

	executions := []*SourcingExecution{}
	for _, exec := range openResp.Executions {
		executions = append(executions, &SourcingExecution{
			RunID:      exec.Execution.RunId,
			WorkflowID: exec.Execution.WorkflowId,
			StartedAt:  exec.StartTime.AsTime(),
		})
	}

	closedResp, err := e.client.ListClosedWorkflow(ctx, &workflowservice.ListClosedWorkflowExecutionsRequest{
		Namespace: "default",
	})
	if err == nil {
		for _, exec := range closedResp.Executions {
			closedAt := exec.CloseTime.AsTime()
			executions = append(executions, &SourcingExecution{
				RunID:       exec.Execution.RunId,
				WorkflowID:  exec.Execution.WorkflowId,
				StartedAt:   exec.StartTime.AsTime(),
				CompletedAt: &closedAt,
			})
		}
	}

	return executions, nil
}

// CancelWorkflow cancels a running data sourcing workflow.
func (e *Engine) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	e.logger.Infow("cancelling data sourcing workflow", "workflow_id", workflowID, "run_id", runID)
	return e.client.TerminateWorkflow(ctx, workflowID, runID, "cancellation requested")
}
