package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DataSourcingInput is the DataSourcingWorkflow's argument (spec §4.5.1-4.5.2).
type DataSourcingInput struct {
	Schema string
}

// DataSourcingOutput is the DataSourcingWorkflow's result.
type DataSourcingOutput struct {
	TablesDiscovered int
	EntitiesFound    int
	PrimaryDomain    string
}

// DataSourcingWorkflow runs metadata discovery followed by semantic
// enrichment as two independently-retried Temporal activities (spec §4.B:
// "long-running data_sourcing... runs as a Temporal workflow... with each
// pipeline stage as a Temporal activity").
func DataSourcingWorkflow(ctx workflow.Context, input DataSourcingInput) (*DataSourcingOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting data sourcing workflow", "schema", input.Schema)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Activities struct wrapper, left nil: ExecuteActivity only needs the
	// method value to resolve the registered activity name.
	var activities *Activities

	var discover *DiscoverResult
	if err := workflow.ExecuteActivity(ctx, activities.DiscoverMetadataActivity, input.Schema).Get(ctx, &discover); err != nil {
		return nil, fmt.Errorf("discover metadata activity: %w", err)
	}
	if !discover.Success {
		return nil, fmt.Errorf("metadata discovery failed: %s", discover.Error)
	}

	var enriched *EnrichResult
	if err := workflow.ExecuteActivity(ctx, activities.EnrichMetadataActivity, discover.Metadata).Get(ctx, &enriched); err != nil {
		return nil, fmt.Errorf("enrich metadata activity: %w", err)
	}
	if !enriched.Success {
		return nil, fmt.Errorf("semantic enrichment failed: %s", enriched.Error)
	}

	logger.Info("data sourcing workflow completed",
		"tables", discover.TablesDiscovered,
		"entities", len(enriched.Semantic.BusinessEntities),
	)

	return &DataSourcingOutput{
		TablesDiscovered: discover.TablesDiscovered,
		EntitiesFound:    len(enriched.Semantic.BusinessEntities),
		PrimaryDomain:    enriched.Semantic.DomainClassification.PrimaryDomain,
	}, nil
}
