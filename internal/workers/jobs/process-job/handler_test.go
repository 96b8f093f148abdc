package processjob

import (
	"context"
	"encoding/json"
	"testing"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &Input{JobRequest: models.JobRequest{
		JobID:   "job-1",
		JobType: "resize",
		Payload: map[string]interface{}{"width": 100},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Job processed successfully", out.Message)
}

func TestDefinition_RunName(t *testing.T) {
	reg := orchestrator.NewRegistry()
	def := Definition()
	require.NoError(t, reg.Register(def))

	params, _ := json.Marshal(Input{JobRequest: models.JobRequest{JobID: "job-9", JobType: "x"}})
	assert.Equal(t, "process-job-job-9", def.RunName("5f0c7e8a-0000", params))
}
