// internal/workers/jobs/process-job/handler.go
package processjob

import (
	"context"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"
)

const TaskKey = "jobs.process_job"

type Input struct {
	JobRequest models.JobRequest `json:"job_request"`
}

type Output struct {
	Message string `json:"message"`
}

func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:          TaskKey,
		Description:  "Process a submitted job",
		NameTemplate: "process-job-{{.job_request.job_id}}",
	}
}

type Handler struct {
	logger logger.Logger
}

func NewHandler(log logger.Logger) *Handler {
	return &Handler{logger: log.WithFields(map[string]interface{}{"taskKey": TaskKey})}
}

func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	h.logger.Info("Processing job", map[string]interface{}{
		"jobId":   input.JobRequest.JobID,
		"jobType": input.JobRequest.JobType,
		"payload": input.JobRequest.Payload,
	})
	return &Output{Message: "Job processed successfully"}, nil
}
