package models

// JobRequest is the body of POST /job in the jobs demo.
type JobRequest struct {
	JobID   string                 `json:"job_id" validate:"required"`
	JobType string                 `json:"job_type" validate:"required"`
	Payload map[string]interface{} `json:"payload"`
}

// JobStatus is returned by GET /job/{id}.
type JobStatus struct {
	JobID     string `json:"job_id"`
	TaskRunID string `json:"task_run_id"`
	State     string `json:"state"`
}
