package dto

import (
	"encoding/json"
	"time"

	"github.com/ndquoc/recon-be/internal/queue"
)

type CreateJobRequest struct {
	ToolID string         `json:"toolId" binding:"required"`
	Params map[string]any `json:"params"`
}

type ListJobsRequest struct {
	ToolID   string `form:"toolId"`
	Status   string `form:"status"`
	PageSize int    `form:"pageSize"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type JobDTO struct {
	JobID         string          `json:"jobId"`
	ToolID        string          `json:"toolId"`
	Params        json.RawMessage `json:"params"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
	StartedAt     string          `json:"startedAt,omitempty"`
	CompletedAt   string          `json:"completedAt,omitempty"`
}

// FromJob maps a queue.Job row to its wire shape.
func FromJob(job *queue.Job) JobDTO {
	dto := JobDTO{
		JobID:     job.JobID,
		ToolID:    job.ToolID,
		Params:    job.Params,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}
	if job.FailureReason.Valid {
		dto.FailureReason = job.FailureReason.String
	}
	if job.StartedAt.Valid {
		dto.StartedAt = job.StartedAt.Time.Format(time.RFC3339)
	}
	if job.CompletedAt.Valid {
		dto.CompletedAt = job.CompletedAt.Time.Format(time.RFC3339)
	}
	return dto
}

type ListResultsRequest struct {
	Type      string `form:"type"`
	TextMatch string `form:"q"`
	JobID     string `form:"jobId"`
	Limit     int    `form:"limit"`
}

type ExportRequest struct {
	Type      string `form:"type"`
	TextMatch string `form:"q"`
	JobID     string `form:"jobId"`
	Format    string `form:"format"`
	Limit     int    `form:"limit"`
}
