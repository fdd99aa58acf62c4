package models

import "time"

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus tracks asynchronous report generation.
type ReportStatus string

const (
	ReportStatusQueued   ReportStatus = "QUEUED"
	ReportStatusRunning  ReportStatus = "RUNNING"
	ReportStatusFinished ReportStatus = "FINISHED"
	ReportStatusFailed   ReportStatus = "FAILED"
)

// CreateReportRequest asks for an asynchronous export of one session.
type CreateReportRequest struct {
	SessionID string       `json:"session_id" validate:"required"`
	Format    ReportFormat `json:"format" validate:"required"`
}

// ReportJobResponse acknowledges an accepted report job.
type ReportJobResponse struct {
	ID       string       `json:"id"`
	Status   ReportStatus `json:"status"`
	Progress int          `json:"progress"`
}

// ReportStatusResponse describes a job's current progress.
type ReportStatusResponse struct {
	ID        string       `json:"id"`
	Status    ReportStatus `json:"status"`
	Progress  int          `json:"progress"`
	ResultURL *string      `json:"result_url,omitempty"`
	Error     *string      `json:"error,omitempty"`
}

// ReportJob represents one queued session report export.
type ReportJob struct {
	ID           string       `db:"id" json:"id"`
	SessionID    string       `db:"session_id" json:"session_id"`
	Format       ReportFormat `db:"format" json:"format"`
	Status       ReportStatus `db:"status" json:"status"`
	Progress     int          `db:"progress" json:"progress"`
	ResultURL    *string      `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
