package models

import (
	"time"

	"mailaudit/internal/lookup"
)

// ValidationDetails holds one explanation per pipeline stage. A stage that
// never ran is left empty.
type ValidationDetails struct {
	Syntax     string `json:"syntax,omitempty"`
	DNS        string `json:"dns,omitempty"`
	Disposable string `json:"disposable,omitempty"`
	SMTP       string `json:"smtp,omitempty"`
}

type ValidationResult struct {
	Email         string            `json:"email"`
	IsValidSyntax bool              `json:"is_valid_syntax"`
	IsValidDNS    bool              `json:"is_valid_dns"`
	IsValidSMTP   bool              `json:"is_valid_smtp"`
	IsDisposable  bool              `json:"is_disposable"`
	MXRecords     []lookup.MXRecord `json:"mx_records"`
	Message       string            `json:"message"`
	Details       ValidationDetails `json:"details"`
}

// ValidationRecord is a stored ValidationResult with its audit fields.
type ValidationRecord struct {
	ID        int64     `json:"id"`
	ClientIP  string    `json:"client_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ValidationResult
}

type ValidationStats struct {
	TotalValidations int64   `json:"total_validations"`
	ValidEmails      int64   `json:"valid_emails"`
	InvalidEmails    int64   `json:"invalid_emails"`
	DisposableEmails int64   `json:"disposable_emails"`
	SuccessRate      float64 `json:"success_rate"`
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
)

// Job tracks one bulk validation upload.
type Job struct {
	ID             string     `json:"id"`
	Status         JobStatus  `json:"status"`
	TotalCount     int        `json:"total_count"`
	ProcessedCount int        `json:"processed_count"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type JobResult struct {
	Email  string           `json:"email"`
	Result ValidationResult `json:"result"`
}
