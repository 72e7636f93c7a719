package models

import (
	"strings"
	"time"
)

// ExportFormat is a CAD file format an export job can target
type ExportFormat string

const (
	FormatSTEP ExportFormat = "STEP"
	FormatIGES ExportFormat = "IGES"
	FormatSTL  ExportFormat = "STL"
	FormatDXF  ExportFormat = "DXF"
)

// ExportFormats lists the accepted formats
var ExportFormats = []ExportFormat{FormatSTEP, FormatIGES, FormatSTL, FormatDXF}

// ParseExportFormat normalises a format name; ok is false for unknown formats
func ParseExportFormat(s string) (ExportFormat, bool) {
	f := ExportFormat(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range ExportFormats {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// ExportStatus represents the state of an export job
type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
	ExportFailed     ExportStatus = "failed"
)

// IsValid returns true for a known status
func (s ExportStatus) IsValid() bool {
	switch s {
	case ExportPending, ExportProcessing, ExportCompleted, ExportFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the job will not change again
func (s ExportStatus) IsTerminal() bool {
	return s == ExportCompleted || s == ExportFailed
}

// Export is a CAD export job for a configuration
type Export struct {
	ID              int64        `json:"id"`
	ConfigurationID int64        `json:"configuration_id"`
	Format          ExportFormat `json:"format"`
	Status          ExportStatus `json:"status"`
	FilePath        string       `json:"file_path,omitempty"`
	JobID           string       `json:"job_id,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// CreateExportRequest is the body of an export create call
type CreateExportRequest struct {
	ConfigurationID int64  `json:"configuration_id"`
	Format          string `json:"format"`
}

// UpdateExportRequest is sent by the CAD worker to report progress
type UpdateExportRequest struct {
	Status       *ExportStatus `json:"status,omitempty"`
	FilePath     *string       `json:"file_path,omitempty"`
	JobID        *string       `json:"job_id,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
}

// Apply copies the set fields of the request onto e
func (u *UpdateExportRequest) Apply(e *Export) {
	if u.Status != nil {
		e.Status = *u.Status
	}
	if u.FilePath != nil {
		e.FilePath = *u.FilePath
	}
	if u.JobID != nil {
		e.JobID = *u.JobID
	}
	if u.ErrorMessage != nil {
		e.ErrorMessage = *u.ErrorMessage
	}
}

// ExportJob is the message handed to the external CAD worker
type ExportJob struct {
	JobID         string            `json:"job_id"`
	ExportID      int64             `json:"export_id"`
	Format        ExportFormat      `json:"format"`
	Configuration *Configuration    `json:"configuration"`
	CallbackURL   string            `json:"callback_url,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
}
