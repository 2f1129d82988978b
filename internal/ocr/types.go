package ocr

import "time"

// FileMetadata describes the file being uploaded when creating a session
type FileMetadata struct {
	Name        string `json:"filename"`
	Size        int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

// UploadSession is the server-issued resumable upload session.
// Chunks must be sent strictly in index order 0..MaxChunks-1.
type UploadSession struct {
	UploadID  string    `json:"uploadId"`
	ChunkSize int64     `json:"chunkSize"`
	MaxChunks int       `json:"maxChunks"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer usable
func (s *UploadSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ChunkResult is the server response to a single chunk upload
type ChunkResult struct {
	Success        bool `json:"success"`
	ReceivedChunks int  `json:"receivedChunks"`
	TotalChunks    int  `json:"totalChunks"`
	Complete       bool `json:"complete"`
}

// JobStatus is the lifecycle status of a server-side processing job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status ends the polling loop
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Stage is a named server-side sub-phase surfaced for progress display
type Stage string

const (
	StageUploadingChunks Stage = "uploading_chunks"
	StageExtractingText  Stage = "extracting_text"
	StageClassifyingData Stage = "classifying_data"
	StageFinalizing      Stage = "finalizing"
)

// Job is a snapshot of a server-side OCR+classification job.
// Progress is 0-100 and monotonic while the job is active; the job is
// immutable once it reaches a terminal status.
type Job struct {
	JobID            string    `json:"jobId"`
	Status           JobStatus `json:"status"`
	Progress         int       `json:"progress"`
	Stage            Stage     `json:"stage,omitempty"`
	StageDescription string    `json:"stageDescription,omitempty"`
	ExtractedText    string    `json:"extractedText,omitempty"` // populated once text extraction has finished
	Result           *Result   `json:"result,omitempty"`
	Error            *JobError `json:"error,omitempty"`
}

// Result carries the extracted and classified receipt data
type Result struct {
	ExtractedText   string             `json:"extractedText"`
	Date            string             `json:"date"`
	Type            string             `json:"type"`
	Amount          float64            `json:"amount"`
	Vehicle         string             `json:"vehicle"`
	Vendor          string             `json:"vendor"`
	Location        string             `json:"location"`
	Confidence      float64            `json:"confidence,omitempty"`
	FieldConfidence map[string]float64 `json:"fieldConfidence,omitempty"`
}

// JobError is the structured error body attached to a failed job
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// CancelResult is the server response to a job cancel request
type CancelResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// apiError is the error body shape returned by the OCR service
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
