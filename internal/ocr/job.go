package ocr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobProgressFunc receives each non-terminal job snapshot observed while polling
type JobProgressFunc func(job *Job)

// JobClient starts server-side processing jobs and polls them to completion
type JobClient struct {
	transport       *transport
	pollInterval    time.Duration
	maxPollAttempts int
	logger          *zap.Logger
}

// NewJobClient creates a new job client
func NewJobClient(cfg Config, logger *zap.Logger) *JobClient {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	attempts := cfg.MaxPollAttempts
	if attempts <= 0 {
		attempts = 60
	}
	return &JobClient{
		transport:       newTransport(cfg, logger),
		pollInterval:    interval,
		maxPollAttempts: attempts,
		logger:          logger,
	}
}

// StartProcessing starts a processing job from a completed upload
func (c *JobClient) StartProcessing(ctx context.Context, uploadID string) (*Job, error) {
	if uploadID == "" {
		return nil, NewValidationError("MISSING_UPLOAD_ID", "upload id is required")
	}

	correlationID := uuid.NewString()

	var job Job
	body := map[string]string{"uploadId": uploadID}
	if err := c.transport.doJSON(ctx, http.MethodPost, "/process", body, &job, correlationID, c.transport.retry.MaxAttempts); err != nil {
		return nil, err
	}

	c.logger.Info("Processing job started",
		zap.String("job_id", job.JobID),
		zap.String("upload_id", uploadID),
		zap.String("correlation_id", correlationID),
		zap.String("status", string(job.Status)))

	return &job, nil
}

// GetStatus fetches the current job status in a single request, no retry loop
func (c *JobClient) GetStatus(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, NewValidationError("MISSING_JOB_ID", "job id is required")
	}

	correlationID := uuid.NewString()

	var job Job
	if err := c.transport.doJSON(ctx, http.MethodGet, "/status/"+jobID, nil, &job, correlationID, 1); err != nil {
		return nil, err
	}
	return &job, nil
}

// PollStatus polls the job at a fixed interval until it reaches a terminal
// status. Polling is bounded, not indefinite: exceeding the attempt bound
// raises a retryable timeout. Cancellation is checked before and after each
// network call; polls for one job are strictly sequential.
func (c *JobClient) PollStatus(ctx context.Context, jobID string, onProgress JobProgressFunc) (*Job, error) {
	if jobID == "" {
		return nil, NewValidationError("MISSING_JOB_ID", "job id is required")
	}

	correlationID := uuid.NewString()

	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, NewCancelledError(fmt.Sprintf("poll cancelled for job %s", jobID))
		}

		var job Job
		if err := c.transport.doJSON(ctx, http.MethodGet, "/status/"+jobID, nil, &job, correlationID, 1); err != nil {
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, NewCancelledError(fmt.Sprintf("poll cancelled for job %s", jobID))
		}

		if job.Status.Terminal() {
			c.logger.Info("Job reached terminal status",
				zap.String("job_id", jobID),
				zap.String("correlation_id", correlationID),
				zap.String("status", string(job.Status)),
				zap.Int("polls", attempt))
			return &job, nil
		}

		if onProgress != nil {
			onProgress(&job)
		}

		if attempt < c.maxPollAttempts {
			select {
			case <-ctx.Done():
				return nil, NewCancelledError(fmt.Sprintf("poll cancelled for job %s", jobID))
			case <-time.After(c.pollInterval):
			}
		}
	}

	c.logger.Warn("Polling bound exceeded",
		zap.String("job_id", jobID),
		zap.String("correlation_id", correlationID),
		zap.Int("max_attempts", c.maxPollAttempts))

	return nil, NewTimeoutError(fmt.Sprintf("job %s did not complete within %d polls", jobID, c.maxPollAttempts))
}

// CancelJob issues a best-effort server-side cancel. It always reports
// success to the caller: user-perceived cancellation must never fail, even
// when the server call does.
func (c *JobClient) CancelJob(ctx context.Context, jobID string) {
	correlationID := uuid.NewString()

	var result CancelResult
	body := map[string]string{"jobId": jobID}
	if err := c.transport.doJSON(ctx, http.MethodPost, "/cancel", body, &result, correlationID, 1); err != nil {
		c.logger.Warn("Server-side cancel failed, treating as cancelled",
			zap.String("job_id", jobID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		return
	}

	c.logger.Info("Job cancelled",
		zap.String("job_id", jobID),
		zap.String("correlation_id", correlationID),
		zap.Bool("server_success", result.Success))
}
