package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressFunc reports bytes uploaded so far against the total file size
type ProgressFunc func(sent, total int64)

// UploadClient creates resumable upload sessions and transmits files in
// ordered byte-range chunks
type UploadClient struct {
	transport          *transport
	chunkRetryAttempts int
	logger             *zap.Logger
}

// NewUploadClient creates a new upload client
func NewUploadClient(cfg Config, logger *zap.Logger) *UploadClient {
	attempts := cfg.ChunkRetryAttempts
	if attempts < 1 {
		attempts = 2
	}
	return &UploadClient{
		transport:          newTransport(cfg, logger),
		chunkRetryAttempts: attempts,
		logger:             logger,
	}
}

// CreateSession asks the server for a resumable upload session
func (c *UploadClient) CreateSession(ctx context.Context, meta FileMetadata) (*UploadSession, error) {
	if meta.Name == "" {
		return nil, NewValidationError("MISSING_FILENAME", "file name is required")
	}
	if meta.Size <= 0 {
		return nil, NewValidationError("MISSING_FILE_SIZE", "file size is required")
	}
	if meta.ContentType == "" {
		return nil, NewValidationError("MISSING_CONTENT_TYPE", "content type is required")
	}

	correlationID := uuid.NewString()

	var session UploadSession
	if err := c.transport.doJSON(ctx, http.MethodPost, "/upload/session", meta, &session, correlationID, c.transport.retry.MaxAttempts); err != nil {
		return nil, err
	}

	c.logger.Info("Upload session created",
		zap.String("upload_id", session.UploadID),
		zap.String("correlation_id", correlationID),
		zap.Int64("chunk_size", session.ChunkSize),
		zap.Int("max_chunks", session.MaxChunks))

	return &session, nil
}

// UploadChunks reads the file in chunkSize windows and transmits them
// strictly sequentially; the server reassembles chunks in order. Each chunk
// call is retried independently with backoff. Progress is reported as
// bytes-uploaded over total file size so the final partial chunk is
// represented accurately. The loop ends early when the server reports the
// upload complete.
func (c *UploadClient) UploadChunks(ctx context.Context, filePath string, session *UploadSession, onProgress ProgressFunc) (*ChunkResult, error) {
	if session.Expired(time.Now()) {
		return nil, NewValidationError("SESSION_EXPIRED", fmt.Sprintf("upload session %s expired at %s", session.UploadID, session.ExpiresAt.Format(time.RFC3339)))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, NewValidationError("FILE_UNREADABLE", fmt.Sprintf("cannot open %s: %v", filePath, err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, NewValidationError("FILE_UNREADABLE", fmt.Sprintf("cannot stat %s: %v", filePath, err))
	}
	totalSize := info.Size()

	correlationID := uuid.NewString()
	buf := make([]byte, session.ChunkSize)

	var sent int64
	var last *ChunkResult
	for index := 0; index < session.MaxChunks; index++ {
		// Cooperative cancellation point before each chunk
		if err := ctx.Err(); err != nil {
			return nil, NewCancelledError(fmt.Sprintf("upload cancelled before chunk %d", index))
		}

		n, err := io.ReadFull(file, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, &Error{Kind: KindUnknown, Code: "READ_FAILED", Message: err.Error(), CorrelationID: correlationID, Retryable: false, cause: err}
		}

		result, upErr := c.uploadChunk(ctx, session, index, buf[:n], correlationID)
		if upErr != nil {
			return nil, upErr
		}
		last = result

		sent += int64(n)
		if onProgress != nil {
			onProgress(sent, totalSize)
		}

		c.logger.Debug("Chunk uploaded",
			zap.String("upload_id", session.UploadID),
			zap.Int("chunk_index", index),
			zap.Int64("bytes_sent", sent),
			zap.Int64("total_bytes", totalSize))

		// Server completion is authoritative over the local chunk count
		if result.Complete {
			break
		}
	}

	if last == nil {
		return nil, NewValidationError("EMPTY_FILE", fmt.Sprintf("no chunks read from %s", filePath))
	}

	c.logger.Info("Upload finished",
		zap.String("upload_id", session.UploadID),
		zap.String("correlation_id", correlationID),
		zap.Int("received_chunks", last.ReceivedChunks),
		zap.Int64("bytes_sent", sent))

	return last, nil
}

// uploadChunk sends one chunk as a multipart request with per-chunk retry
func (c *UploadClient) uploadChunk(ctx context.Context, session *UploadSession, index int, chunk []byte, correlationID string) (*ChunkResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	_ = writer.WriteField("uploadId", session.UploadID)
	_ = writer.WriteField("chunkIndex", strconv.Itoa(index))
	_ = writer.WriteField("totalChunks", strconv.Itoa(session.MaxChunks))

	part, err := writer.CreateFormFile("chunk", fmt.Sprintf("chunk_%d", index))
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Code: "ENCODE_FAILED", Message: err.Error(), CorrelationID: correlationID, Retryable: false, cause: err}
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, &Error{Kind: KindUnknown, Code: "ENCODE_FAILED", Message: err.Error(), CorrelationID: correlationID, Retryable: false, cause: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Kind: KindUnknown, Code: "ENCODE_FAILED", Message: err.Error(), CorrelationID: correlationID, Retryable: false, cause: err}
	}

	var result ChunkResult
	if err := c.transport.do(ctx, http.MethodPost, "/upload/chunk", writer.FormDataContentType(), body.Bytes(), &result, correlationID, c.chunkRetryAttempts); err != nil {
		return nil, err
	}

	return &result, nil
}
