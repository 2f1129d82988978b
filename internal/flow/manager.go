package flow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-pipeline/internal/draft"
	"github.com/garyjia/receipt-pipeline/internal/machine"
	"github.com/garyjia/receipt-pipeline/internal/ocr"
	"github.com/garyjia/receipt-pipeline/internal/optimize"
	"github.com/garyjia/receipt-pipeline/internal/receipt"
)

// uploadWeight is the share of overall progress assigned to the upload
// stage; the remainder belongs to server-side processing
const uploadWeight = 30

// Sentinel errors returned by manager operations
var (
	ErrFlowNotFound  = errors.New("flow not found")
	ErrNoDraft       = errors.New("flow has no draft yet")
	ErrFlowArchived  = errors.New("flow is already completed or cancelled")
	ErrCannotCancel  = errors.New("flow cannot be cancelled in its current state")
	ErrNothingToSave = errors.New("flow has no classified data to save")
)

// Uploader is the slice of the upload client the manager drives
type Uploader interface {
	CreateSession(ctx context.Context, meta ocr.FileMetadata) (*ocr.UploadSession, error)
	UploadChunks(ctx context.Context, filePath string, session *ocr.UploadSession, onProgress ocr.ProgressFunc) (*ocr.ChunkResult, error)
}

// JobRunner is the slice of the job client the manager drives
type JobRunner interface {
	StartProcessing(ctx context.Context, uploadID string) (*ocr.Job, error)
	PollStatus(ctx context.Context, jobID string, onProgress ocr.JobProgressFunc) (*ocr.Job, error)
	CancelJob(ctx context.Context, jobID string)
}

// ImageOptimizer prepares a capture source for upload
type ImageOptimizer interface {
	Optimize(sourcePath string, onProgress optimize.ProgressFunc) (*optimize.Result, error)
}

// ReceiptSaver persists a finalized receipt
type ReceiptSaver interface {
	Save(ctx context.Context, rec *receipt.Receipt) (string, error)
}

// RecordStore persists flow records across restarts
type RecordStore interface {
	Put(record *Record) error
	List() ([]*Record, error)
	Delete(id string) error
}

// Config holds the manager's tunables
type Config struct {
	AutoAdvance bool          // move processing → review automatically when classification lands
	Retention   time.Duration // archived flows older than this are removed by CleanupHistory
}

// DefaultConfig returns the manager defaults
func DefaultConfig() Config {
	return Config{
		AutoAdvance: true,
		Retention:   24 * time.Hour,
	}
}

// flowState is the in-memory runtime of one flow: the persistable record
// plus everything that cannot survive a restart
type flowState struct {
	mu        sync.Mutex
	record    *Record
	machine   *machine.Machine
	draft     *draft.Draft
	optimized *optimize.Result
	session   *ocr.UploadSession
	jobID     string
}

// Manager is the sole owner of the flow-id to flow map. Every flow holds
// its own state machine and session, so concurrent flows never share
// state; the manager's lock guards only the map itself.
type Manager struct {
	mu    sync.Mutex
	flows map[string]*flowState

	cfg       Config
	optimizer ImageOptimizer
	uploader  Uploader
	jobs      JobRunner
	receipts  ReceiptSaver
	validator *draft.Validator
	store     RecordStore // optional, nil disables persistence
	logger    *zap.Logger
	now       func() time.Time

	// rootCtx parents every flow session. Flow lifetimes belong to the
	// manager, not to whichever request happened to create the flow, so
	// a session must survive the create handler returning.
	rootCtx context.Context
	stop    context.CancelFunc
}

// NewManager creates a flow manager. store may be nil when flows do not
// need to survive a restart.
func NewManager(cfg Config, optimizer ImageOptimizer, uploader Uploader, jobs JobRunner, receipts ReceiptSaver, validator *draft.Validator, store RecordStore, logger *zap.Logger) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	rootCtx, stop := context.WithCancel(context.Background())
	return &Manager{
		rootCtx:   rootCtx,
		stop:      stop,
		flows:     make(map[string]*flowState),
		cfg:       cfg,
		optimizer: optimizer,
		uploader:  uploader,
		jobs:      jobs,
		receipts:  receipts,
		validator: validator,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Close cancels every flow session owned by the manager
func (m *Manager) Close() {
	m.stop()
}

// CreateFlow registers a new flow for one captured image and returns its id.
// The caller's context gates only the creation itself; the flow's session is
// parented on the manager and outlives the call.
func (m *Manager) CreateFlow(ctx context.Context, imageRef string) (string, error) {
	if imageRef == "" {
		return "", fmt.Errorf("image reference is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	f := &flowState{
		record:  newRecord(id, imageRef, m.now()),
		machine: machine.New(m.rootCtx, imageRef, m.logger),
	}
	f.machine.Dispatch(machine.Event{Type: machine.EventCapture, Source: imageRef})

	m.mu.Lock()
	m.flows[id] = f
	m.mu.Unlock()

	m.persist(f)

	m.logger.Info("Flow created",
		zap.String("flow_id", id),
		zap.String("image_ref", imageRef))

	return id, nil
}

// Restore reloads persisted, non-archived flows after a restart. Restored
// flows reposition at their recorded step with a fresh state machine; an
// interrupted pipeline is re-run rather than resumed mid-transfer.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	records, err := m.store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to restore flows: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for _, record := range records {
		if record.archived() {
			continue
		}
		if _, exists := m.flows[record.ID]; exists {
			continue
		}
		f := &flowState{
			record:  record,
			machine: machine.New(m.rootCtx, record.ImageRef, m.logger),
		}
		f.machine.Dispatch(machine.Event{Type: machine.EventCapture, Source: record.ImageRef})
		m.flows[record.ID] = f
		restored++
	}

	if restored > 0 {
		m.logger.Info("Flows restored from store", zap.Int("count", restored))
	}
	return restored, nil
}

// FailureInfo summarizes the machine's error state for callers
type FailureInfo struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	CanRetry bool   `json:"canRetry"`
}

// Snapshot is a point-in-time, caller-safe view of one flow
type Snapshot struct {
	Record         *Record            `json:"record"`
	Phase          machine.Phase      `json:"phase"`
	PhaseProgress  int                `json:"phaseProgress"`
	Draft          *draft.Draft       `json:"draft,omitempty"`
	SessionMetrics map[string]float64 `json:"sessionMetrics"`
	Failure        *FailureInfo       `json:"failure,omitempty"`
}

// Get returns a snapshot of one flow
func (m *Manager) Get(flowID string) (*Snapshot, bool) {
	f, ok := m.lookup(flowID)
	if !ok {
		return nil, false
	}
	return m.snapshot(f), true
}

// List returns snapshots of every known flow, active and archived
func (m *Manager) List() []*Snapshot {
	m.mu.Lock()
	flows := make([]*flowState, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, f)
	}
	m.mu.Unlock()

	snapshots := make([]*Snapshot, 0, len(flows))
	for _, f := range flows {
		snapshots = append(snapshots, m.snapshot(f))
	}
	return snapshots
}

// NavigateToStep moves the flow to the target step. Backward navigation is
// always permitted; forward navigation must follow the step table and the
// target's data requirement must be satisfied.
func (m *Manager) NavigateToStep(flowID string, target Step) error {
	f, ok := m.lookup(flowID)
	if !ok {
		return ErrFlowNotFound
	}
	if !target.IsValid() {
		return fmt.Errorf("unknown step: %s", target)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.record.archived() {
		return ErrFlowArchived
	}

	current := f.record.CurrentStep
	if current == target {
		return nil
	}

	if !isBackward(current, target) {
		if !forwardAllowed(current, target) {
			return fmt.Errorf("cannot navigate from %s to %s", current, target)
		}
		if err := f.missingDataFor(target); err != nil {
			return err
		}
	}

	f.record.moveTo(target, m.now())
	if target == StepReport {
		f.record.Completed = true
	}
	m.persistLocked(f)

	m.logger.Info("Flow navigated",
		zap.String("flow_id", flowID),
		zap.String("from", current.String()),
		zap.String("to", target.String()))

	return nil
}

// missingDataFor reports why a forward move into target is not yet
// possible, or nil when its data requirement holds. Callers hold f.mu.
func (f *flowState) missingDataFor(target Step) error {
	switch target {
	case StepProcessing:
		if f.record.ImageRef == "" {
			return fmt.Errorf("cannot enter %s: no captured image", target)
		}
	case StepReview, StepVerification:
		if f.draft == nil {
			return fmt.Errorf("cannot enter %s: no classified data", target)
		}
	case StepReport:
		if f.record.ReceiptID == "" {
			return fmt.Errorf("cannot enter %s: receipt not saved", target)
		}
	}
	return nil
}

// ProcessCurrentImage runs the full pipeline for the flow's captured
// image: optimize, upload in chunks, start the server job and poll it to
// completion, then build the editable draft from the classification.
func (m *Manager) ProcessCurrentImage(ctx context.Context, flowID string) error {
	f, ok := m.lookup(flowID)
	if !ok {
		return ErrFlowNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	if f.record.archived() {
		f.mu.Unlock()
		return ErrFlowArchived
	}
	if f.record.CurrentStep == StepCapture {
		f.record.moveTo(StepProcessing, m.now())
	}
	f.mu.Unlock()
	m.persist(f)

	return m.drive(f)
}

// RetryProcessing resumes a failed pipeline from the exact state the error
// interrupted, under a fresh cancellation handle
func (m *Manager) RetryProcessing(flowID string) error {
	f, ok := m.lookup(flowID)
	if !ok {
		return ErrFlowNotFound
	}

	state := f.machine.State()
	if state.Phase != machine.PhaseError {
		return fmt.Errorf("flow %s is not in an error state", flowID)
	}
	if state.Failure == nil || !state.Failure.CanRetry {
		return fmt.Errorf("flow %s error is not retryable", flowID)
	}

	if !f.machine.Dispatch(machine.Event{Type: machine.EventRetry}) {
		return fmt.Errorf("flow %s retry was rejected", flowID)
	}

	m.logger.Info("Flow retrying",
		zap.String("flow_id", flowID),
		zap.Int("attempt", f.machine.Session().RetryCount()))

	return m.drive(f)
}

// drive advances the pipeline until it reaches review, fails, or is
// cancelled. The loop dispatches on the machine's phase so a retry that
// restored a mid-pipeline state resumes from that stage.
func (m *Manager) drive(f *flowState) error {
	ctx := f.machine.Session().Context()

	for {
		state := f.machine.State()
		switch state.Phase {
		case machine.PhaseCapturing:
			f.machine.Dispatch(machine.Event{Type: machine.EventStartOptimize})

		case machine.PhaseOptimizing:
			if err := m.runOptimize(ctx, f); err != nil {
				return m.failFlow(f, err)
			}

		case machine.PhaseUploading:
			if err := m.runUpload(ctx, f); err != nil {
				return m.failFlow(f, err)
			}

		case machine.PhaseProcessing, machine.PhaseExtracting, machine.PhaseClassifying:
			if err := m.runPoll(ctx, f); err != nil {
				return m.failFlow(f, err)
			}

		case machine.PhaseReviewing:
			if m.cfg.AutoAdvance {
				f.mu.Lock()
				if f.record.CurrentStep == StepProcessing {
					f.record.moveTo(StepReview, m.now())
				}
				f.mu.Unlock()
			}
			m.persist(f)
			return nil

		case machine.PhaseError:
			if state.Failure != nil {
				return fmt.Errorf("processing failed: %s", state.Failure.Message)
			}
			return fmt.Errorf("processing failed")

		case machine.PhaseIdle:
			return fmt.Errorf("flow was cancelled")

		default:
			return nil
		}
	}
}

// runOptimize optimizes the capture source and opens the upload session
func (m *Manager) runOptimize(ctx context.Context, f *flowState) error {
	if err := ctx.Err(); err != nil {
		return ocr.NewCancelledError("optimization cancelled")
	}

	result, err := m.optimizer.Optimize(f.record.ImageRef, func(progress int) {
		f.machine.Dispatch(machine.Event{Type: machine.EventOptimizeProgress, Progress: progress})
	})
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	f.mu.Lock()
	f.optimized = result
	f.mu.Unlock()

	session, err := m.uploader.CreateSession(ctx, ocr.FileMetadata{
		Name:        filepath.Base(result.Path),
		Size:        result.OptimizedSize,
		ContentType: "image/jpeg",
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.session = session
	f.mu.Unlock()

	f.machine.Dispatch(machine.Event{
		Type:          machine.EventUploadStarted,
		UploadID:      session.UploadID,
		OriginalSize:  result.OriginalSize,
		OptimizedSize: result.OptimizedSize,
	})
	return nil
}

// runUpload transmits the optimized file chunk by chunk and starts the
// processing job from the completed upload
func (m *Manager) runUpload(ctx context.Context, f *flowState) error {
	f.mu.Lock()
	optimized := f.optimized
	session := f.session
	f.mu.Unlock()

	if optimized == nil {
		return ocr.NewValidationError("NO_OPTIMIZED_IMAGE", "upload requested before optimization")
	}

	// A session lost to expiry is reopened transparently
	if session == nil || session.Expired(m.now()) {
		fresh, err := m.uploader.CreateSession(ctx, ocr.FileMetadata{
			Name:        filepath.Base(optimized.Path),
			Size:        optimized.OptimizedSize,
			ContentType: "image/jpeg",
		})
		if err != nil {
			return err
		}
		session = fresh
		f.mu.Lock()
		f.session = fresh
		f.mu.Unlock()
	}

	_, err := m.uploader.UploadChunks(ctx, optimized.Path, session, func(sent, total int64) {
		percent := int(sent * 100 / total)
		f.machine.Dispatch(machine.Event{Type: machine.EventUploadProgress, Progress: percent})
		m.setProgress(f, int(sent*int64(uploadWeight)/total))
	})
	if err != nil {
		return err
	}

	job, err := m.jobs.StartProcessing(ctx, session.UploadID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.jobID = job.JobID
	f.mu.Unlock()

	f.machine.Dispatch(machine.Event{Type: machine.EventProcessingStarted, JobID: job.JobID})
	m.setProgress(f, uploadWeight)
	return nil
}

// runPoll polls the processing job to completion, translating job stages
// into machine events, and builds the validated draft from the result
func (m *Manager) runPoll(ctx context.Context, f *flowState) error {
	f.mu.Lock()
	jobID := f.jobID
	f.mu.Unlock()

	if jobID == "" {
		return ocr.NewValidationError("NO_JOB", "polling requested before a job was started")
	}

	job, err := m.jobs.PollStatus(ctx, jobID, func(j *ocr.Job) {
		m.setProgress(f, uploadWeight+j.Progress*(100-uploadWeight)/100)

		switch j.Stage {
		case ocr.StageExtractingText:
			f.machine.Dispatch(machine.Event{Type: machine.EventExtractionStarted})
			f.machine.Dispatch(machine.Event{Type: machine.EventProcessProgress, Progress: j.Progress})
		case ocr.StageClassifyingData:
			f.machine.Dispatch(machine.Event{Type: machine.EventExtracted, ExtractedText: j.ExtractedText})
			f.machine.Dispatch(machine.Event{Type: machine.EventClassifyProgress, Progress: j.Progress})
		default:
			f.machine.Dispatch(machine.Event{Type: machine.EventProcessProgress, Progress: j.Progress})
		}
	})
	if err != nil {
		return err
	}

	if job.Status == ocr.JobFailed {
		return jobFailureError(job)
	}
	if job.Result == nil {
		return ocr.NewValidationError("EMPTY_RESULT", fmt.Sprintf("job %s completed without a result", jobID))
	}

	classified := &draft.ClassifiedReceipt{
		Date:            job.Result.Date,
		Type:            job.Result.Type,
		Amount:          job.Result.Amount,
		Vehicle:         job.Result.Vehicle,
		Vendor:          job.Result.Vendor,
		Location:        job.Result.Location,
		ExtractedText:   job.Result.ExtractedText,
		Confidence:      job.Result.Confidence,
		FieldConfidence: job.Result.FieldConfidence,
	}
	f.machine.Dispatch(machine.Event{Type: machine.EventClassified, Classified: classified})

	// The machine collapses field confidence into the scalar; read it back
	state := f.machine.State()
	if state.Classified == nil {
		return fmt.Errorf("classification was not accepted by the state machine")
	}

	d := draft.New(*state.Classified)
	m.validator.ValidateAll(d)

	f.mu.Lock()
	f.draft = d
	f.mu.Unlock()

	m.setProgress(f, 100)
	return nil
}

// jobFailureError converts a failed job's error payload into a client error
func jobFailureError(job *ocr.Job) error {
	code := "PROCESSING_FAILED"
	message := "server-side processing failed"
	retryable := false
	if job.Error != nil {
		if job.Error.Code != "" {
			code = job.Error.Code
		}
		if job.Error.Message != "" {
			message = job.Error.Message
		}
		retryable = job.Error.Retryable
	}
	return &ocr.Error{Kind: ocr.KindServer, Code: code, Message: message, Retryable: retryable}
}

// UpdateDraftField applies one user edit to the draft and returns the
// validation issues for that field. An edit that cannot be applied (e.g. a
// non-numeric amount) is reported as issues without changing the draft.
func (m *Manager) UpdateDraftField(flowID, field, value string) ([]draft.Issue, error) {
	f, ok := m.lookup(flowID)
	if !ok {
		return nil, ErrFlowNotFound
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.draft == nil {
		return nil, ErrNoDraft
	}

	f.machine.Dispatch(machine.Event{Type: machine.EventEdit})
	f.machine.Dispatch(machine.Event{Type: machine.EventEditField, Field: field, Value: value})

	issues := m.validator.ValidateField(field, value, f.draft)

	// A value the draft cannot hold (non-numeric amount, unknown field)
	// still gets its issues recorded, it just does not change the draft
	if err := f.draft.SetField(field, value); err != nil {
		m.logger.Debug("Draft edit recorded but not applied",
			zap.String("flow_id", flowID),
			zap.String("field", field),
			zap.Error(err))
	}
	f.draft.SetIssues(field, issues)

	m.persistLocked(f)
	return issues, nil
}

// SaveCurrentReceipt validates the draft and, only when no error-severity
// issue remains, transforms and persists it. A failed validation returns
// the result without any network or storage attempt.
func (m *Manager) SaveCurrentReceipt(ctx context.Context, flowID string) (*draft.Result, *receipt.Receipt, error) {
	f, ok := m.lookup(flowID)
	if !ok {
		return nil, nil, ErrFlowNotFound
	}

	f.mu.Lock()
	d := f.draft
	f.mu.Unlock()

	if d == nil {
		return nil, nil, ErrNothingToSave
	}

	result := m.validator.ValidateAll(d)
	if !result.IsValid {
		m.logger.Info("Save blocked by validation",
			zap.String("flow_id", flowID),
			zap.Int("fields_with_issues", len(result.FieldErrors)))
		return &result, nil, nil
	}

	f.machine.Dispatch(machine.Event{Type: machine.EventConfirmEdits})
	f.machine.Dispatch(machine.Event{Type: machine.EventSave, Draft: d})

	rec, err := draft.TransformToFinal(d)
	if err != nil {
		return &result, nil, m.failFlow(f, err)
	}

	id, err := m.receipts.Save(ctx, rec)
	if err != nil {
		return &result, nil, m.failFlow(f, err)
	}

	f.machine.Dispatch(machine.Event{Type: machine.EventSaved, Saved: rec})

	f.mu.Lock()
	f.record.ReceiptID = id
	for key, value := range f.machine.Session().Metrics() {
		f.record.Metrics[key] = value
	}
	f.record.UpdatedAt = m.now()
	m.persistLocked(f)
	f.mu.Unlock()

	m.logger.Info("Receipt saved from flow",
		zap.String("flow_id", flowID),
		zap.String("receipt_id", id))

	return &result, rec, nil
}

// CancelFlow cancels the flow's in-flight work. Cancellation is cooperative
// and user-perceived: the session context is cancelled immediately, the
// server-side job cancel is best effort, and the flow is archived.
func (m *Manager) CancelFlow(ctx context.Context, flowID string) error {
	f, ok := m.lookup(flowID)
	if !ok {
		return ErrFlowNotFound
	}

	f.mu.Lock()
	if f.record.archived() {
		f.mu.Unlock()
		return nil
	}
	jobID := f.jobID
	f.mu.Unlock()

	state := f.machine.State()
	if state.Phase == machine.PhaseSaving || state.Phase == machine.PhaseComplete {
		return ErrCannotCancel
	}

	f.machine.Dispatch(machine.Event{Type: machine.EventCancel})

	if jobID != "" {
		m.jobs.CancelJob(ctx, jobID)
	}

	f.mu.Lock()
	f.record.Cancelled = true
	f.record.UpdatedAt = m.now()
	m.persistLocked(f)
	f.mu.Unlock()

	m.logger.Info("Flow cancelled", zap.String("flow_id", flowID))
	return nil
}

// CleanupHistory removes archived flows whose last activity is older than
// the retention window, returning the number removed
func (m *Manager) CleanupHistory(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, f := range m.flows {
		f.mu.Lock()
		expired := f.record.archived() && now.Sub(f.record.UpdatedAt) > m.cfg.Retention
		f.mu.Unlock()
		if !expired {
			continue
		}
		delete(m.flows, id)
		if m.store != nil {
			if err := m.store.Delete(id); err != nil {
				m.logger.Warn("Failed to delete archived flow record",
					zap.String("flow_id", id), zap.Error(err))
			}
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("Flow history cleaned up", zap.Int("removed", removed))
	}
	return removed
}

// failFlow records a pipeline failure on the machine and the record. A
// cancellation is not a failure: the machine has already returned to idle.
func (m *Manager) failFlow(f *flowState, err error) error {
	code, message, retryable := "UNKNOWN", err.Error(), false

	var clientErr *ocr.Error
	if errors.As(err, &clientErr) {
		code = clientErr.Code
		message = clientErr.Message
		retryable = clientErr.Retryable
		if clientErr.Kind == ocr.KindCancelled {
			f.mu.Lock()
			f.record.recordError(code, message, m.now())
			m.persistLocked(f)
			f.mu.Unlock()
			return err
		}
	}

	f.machine.Dispatch(machine.Event{
		Type: machine.EventFail,
		Err:  &machine.EventError{Code: code, Message: message, Cause: err, Retryable: retryable},
	})

	f.mu.Lock()
	f.record.recordError(code, message, m.now())
	m.persistLocked(f)
	f.mu.Unlock()

	m.logger.Error("Flow pipeline failed",
		zap.String("flow_id", f.record.ID),
		zap.String("code", code),
		zap.Bool("retryable", retryable),
		zap.Error(err))

	return err
}

// setProgress updates the overall 0-100 progress; it never moves backward
func (m *Manager) setProgress(f *flowState, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	f.mu.Lock()
	if progress > f.record.Progress {
		f.record.Progress = progress
		f.record.UpdatedAt = m.now()
	}
	f.mu.Unlock()
}

func (m *Manager) lookup(flowID string) (*flowState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[flowID]
	return f, ok
}

func (m *Manager) snapshot(f *flowState) *Snapshot {
	f.mu.Lock()
	record := f.record.clone()
	d := f.draft.Clone()
	f.mu.Unlock()

	state := f.machine.State()
	snap := &Snapshot{
		Record:         record,
		Phase:          state.Phase,
		PhaseProgress:  state.Progress,
		Draft:          d,
		SessionMetrics: f.machine.Session().Metrics(),
	}
	if state.Phase == machine.PhaseError && state.Failure != nil {
		snap.Failure = &FailureInfo{
			Code:     state.Failure.Code,
			Message:  state.Failure.Message,
			CanRetry: state.Failure.CanRetry,
		}
	}
	return snap
}

// persist writes the record through to the store, if one is configured
func (m *Manager) persist(f *flowState) {
	f.mu.Lock()
	m.persistLocked(f)
	f.mu.Unlock()
}

// persistLocked is persist for callers already holding f.mu
func (m *Manager) persistLocked(f *flowState) {
	if m.store == nil {
		return
	}
	if err := m.store.Put(f.record.clone()); err != nil {
		m.logger.Warn("Failed to persist flow record",
			zap.String("flow_id", f.record.ID), zap.Error(err))
	}
}
