package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/portfoliolens/sheetload/internal/chunk"
	"github.com/portfoliolens/sheetload/internal/domain"
	"github.com/portfoliolens/sheetload/internal/logger"
	"github.com/portfoliolens/sheetload/internal/mapping"
	"github.com/portfoliolens/sheetload/internal/rows"
	"github.com/portfoliolens/sheetload/internal/storage"
	"github.com/portfoliolens/sheetload/internal/workbook"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// JobStore is the subset of the job repository the coordinator needs.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*domain.ImportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, percent int) error
	Finish(ctx context.Context, id string, outcome *domain.JobOutcome) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
}

// TemplateStore loads mapping templates.
type TemplateStore interface {
	GetByID(ctx context.Context, id string) (*domain.MappingTemplate, error)
}

// ImportLogStore receives one completion record per finished job.
type ImportLogStore interface {
	Record(ctx context.Context, entry *domain.ImportLog) error
}

// ImportConfig holds configuration for the import coordinator.
type ImportConfig struct {
	ChunkSize              int
	MaxAttempts            int
	RetryBackoff           time.Duration
	StoragePrefix          string
	TolerateTemplateErrors bool
	SheetConcurrency       int
	MaxFileBytes           int64
}

// ImportService coordinates one import job from blob download to terminal job state.
type ImportService struct {
	jobs      JobStore
	templates TemplateStore
	sheets    SheetStatusStore
	blobs     storage.BlobStore
	processor SheetProcessor
	logs      ImportLogStore
	ingestor  *chunk.Ingestor
	resolver  mapping.Resolver
	cfg       ImportConfig
	logger    *logger.Logger
	now       func() time.Time
}

// NewImportService creates a new import coordinator.
func NewImportService(
	jobs JobStore,
	templates TemplateStore,
	sheets SheetStatusStore,
	sink chunk.Sink,
	blobs storage.BlobStore,
	processor SheetProcessor,
	logs ImportLogStore,
	log *logger.Logger,
	cfg *ImportConfig,
) *ImportService {
	if cfg.SheetConcurrency <= 0 {
		cfg.SheetConcurrency = 1
	}
	return &ImportService{
		jobs:      jobs,
		templates: templates,
		sheets:    sheets,
		blobs:     blobs,
		processor: processor,
		logs:      logs,
		ingestor: chunk.NewIngestor(sink, chunk.Config{
			Size:        cfg.ChunkSize,
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.RetryBackoff,
		}),
		resolver: mapping.NewResolver(cfg.StoragePrefix),
		cfg:      *cfg,
		logger:   log,
		now:      time.Now,
	}
}

// log returns the context logger; Process seeds it with the service logger.
func (s *ImportService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// SheetResult is the per-sheet part of an ImportResult.
type SheetResult struct {
	Sheet       string            `json:"sheet"`
	Status      domain.SheetState `json:"status"`
	TargetTable string            `json:"targetTable,omitempty"`
	TotalRows   int               `json:"totalRows"`
	Processed   int               `json:"processed"`
	Failed      int               `json:"failed"`
	Note        string            `json:"note,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// ImportResult is the terminal summary of a processed job.
type ImportResult struct {
	JobID        string           `json:"jobId"`
	Status       domain.JobStatus `json:"status"`
	Processed    int              `json:"processed"`
	Failed       int              `json:"failed"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Sheets       []SheetResult    `json:"sheets"`
}

// Process runs the job end to end.
// Parameters:
//   - ctx: cancellation for every blocking step.
//   - jobID: id of a pending import job.
// Returns:
//   - *ImportResult: job totals and per-sheet breakdown once the job is terminal.
//   - error: *domain.JobNotFoundError, domain.ErrJobNotPending, *domain.DecodeError or another
//     job-fatal error. Sheet failures are reported in the result, not here.
func (s *ImportService) Process(ctx context.Context, jobID string) (*ImportResult, error) {
	start := s.now()
	ctx = logger.Ensure(ctx, s.logger)
	ctx = logger.SetJobID(ctx, jobID)
	ctx = logger.SetComponent(ctx, "import")

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.JobNotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to load import job: %w", err)
	}
	if job.Status != domain.JobStatusPending {
		return nil, domain.ErrJobNotPending
	}
	if err := s.jobs.MarkProcessing(ctx, jobID); err != nil {
		return nil, err
	}
	ctx = logger.SetSource(ctx, job.SourcePath)
	if job.TemplateID != nil {
		ctx = logger.WithField(ctx, logger.FieldTemplateID, *job.TemplateID)
	}
	s.log(ctx).Info("Import started")

	wb, tmpl, err := s.prepare(ctx, job)
	if err != nil {
		s.abort(ctx, job, err, start)
		return nil, err
	}

	tracker := NewSheetTracker(jobID, s.sheets)
	t, cancelled, err := s.processSheets(ctx, job, wb, tmpl, tracker)
	if err != nil {
		s.abort(ctx, job, err, start)
		return nil, err
	}

	outcome := &domain.JobOutcome{
		Status:          t.status(),
		PercentComplete: 100,
		ProcessedRows:   t.processed,
		FailedRows:      t.failed,
		SheetCounts:     t.breakdown,
		ErrorMessage:    t.message(),
		CompletedAt:     s.now(),
	}
	if cancelled {
		outcome.Status = domain.JobStatusError
		outcome.ErrorMessage = fmt.Sprintf("Import cancelled after %d of %d sheets: %s", len(t.breakdown), len(wb.Sheets), t.summary())
	}
	if err := s.finish(ctx, job, outcome, start); err != nil {
		return nil, err
	}
	return buildResult(jobID, outcome, tracker.Snapshot(), t), nil
}

// prepare downloads, decodes and loads the template. Every failure here is job-fatal.
func (s *ImportService) prepare(ctx context.Context, job *domain.ImportJob) (*workbook.Workbook, *domain.MappingTemplate, error) {
	data, err := storage.ReadAll(ctx, s.blobs, job.SourcePath, s.cfg.MaxFileBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download workbook: %w", err)
	}

	var tmpl *domain.MappingTemplate
	if job.TemplateID != nil && *job.TemplateID != "" {
		tmpl, err = s.templates.GetByID(ctx, *job.TemplateID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, *job.TemplateID)
			}
			return nil, nil, fmt.Errorf("failed to load mapping template: %w", err)
		}
	}

	decodeStart := s.now()
	wb, err := workbook.Decode(data, job.SourcePath)
	if err != nil {
		return nil, nil, err
	}
	logger.With(logger.Fields{
		logger.FieldDurationMs: s.now().Sub(decodeStart).Milliseconds(),
		logger.FieldSize:       len(data),
		logger.FieldCount:      len(wb.Sheets),
	}).Info(ctx, "Workbook decoded")
	return wb, tmpl, nil
}

// processSheets runs every sheet and folds the outcomes in workbook order. The bool result
// reports whether the job was cancelled between sheets.
func (s *ImportService) processSheets(
	ctx context.Context,
	job *domain.ImportJob,
	wb *workbook.Workbook,
	tmpl *domain.MappingTemplate,
	tracker *SheetTracker,
) (tally, bool, error) {
	outcomes := make([]*sheetOutcome, len(wb.Sheets))
	claims := newTableClaims()
	var (
		stopped atomic.Bool
		done    atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SheetConcurrency)
	for i := range wb.Sheets {
		if stopped.Load() {
			break
		}
		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			cancelled, err := s.cancelRequested(gctx, job.ID)
			if err != nil {
				return err
			}
			if cancelled {
				stopped.Store(true)
				return nil
			}

			o, err := s.processSheet(gctx, job, &wb.Sheets[i], i, tmpl, tracker, claims)
			if err != nil {
				return err
			}
			outcomes[i] = &o
			s.reportProgress(gctx, job.ID, int(done.Add(1)), len(wb.Sheets))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tally{}, false, err
	}

	var t tally
	for _, o := range outcomes {
		if o != nil {
			t = t.add(*o)
		}
	}
	if stopped.Load() {
		s.log(ctx).WithField("completed_sheets", len(t.breakdown)).Warn("Import cancelled between sheets")
		return t, true, nil
	}
	return t, false, nil
}

func (s *ImportService) cancelRequested(ctx context.Context, jobID string) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}
	cancelled, err := s.jobs.IsCancelRequested(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to check cancellation: %w", err)
	}
	return cancelled, nil
}

// processSheet runs resolve, materialize, ingest and the downstream processor for one sheet.
// Stage failures are recorded on the sheet and returned as an errored outcome; the returned
// error is reserved for status persistence failures.
func (s *ImportService) processSheet(
	ctx context.Context,
	job *domain.ImportJob,
	sheet *workbook.Sheet,
	position int,
	tmpl *domain.MappingTemplate,
	tracker *SheetTracker,
	claims *tableClaims,
) (sheetOutcome, error) {
	ctx = logger.SetSheet(ctx, sheet.Name)
	start := s.now()
	if err := tracker.Register(ctx, sheet.Name, position); err != nil {
		return sheetOutcome{}, err
	}

	plan, err := s.resolve(ctx, sheet.Name, tmpl)
	if err == nil && !plan.Skip {
		err = claims.claim(sheet.Name, plan.TargetTable)
	}
	if err != nil {
		if err := tracker.RecordTotals(ctx, sheet.Name, len(sheet.Rows), 0, plan.TargetTable); err != nil {
			return sheetOutcome{}, err
		}
		return s.failSheet(ctx, tracker, sheet.Name, err)
	}

	if plan.Skip {
		if err := tracker.Skip(ctx, sheet.Name); err != nil {
			return sheetOutcome{}, err
		}
		s.log(ctx).Info("Sheet skipped by template")
		return sheetOutcome{Sheet: sheet.Name, Status: domain.SheetSkipped}, nil
	}

	if err := tracker.Begin(ctx, sheet.Name); err != nil {
		return sheetOutcome{}, err
	}
	seq := rows.Materialize(sheet.Header, sheet.Rows, plan)
	total := seq.Count()
	totalChunks := chunk.TotalChunks(total, s.ingestor.Size())
	if err := tracker.RecordTotals(ctx, sheet.Name, total, totalChunks, plan.TargetTable); err != nil {
		return sheetOutcome{}, err
	}

	outcome := sheetOutcome{
		Sheet:       sheet.Name,
		TargetTable: plan.TargetTable,
		TotalRows:   total,
		TotalChunks: totalChunks,
	}
	if total == 0 {
		if err := tracker.CompleteEmpty(ctx, sheet.Name); err != nil {
			return sheetOutcome{}, err
		}
		outcome.Status = domain.SheetCompleted
		outcome.Note = NoteSheetEmpty
		return outcome, nil
	}

	ref := chunk.SheetRef{JobID: job.ID, SheetName: sheet.Name, TargetTable: plan.TargetTable}
	if _, err := s.ingestor.Ingest(ctx, ref, seq); err != nil {
		return s.failSheet(ctx, tracker, sheet.Name, err)
	}

	counts, err := s.processor.ProcessSheet(ctx, job.ID, sheet.Name)
	if err != nil {
		return s.failSheet(ctx, tracker, sheet.Name, &domain.DownstreamProcessingError{Sheet: sheet.Name, Err: err})
	}
	processed, failed := clampCounts(counts.Processed, counts.Failed, total)
	if err := tracker.Complete(ctx, sheet.Name, processed, failed); err != nil {
		return sheetOutcome{}, err
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: s.now().Sub(start).Milliseconds(),
		logger.FieldCount:      total,
		"chunks":               totalChunks,
		"processed":            processed,
		"failed":               failed,
		"target_table":         plan.TargetTable,
	}).Info(ctx, "Sheet completed")

	outcome.Status = domain.SheetCompleted
	outcome.Processed = processed
	outcome.Failed = failed
	return outcome, nil
}

// resolve builds the sheet plan, falling back to the default plan when configured to
// tolerate malformed template entries.
func (s *ImportService) resolve(ctx context.Context, sheet string, tmpl *domain.MappingTemplate) (mapping.SheetPlan, error) {
	plan, err := s.resolver.Resolve(sheet, tmpl)
	if err == nil || !s.cfg.TolerateTemplateErrors {
		return plan, err
	}
	s.log(ctx).WithError(err).Warn("Invalid template entry, using default mapping")
	return s.resolver.Default(sheet)
}

// failSheet records a sheet-level failure. The status write survives context cancellation.
func (s *ImportService) failSheet(ctx context.Context, tracker *SheetTracker, sheet string, cause error) (sheetOutcome, error) {
	if err := tracker.Fail(context.WithoutCancel(ctx), sheet, cause); err != nil {
		return sheetOutcome{}, err
	}
	s.log(ctx).WithError(cause).Error("Sheet failed")

	status, _ := tracker.Get(sheet)
	return sheetOutcome{
		Sheet:       sheet,
		Status:      domain.SheetError,
		TargetTable: status.TargetTable,
		TotalRows:   status.TotalRows,
		TotalChunks: status.TotalChunks,
		Err:         cause,
	}, nil
}

func (s *ImportService) reportProgress(ctx context.Context, jobID string, done, total int) {
	if total == 0 {
		return
	}
	percent := min(done*100/total, 99)
	if err := s.jobs.UpdateProgress(ctx, jobID, percent); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to update job progress")
	}
}

// abort moves the job to error after a job-fatal failure.
func (s *ImportService) abort(ctx context.Context, job *domain.ImportJob, cause error, start time.Time) {
	outcome := &domain.JobOutcome{
		Status:          domain.JobStatusError,
		PercentComplete: 100,
		SheetCounts:     domain.SheetCounts{},
		ErrorMessage:    domain.TruncateReason(cause.Error()),
		CompletedAt:     s.now(),
	}
	if err := s.finish(ctx, job, outcome, start); err != nil {
		s.log(ctx).WithError(err).Error("Failed to record job failure")
	}
}

// finish persists the terminal job state and writes the completion record.
func (s *ImportService) finish(ctx context.Context, job *domain.ImportJob, outcome *domain.JobOutcome, start time.Time) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.jobs.Finish(ctx, job.ID, outcome); err != nil {
		return fmt.Errorf("failed to finish import job: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: s.now().Sub(start).Milliseconds(),
		logger.FieldStatus:     string(outcome.Status),
		"processed":            outcome.ProcessedRows,
		"failed":               outcome.FailedRows,
		"sheets":               outcome.SheetCounts,
	}).Info(ctx, "Import finished")

	entry := &domain.ImportLog{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		Status:    outcome.Status,
		Processed: outcome.ProcessedRows,
		Failed:    outcome.FailedRows,
		Sheets:    outcome.SheetCounts,
		Message:   outcome.ErrorMessage,
		CreatedAt: outcome.CompletedAt,
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to write import log")
	}
	return nil
}

func buildResult(jobID string, outcome *domain.JobOutcome, statuses []domain.SheetStatus, t tally) *ImportResult {
	res := &ImportResult{
		JobID:        jobID,
		Status:       outcome.Status,
		Processed:    outcome.ProcessedRows,
		Failed:       outcome.FailedRows,
		ErrorMessage: outcome.ErrorMessage,
		Sheets:       make([]SheetResult, 0, len(statuses)),
	}
	counts := make(map[string]domain.SheetCount, len(t.breakdown))
	for _, c := range t.breakdown {
		counts[c.Sheet] = c
	}
	for _, st := range statuses {
		c := counts[st.SheetName]
		sr := SheetResult{
			Sheet:       st.SheetName,
			Status:      st.Status,
			TargetTable: st.TargetTable,
			TotalRows:   st.TotalRows,
			Processed:   c.Processed,
			Failed:      c.Failed,
			Note:        st.Note,
			Error:       c.Error,
		}
		res.Sheets = append(res.Sheets, sr)
	}
	return res
}

// tableClaims rejects two sheets of one job resolving to the same target table.
type tableClaims struct {
	mu     sync.Mutex
	owners map[string]string
}

func newTableClaims() *tableClaims {
	return &tableClaims{owners: make(map[string]string)}
}

func (c *tableClaims) claim(sheet, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owners[table]; ok && owner != sheet {
		return &domain.TemplateResolutionError{
			Sheet:  sheet,
			Reason: fmt.Sprintf("target table %s is already used by sheet %q", table, owner),
		}
	}
	c.owners[table] = sheet
	return nil
}
