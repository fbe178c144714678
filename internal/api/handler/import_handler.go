package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/portfoliolens/sheetload/internal/api/middleware"
	"github.com/portfoliolens/sheetload/internal/domain"
	"github.com/portfoliolens/sheetload/internal/service"
	"github.com/portfoliolens/sheetload/internal/storage"
	"gorm.io/gorm"
)

// JobStore is the job persistence used by the HTTP layer.
type JobStore interface {
	Create(ctx context.Context, job *domain.ImportJob) error
	GetByID(ctx context.Context, id string) (*domain.ImportJob, error)
	RequestCancel(ctx context.Context, id string) error
}

// SheetStatusLister lists the sheet records of a job.
type SheetStatusLister interface {
	ListByJob(ctx context.Context, jobID string) ([]domain.SheetStatus, error)
}

// ImportHandler handles import job endpoints.
type ImportHandler struct {
	jobs      JobStore
	sheets    SheetStatusLister
	templates service.TemplateStore
	blobs     storage.BlobStore
	runner    service.JobRunner
	limiter   *service.JobLimiter
}

// NewImportHandler creates a new import handler.
// Parameters:
//   - jobs: job store for create, read and cancel.
//   - sheets: sheet status reader.
//   - templates: template store used to validate templateId on create.
//   - blobs: blob store used to validate sourcePath on create.
//   - runner: coordinator that processes a job.
//   - limiter: bound on jobs processed at once.
// Returns:
//   - *ImportHandler: initialized handler.
func NewImportHandler(
	jobs JobStore,
	sheets SheetStatusLister,
	templates service.TemplateStore,
	blobs storage.BlobStore,
	runner service.JobRunner,
	limiter *service.JobLimiter,
) *ImportHandler {
	return &ImportHandler{
		jobs:      jobs,
		sheets:    sheets,
		templates: templates,
		blobs:     blobs,
		runner:    runner,
		limiter:   limiter,
	}
}

// CreateImportRequest is the body of POST /api/v1/imports.
type CreateImportRequest struct {
	SourcePath string  `json:"sourcePath" binding:"required"`
	TemplateID *string `json:"templateId"`
}

// CreateImport handles POST /api/v1/imports.
func (h *ImportHandler) CreateImport(c *gin.Context) {
	var req CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	log := middleware.GetLogger(c)

	req.SourcePath = strings.TrimSpace(req.SourcePath)
	if req.SourcePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sourcePath is required"})
		return
	}
	exists, err := h.blobs.Exists(ctx, req.SourcePath)
	if err != nil {
		log.WithError(err).Error("Failed to check source file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check source file"})
		return
	}
	if !exists {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Source file not found: " + req.SourcePath})
		return
	}

	if req.TemplateID != nil && *req.TemplateID == "" {
		req.TemplateID = nil
	}
	if req.TemplateID != nil {
		if _, err := h.templates.GetByID(ctx, *req.TemplateID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Mapping template not found: " + *req.TemplateID})
				return
			}
			log.WithError(err).Error("Failed to load mapping template")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load mapping template"})
			return
		}
	}

	now := time.Now()
	job := &domain.ImportJob{
		ID:          uuid.New().String(),
		TemplateID:  req.TemplateID,
		SourcePath:  req.SourcePath,
		Status:      domain.JobStatusPending,
		SheetCounts: domain.SheetCounts{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		log.WithError(err).Error("Failed to create import job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create import job"})
		return
	}
	log.WithField("job_id", job.ID).Info("Import job created")
	c.JSON(http.StatusCreated, job)
}

// ProcessImport handles POST /api/v1/imports/:id/process. The job runs to completion even if
// the client disconnects.
func (h *ImportHandler) ProcessImport(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.limiter.Acquire(ctx); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	defer h.limiter.Release()

	res, err := h.runner.Process(context.WithoutCancel(ctx), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			middleware.GetLogger(c).WithError(err).Error("Import failed")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetImport handles GET /api/v1/imports/:id.
func (h *ImportHandler) GetImport(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load import job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListSheets handles GET /api/v1/imports/:id/sheets.
func (h *ImportHandler) ListSheets(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.jobs.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load import job"})
		return
	}

	statuses, err := h.sheets.ListByJob(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sheets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":  id,
		"sheets": statuses,
	})
}

// CancelImport handles POST /api/v1/imports/:id/cancel.
func (h *ImportHandler) CancelImport(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.RequestCancel(c.Request.Context(), id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": id, "cancelRequested": true})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var (
		notFound  *domain.JobNotFoundError
		decodeErr *domain.DecodeError
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobNotPending), errors.Is(err, domain.ErrJobFinished):
		return http.StatusConflict
	case errors.As(err, &decodeErr), errors.Is(err, domain.ErrTemplateNotFound),
		errors.Is(err, storage.ErrObjectNotFound), errors.Is(err, storage.ErrObjectTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrTooManyJobs):
		return http.StatusTooManyRequests
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
