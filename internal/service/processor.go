package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ProcessCounts is the downstream processor's verdict for one sheet.
type ProcessCounts struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// SheetProcessor consumes a fully staged sheet.
type SheetProcessor interface {
	ProcessSheet(ctx context.Context, jobID, sheet string) (ProcessCounts, error)
}

// HTTPProcessorConfig holds configuration for the remote sheet processor.
type HTTPProcessorConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTPSheetProcessor triggers a remote service once a sheet is staged.
type HTTPSheetProcessor struct {
	client *resty.Client
	url    string
}

// NewHTTPSheetProcessor creates a processor that POSTs to cfg.URL.
func NewHTTPSheetProcessor(cfg *HTTPProcessorConfig) *HTTPSheetProcessor {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &HTTPSheetProcessor{client: client, url: cfg.URL}
}

type processSheetRequest struct {
	JobID     string `json:"jobId"`
	SheetName string `json:"sheetName"`
}

type processSheetResponse struct {
	Processed *int   `json:"processed"`
	Failed    *int   `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// ProcessSheet asks the remote processor to consume the staged rows of sheet.
func (p *HTTPSheetProcessor) ProcessSheet(ctx context.Context, jobID, sheet string) (ProcessCounts, error) {
	var resp processSheetResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(processSheetRequest{JobID: jobID, SheetName: sheet}).
		SetResult(&resp).
		SetError(&resp).
		Post(p.url)
	if err != nil {
		return ProcessCounts{}, fmt.Errorf("failed to call sheet processor: %w", err)
	}

	if httpResp.IsError() {
		if resp.Error != "" {
			return ProcessCounts{}, fmt.Errorf("sheet processor error: %s", resp.Error)
		}
		return ProcessCounts{}, fmt.Errorf("sheet processor error: status %d", httpResp.StatusCode())
	}
	if resp.Processed == nil {
		return ProcessCounts{}, fmt.Errorf("sheet processor response missing processed count")
	}

	counts := ProcessCounts{Processed: *resp.Processed}
	if resp.Failed != nil {
		counts.Failed = *resp.Failed
	}
	return counts, nil
}

// StagedRowCounter reports how many rows were staged for a sheet.
type StagedRowCounter interface {
	CountRows(ctx context.Context, jobID, sheet string) (int, error)
}

// StagedSheetProcessor is used when no remote processor is configured: every staged row
// counts as processed.
type StagedSheetProcessor struct {
	staging StagedRowCounter
}

// NewStagedSheetProcessor creates a processor backed by the staging store.
func NewStagedSheetProcessor(staging StagedRowCounter) *StagedSheetProcessor {
	return &StagedSheetProcessor{staging: staging}
}

// ProcessSheet returns the staged row count as processed.
func (p *StagedSheetProcessor) ProcessSheet(ctx context.Context, jobID, sheet string) (ProcessCounts, error) {
	n, err := p.staging.CountRows(ctx, jobID, sheet)
	if err != nil {
		return ProcessCounts{}, fmt.Errorf("failed to count staged rows: %w", err)
	}
	return ProcessCounts{Processed: n}, nil
}
