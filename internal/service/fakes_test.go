package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/portfoliolens/sheetload/internal/chunk"
	"github.com/portfoliolens/sheetload/internal/domain"
	"github.com/portfoliolens/sheetload/internal/logger"
	"github.com/portfoliolens/sheetload/internal/storage"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.ImportJob

	// cancelAfter flips the cancel flag once IsCancelRequested was called that many times.
	cancelAfter int
	cancelCalls int
	progress    []int
	finishErr   error
}

func newFakeJobStore(jobs ...*domain.ImportJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*domain.ImportJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) GetByID(_ context.Context, id string) (*domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *fakeJobStore) MarkProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if j.Status != domain.JobStatusPending {
		return domain.ErrJobNotPending
	}
	j.Status = domain.JobStatusProcessing
	return nil
}

func (s *fakeJobStore) UpdateProgress(_ context.Context, id string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, percent)
	if j := s.jobs[id]; j != nil && percent > j.PercentComplete {
		j.PercentComplete = percent
	}
	return nil
}

func (s *fakeJobStore) Finish(_ context.Context, id string, outcome *domain.JobOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	j, ok := s.jobs[id]
	if !ok || j.Status != domain.JobStatusProcessing {
		return errors.New("job is not processing")
	}
	j.Status = outcome.Status
	j.PercentComplete = outcome.PercentComplete
	j.ProcessedRows = outcome.ProcessedRows
	j.FailedRows = outcome.FailedRows
	j.SheetCounts = outcome.SheetCounts
	if outcome.ErrorMessage != "" {
		msg := outcome.ErrorMessage
		j.ErrorMessage = &msg
	}
	completed := outcome.CompletedAt
	j.CompletedAt = &completed
	return nil
}

func (s *fakeJobStore) IsCancelRequested(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	if s.cancelAfter > 0 && s.cancelCalls > s.cancelAfter {
		return true, nil
	}
	return s.jobs[id].CancelRequested, nil
}

func (s *fakeJobStore) job(id string) domain.ImportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

type fakeTemplateStore map[string]*domain.MappingTemplate

func (s fakeTemplateStore) GetByID(_ context.Context, id string) (*domain.MappingTemplate, error) {
	t, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

type fakeSheetStore struct {
	mu      sync.Mutex
	records map[string]domain.SheetStatus
	saves   int
	failAt  int
}

func newFakeSheetStore() *fakeSheetStore {
	return &fakeSheetStore{records: make(map[string]domain.SheetStatus)}
}

func (s *fakeSheetStore) Save(_ context.Context, status *domain.SheetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failAt > 0 && s.saves >= s.failAt {
		return errors.New("status store unavailable")
	}
	key := status.JobID + "/" + status.SheetName
	if existing, ok := s.records[key]; ok && existing.Status.IsTerminal() {
		return nil
	}
	s.records[key] = *status
	return nil
}

func (s *fakeSheetStore) get(jobID, sheet string) (domain.SheetStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.records[jobID+"/"+sheet]
	return st, ok
}

func (s *fakeSheetStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeSink stores chunks in memory and doubles as the staged row counter.
type fakeSink struct {
	mu     sync.Mutex
	chunks map[string][]chunk.Chunk
	failOn map[string]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{chunks: make(map[string][]chunk.Chunk), failOn: make(map[string]bool)}
}

func (s *fakeSink) WriteChunk(_ context.Context, c chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[c.SheetName] {
		return errors.New("sink unavailable")
	}
	key := c.JobID + "/" + c.SheetName
	s.chunks[key] = append(s.chunks[key], c)
	return nil
}

func (s *fakeSink) CountRows(_ context.Context, jobID, sheet string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.chunks[jobID+"/"+sheet] {
		n += c.RowCount()
	}
	return n, nil
}

func (s *fakeSink) sheetChunks(jobID, sheet string) []chunk.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chunk.Chunk(nil), s.chunks[jobID+"/"+sheet]...)
}

type fakeBlobs map[string][]byte

func (b fakeBlobs) Download(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b fakeBlobs) Exists(_ context.Context, key string) (bool, error) {
	_, ok := b[key]
	return ok, nil
}

func (b fakeBlobs) Ping(context.Context) error { return nil }

type processorFunc func(ctx context.Context, jobID, sheet string) (ProcessCounts, error)

func (f processorFunc) ProcessSheet(ctx context.Context, jobID, sheet string) (ProcessCounts, error) {
	return f(ctx, jobID, sheet)
}

type fakeLogStore struct {
	mu      sync.Mutex
	entries []domain.ImportLog
}

func (s *fakeLogStore) Record(_ context.Context, entry *domain.ImportLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// harness wires an ImportService to in-memory fakes.
type harness struct {
	jobs      *fakeJobStore
	templates fakeTemplateStore
	sheets    *fakeSheetStore
	sink      *fakeSink
	blobs     fakeBlobs
	logs      *fakeLogStore
	processor SheetProcessor
	cfg       ImportConfig
}

func newHarness() *harness {
	h := &harness{
		jobs:      newFakeJobStore(),
		templates: fakeTemplateStore{},
		sheets:    newFakeSheetStore(),
		sink:      newFakeSink(),
		blobs:     fakeBlobs{},
		logs:      &fakeLogStore{},
		cfg: ImportConfig{
			ChunkSize:     2,
			MaxAttempts:   2,
			RetryBackoff:  time.Millisecond,
			StoragePrefix: "ln_",
		},
	}
	h.processor = NewStagedSheetProcessor(h.sink)
	return h
}

func (h *harness) addJob(id, path string, data []byte, templateID string) {
	job := &domain.ImportJob{ID: id, SourcePath: path, Status: domain.JobStatusPending}
	if templateID != "" {
		job.TemplateID = &templateID
	}
	h.jobs.jobs[id] = job
	h.blobs[path] = data
}

func (h *harness) service() *ImportService {
	cfg := h.cfg
	return NewImportService(h.jobs, h.templates, h.sheets, h.sink, h.blobs, h.processor, h.logs, testLogger(), &cfg)
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})
}

// buildXLSX writes sheets (in order) into an in-memory workbook.
func buildXLSX(t *testing.T, sheets []string, rows map[string][][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for r, row := range rows[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			values := row
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}
