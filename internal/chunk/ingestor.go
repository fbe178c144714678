// Package chunk partitions a sheet's rows into fixed-size chunks and writes them to a staging sink.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/portfoliolens/sheetload/internal/domain"
	"github.com/portfoliolens/sheetload/internal/logger"
	"github.com/portfoliolens/sheetload/internal/rows"
)

const (
	DefaultSize        = 1000
	DefaultMaxAttempts = 3
	DefaultBackoff     = 200 * time.Millisecond
)

// Chunk is one bounded, ordered slice of rows for a sheet.
type Chunk struct {
	JobID       string
	SheetName   string
	TargetTable string
	Index       int
	Total       int
	Rows        []rows.Row
}

// RowCount returns the number of rows in the chunk.
func (c Chunk) RowCount() int {
	return len(c.Rows)
}

// Sink persists chunks. Writes must be idempotent per (job, sheet, index).
type Sink interface {
	WriteChunk(ctx context.Context, c Chunk) error
}

// SheetRef identifies the sheet being ingested.
type SheetRef struct {
	JobID       string
	SheetName   string
	TargetTable string
}

// Result summarizes one sheet's ingestion.
type Result struct {
	TotalRows   int
	TotalChunks int
	Written     int
}

// Ingestor writes row sequences to a Sink in chunks.
type Ingestor struct {
	sink        Sink
	size        int
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// Config holds chunking and retry settings.
type Config struct {
	Size        int
	MaxAttempts int
	Backoff     time.Duration
}

// NewIngestor creates an ingestor. Zero values in cfg fall back to the package defaults.
func NewIngestor(sink Sink, cfg Config) *Ingestor {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Ingestor{
		sink:        sink,
		size:        cfg.Size,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		sleep:       sleepWithContext,
	}
}

// Size returns the configured chunk size.
func (i *Ingestor) Size() int {
	return i.size
}

// TotalChunks returns ceil(rows/size).
func TotalChunks(rowCount, size int) int {
	if rowCount <= 0 || size <= 0 {
		return 0
	}
	return (rowCount + size - 1) / size
}

// Ingest partitions seq into chunks 0..N-1 and writes each in order. The chunk total is known
// before the first write. A chunk that still fails after the retry budget stops the sheet with
// a *domain.ChunkWriteError; chunks already written stay written.
// Parameters:
//   - ctx: cancellation for writes and backoff waits.
//   - ref: job, sheet and target table carried on every chunk.
//   - seq: restartable row sequence.
// Returns:
//   - Result: row and chunk totals plus the number of chunks written.
//   - error: *domain.ChunkWriteError or the context error.
func (i *Ingestor) Ingest(ctx context.Context, ref SheetRef, seq rows.Sequence) (Result, error) {
	total := seq.Count()
	res := Result{TotalRows: total, TotalChunks: TotalChunks(total, i.size)}
	if total == 0 {
		return res, nil
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldSheet: ref.SheetName,
		"total_chunks":    res.TotalChunks,
	})

	buf := make([]rows.Row, 0, min(i.size, total))
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		c := Chunk{
			JobID:       ref.JobID,
			SheetName:   ref.SheetName,
			TargetTable: ref.TargetTable,
			Index:       res.Written,
			Total:       res.TotalChunks,
			Rows:        buf,
		}
		if err := i.write(ctx, c); err != nil {
			return err
		}
		res.Written++
		buf = make([]rows.Row, 0, min(i.size, total))
		return nil
	}

	for row := range seq.All() {
		buf = append(buf, row)
		if len(buf) == i.size {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func (i *Ingestor) write(ctx context.Context, c Chunk) error {
	var lastErr error
	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := i.sink.WriteChunk(ctx, c)
		if err == nil {
			if attempt > 1 {
				logger.With(logger.Fields{
					logger.FieldChunkIndex: c.Index,
					"attempts":             attempt,
				}).Info(ctx, "Chunk written after retry")
			}
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldChunkIndex: c.Index,
			"attempt":              attempt,
		}).WithError(err).Warn("Chunk write failed")

		if attempt < i.maxAttempts {
			if err := i.sleep(ctx, i.backoff<<(attempt-1)); err != nil {
				return err
			}
		}
	}
	return &domain.ChunkWriteError{
		Sheet:      c.SheetName,
		ChunkIndex: c.Index,
		Attempts:   i.maxAttempts,
		Err:        fmt.Errorf("failed to write chunk %d/%d: %w", c.Index+1, c.Total, lastErr),
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
