package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

// Pipeline anonymizes datasets with a pool of workers. Detectors are
// shared; every record gets its own Engine and therefore its own tokens.
type Pipeline struct {
	patterns anonymizer.PatternDetector
	semantic anonymizer.SemanticDetector
	config   Config
	logger   *logger.Logger
}

// NewPipeline creates a batch pipeline, rejecting an invalid strategy or
// language before any record is read
func NewPipeline(patterns anonymizer.PatternDetector, semantic anonymizer.SemanticDetector, cfg Config, log *logger.Logger) (*Pipeline, error) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = runtime.NumCPU()
	}
	if cfg.ProgressReport <= 0 {
		cfg.ProgressReport = 1000
	}

	if _, err := anonymizer.New(cfg.Strategy, cfg.Language, patterns, semantic,
		anonymizer.WithAllowedStrategies(cfg.AllowedStrategies),
	); err != nil {
		return nil, err
	}

	return &Pipeline{
		patterns: patterns,
		semantic: semantic,
		config:   cfg,
		logger:   log,
	}, nil
}

// ProcessFile anonymizes every record of input and writes the results to output
func (p *Pipeline) ProcessFile(ctx context.Context, input, output string) (*Summary, error) {
	p.logger.Info("Starting batch anonymization",
		zap.String("input", input),
		zap.String("output", output),
		zap.String("strategy", p.config.Strategy),
		zap.String("language", p.config.Language),
		zap.Int("workers", p.config.WorkerCount),
	)

	records, err := ReadFile(input)
	if err != nil {
		return nil, err
	}

	results, summary, err := p.Run(ctx, records)
	if err != nil {
		return summary, err
	}

	if err := WriteFile(output, results); err != nil {
		return summary, err
	}

	p.logger.Info("Batch anonymization completed",
		zap.Int64("total_records", summary.TotalRecords),
		zap.Int64("processed", summary.Processed),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("entities", summary.Entities),
		zap.Duration("duration", summary.Duration),
	)

	return summary, nil
}

// Run anonymizes records concurrently. Results keep input order; skipped
// records are omitted.
func (p *Pipeline) Run(ctx context.Context, records []*Record) ([]*Result, *Summary, error) {
	slots, summary, err := p.run(ctx, records)
	if err != nil {
		return nil, summary, err
	}

	results := make([]*Result, 0, len(slots))
	for _, res := range slots {
		if res != nil {
			results = append(results, res)
		}
	}
	return results, summary, nil
}

// run returns one slot per input record, nil where the record was skipped
func (p *Pipeline) run(ctx context.Context, records []*Record) ([]*Result, *Summary, error) {
	start := time.Now()
	summary := &Summary{
		TotalRecords: int64(len(records)),
		EntityTypes:  make(map[string]int64),
	}

	slots := make([]*Result, len(records))
	jobs := make(chan int)
	var processed atomic.Int64
	var firstErr error
	var errOnce sync.Once

	var wg sync.WaitGroup
	for w := 0; w < p.config.WorkerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := p.process(ctx, records[i])
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					continue
				}
				slots[i] = res
				if n := processed.Add(1); n%int64(p.config.ProgressReport) == 0 {
					p.reportProgress(n, summary.TotalRecords, start)
				}
			}
		}()
	}

feed:
	for i, rec := range records {
		if !p.validateRecord(rec) {
			summary.Skipped++
			continue
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, summary, fmt.Errorf("batch cancelled: %w", err)
	}
	if firstErr != nil {
		return nil, summary, firstErr
	}

	for _, res := range slots {
		if res == nil {
			continue
		}
		summary.Entities += int64(len(res.Explanations))
		for _, e := range res.Explanations {
			summary.EntityTypes[e.Type]++
		}
	}
	summary.Processed = processed.Load()
	summary.Duration = time.Since(start)

	return slots, summary, nil
}

// process anonymizes one record in its own session
func (p *Pipeline) process(ctx context.Context, rec *Record) (*Result, error) {
	engine, err := anonymizer.New(p.config.Strategy, p.config.Language, p.patterns, p.semantic,
		anonymizer.WithAllowedStrategies(p.config.AllowedStrategies),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine for record %s: %w", rec.ID, err)
	}

	out := engine.Anonymize(ctx, rec.Text)

	res := &Result{
		ID:           rec.ID,
		Strategy:     string(engine.Strategy()),
		Language:     engine.Language(),
		Anonymized:   out.Anonymized,
		Explanations: make([]Explanation, 0, len(out.Explanations)),
	}
	for _, e := range out.Explanations {
		res.Explanations = append(res.Explanations, Explanation{
			Entity:      e.Entity,
			Method:      string(e.Method),
			Type:        e.Type,
			Replacement: e.Replacement,
		})
	}
	return res, nil
}

// validateRecord rejects empty and oversized texts
func (p *Pipeline) validateRecord(rec *Record) bool {
	if rec.Text == "" {
		p.logger.Debug("Skipping record with empty text", zap.String("id", rec.ID))
		return false
	}
	if p.config.MaxTextLength > 0 && len(rec.Text) > p.config.MaxTextLength {
		p.logger.Debug("Skipping record with oversized text",
			zap.String("id", rec.ID),
			zap.Int("length", len(rec.Text)),
		)
		return false
	}
	return true
}

func (p *Pipeline) reportProgress(done, total int64, start time.Time) {
	elapsed := time.Since(start)
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", done),
		zap.Int64("records_total", total),
		zap.Float64("rate_per_sec", float64(done)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed),
	)
}
