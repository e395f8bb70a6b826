package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"boleta/internal/storage"
)

// SyncQueue is the durable queue the processor drains. It is implemented by
// storage.SQLiteRepository.
type SyncQueue interface {
	ResetStaleProcessing(ctx context.Context) error
	DequeueSyncBatch(ctx context.Context, limit int64) ([]storage.SyncQueue, error)
	MarkSyncProcessing(ctx context.Context, id int64) error
	MarkSyncComplete(ctx context.Context, id int64) error
	MarkSyncFailed(ctx context.Context, id int64, lastError string) error
	IncrementSyncAttempt(ctx context.Context, item storage.SyncQueue, lastError string) error
	CleanupCompletedSyncs(ctx context.Context, before time.Time) error
	MarkSyncError(ctx context.Context, payslipID string) error
	GetSyncQueueStats(ctx context.Context) (*storage.GetSyncQueueStatsRow, error)
	RetryFailedSyncs(ctx context.Context) error
}

// PayslipSyncer pushes payslips to the external spreadsheet.
type PayslipSyncer interface {
	SyncPayslip(ctx context.Context, id string, version int64) error
	RemovePayslip(ctx context.Context, id string) error
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending items (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of items to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum retry attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up completed items (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncProcessor drains the payslip sync queue into the external spreadsheet.
type SyncProcessor struct {
	queue  SyncQueue
	syncer PayslipSyncer
	config SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(queue SyncQueue, syncer PayslipSyncer, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		queue:  queue,
		syncer: syncer,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Items left in processing by a crash go back to pending.
	if err := p.queue.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

func (p *SyncProcessor) processBatch(ctx context.Context) {
	items, err := p.queue.DequeueSyncBatch(ctx, int64(p.config.BatchSize))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue sync batch", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	for _, item := range items {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.queue.MarkSyncProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item as processing",
				"id", item.ID, "error", err)
			continue
		}

		var processErr error
		switch item.Operation {
		case storage.OperationSync:
			processErr = p.syncer.SyncPayslip(ctx, item.PayslipID, item.Version)
		case storage.OperationDelete:
			processErr = p.syncer.RemovePayslip(ctx, item.PayslipID)
		default:
			processErr = fmt.Errorf("unknown operation: %s", item.Operation)
		}

		if processErr != nil {
			p.handleFailure(ctx, item, processErr)
		} else {
			p.handleSuccess(ctx, item)
		}
	}
}

func (p *SyncProcessor) handleSuccess(ctx context.Context, item storage.SyncQueue) {
	if err := p.queue.MarkSyncComplete(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync complete",
			"id", item.ID, "error", err)
	}
}

// handleFailure schedules a retry or, past MaxRetries, fails the item.
func (p *SyncProcessor) handleFailure(ctx context.Context, item storage.SyncQueue, processErr error) {
	slog.WarnContext(ctx, "Sync processing failed",
		"id", item.ID,
		"payslip_id", item.PayslipID,
		"operation", item.Operation,
		"attempt", item.Attempts+1,
		"error", processErr)

	if item.Attempts+1 < int64(p.config.MaxRetries) {
		if err := p.queue.IncrementSyncAttempt(ctx, item, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to increment sync attempt",
				"id", item.ID, "error", err)
		}
		return
	}

	if err := p.queue.MarkSyncFailed(ctx, item.ID, processErr.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync as failed",
			"id", item.ID, "error", err)
	}
	if item.Operation == storage.OperationSync {
		if err := p.queue.MarkSyncError(ctx, item.PayslipID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark payslip sync error",
				"payslip_id", item.PayslipID, "error", err)
		}
	}
	slog.ErrorContext(ctx, "Sync item failed permanently after max retries",
		"id", item.ID,
		"payslip_id", item.PayslipID,
		"attempts", item.Attempts+1)
}

func (p *SyncProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	if err := p.queue.CleanupCompletedSyncs(ctx, cutoff); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed syncs", "error", err)
	}
}

// Stats returns current queue statistics
func (p *SyncProcessor) Stats(ctx context.Context) (*storage.GetSyncQueueStatsRow, error) {
	return p.queue.GetSyncQueueStats(ctx)
}

// RetryFailed resets all failed items for retry
func (p *SyncProcessor) RetryFailed(ctx context.Context) error {
	return p.queue.RetryFailedSyncs(ctx)
}
