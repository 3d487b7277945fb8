package utils

import (
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"

	"leadflow/models"
)

const (
	// Provider hard ceiling on batch size; larger batches are chunked.
	emailBatchChunkSize = 50
	// Delay before a partially filled queue is flushed.
	emailBatchFlushDelay = 5 * time.Second
)

// BatchAttemptStore writes per-item batch outcomes back onto attempts.
type BatchAttemptStore interface {
	MarkAttemptSent(attemptID uint, provider, providerRef string) error
	MarkAttemptFailed(attemptID uint, provider, reason string) error
}

// EmailBatchItem is one pending send held in process memory between enqueue
// and flush.
type EmailBatchItem struct {
	AttemptID uint
	Lead      models.Lead
	Message   EmailMessage
}

// BatchResult is the flush outcome for one queued item.
type BatchResult struct {
	AttemptID   uint   `json:"attempt_id"`
	ProviderRef string `json:"provider_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

// EmailBatcher accumulates pending email sends and flushes them through the
// provider's batch endpoint, either when the queue reaches the chunk size or
// when the flush timer fires.
//
// Enqueue and flush may run concurrently; a flush atomically swaps out the
// current queue so concurrently arriving items start a fresh batch. Provider
// calls never happen under the lock.
type EmailBatcher struct {
	mu    sync.Mutex
	queue []EmailBatchItem
	timer *time.Timer

	provider EmailProvider
	attempts BatchAttemptStore
	logger   *logrus.Logger

	// FlushDelay and ChunkSize are overridable for tests.
	FlushDelay time.Duration
	ChunkSize  int
}

func NewEmailBatcher(provider EmailProvider, attempts BatchAttemptStore, logger *logrus.Logger) *EmailBatcher {
	return &EmailBatcher{
		provider:   provider,
		attempts:   attempts,
		logger:     logger,
		FlushDelay: emailBatchFlushDelay,
		ChunkSize:  emailBatchChunkSize,
	}
}

// Add enqueues one pending send. The first item since the last flush arms the
// flush timer; reaching the chunk size triggers an immediate flush without
// blocking the caller.
func (b *EmailBatcher) Add(item EmailBatchItem) {
	b.mu.Lock()
	b.queue = append(b.queue, item)
	size := len(b.queue)
	if size == 1 {
		b.timer = time.AfterFunc(b.FlushDelay, func() { b.Flush() })
	}
	b.mu.Unlock()

	if size >= b.ChunkSize {
		go b.Flush()
	}
}

// Len returns the number of currently queued items.
func (b *EmailBatcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Reset clears the queue and cancels any armed timer. Used for process
// shutdown and test isolation.
func (b *EmailBatcher) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	b.queue = nil
}

// Flush drains the entire current queue and submits it to the provider in
// chunks, writing each per-item result back onto its attempt. An empty queue
// returns immediately without contacting the provider.
func (b *EmailBatcher) Flush() []BatchResult {
	b.mu.Lock()
	b.stopTimerLocked()
	items := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(items) == 0 {
		return []BatchResult{}
	}

	results := make([]BatchResult, 0, len(items))

	// Items without a usable address fail immediately, without a provider call.
	sendable := make([]EmailBatchItem, 0, len(items))
	for _, item := range items {
		if item.Lead.Email == "" || checkmail.ValidateFormat(item.Lead.Email) != nil {
			results = append(results, b.failItem(item, "no email"))
			continue
		}
		sendable = append(sendable, item)
	}

	for start := 0; start < len(sendable); start += b.ChunkSize {
		end := start + b.ChunkSize
		if end > len(sendable) {
			end = len(sendable)
		}
		results = append(results, b.flushChunk(sendable[start:end])...)
	}

	b.logger.WithFields(logrus.Fields{
		"items":  len(items),
		"failed": countFailed(results),
	}).Info("email batch flushed")

	return results
}

// flushChunk submits one provider-sized chunk. A transport failure marks
// every item in the chunk FAILED; other chunks still proceed.
func (b *EmailBatcher) flushChunk(chunk []EmailBatchItem) []BatchResult {
	leads := make([]*models.Lead, 0, len(chunk))
	msgs := make([]EmailMessage, 0, len(chunk))
	for i := range chunk {
		leads = append(leads, &chunk[i].Lead)
		msgs = append(msgs, chunk[i].Message)
	}

	itemResults, err := b.provider.SendBatch(leads, msgs)
	if err != nil {
		b.logger.WithError(err).WithField("chunk_size", len(chunk)).Error("batch send failed")
		results := make([]BatchResult, 0, len(chunk))
		for _, item := range chunk {
			results = append(results, b.failItem(item, err.Error()))
		}
		return results
	}

	results := make([]BatchResult, 0, len(chunk))
	for i, item := range chunk {
		if i >= len(itemResults) {
			results = append(results, b.failItem(item, "missing provider response"))
			continue
		}
		res := itemResults[i]
		if res.Failed() {
			results = append(results, b.failItem(item, res.Message))
			continue
		}
		if err := b.attempts.MarkAttemptSent(item.AttemptID, b.provider.Name(), res.ProviderRef); err != nil {
			b.logger.WithError(err).WithField("attempt_id", item.AttemptID).Error("failed to record batch send")
		}
		results = append(results, BatchResult{AttemptID: item.AttemptID, ProviderRef: res.ProviderRef})
	}
	return results
}

func (b *EmailBatcher) failItem(item EmailBatchItem, reason string) BatchResult {
	if err := b.attempts.MarkAttemptFailed(item.AttemptID, b.provider.Name(), reason); err != nil {
		b.logger.WithError(err).WithField("attempt_id", item.AttemptID).Error("failed to record batch failure")
	}
	return BatchResult{AttemptID: item.AttemptID, Error: reason}
}

func (b *EmailBatcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func countFailed(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
