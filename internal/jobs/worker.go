package jobs

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"
)

// Queue is the subset of Repo the worker needs.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*Job, error)
	MarkDone(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, errMsg string) error
	RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string, payload []byte) error
}

// BlobDeleter removes stored objects by their public url.
type BlobDeleter interface {
	KeyFromURL(url string) (string, bool)
	Delete(ctx context.Context, key string) error
}

type Worker struct {
	ID    string
	Repo  Queue
	Blobs BlobDeleter
	Log   *zap.Logger

	Interval time.Duration
	now      func() time.Time
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.Repo.Claim(ctx, w.ID)
			if err != nil {
				if ctx.Err() == nil {
					w.Log.Warn("worker claim error", zap.String("worker", w.ID), zap.Error(err))
				}
				continue
			}
			if job == nil {
				continue
			}
			w.handle(ctx, job)
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	switch job.Type {
	case TypeBlobCleanup:
		w.handleBlobCleanup(ctx, job)
	default:
		_ = w.Repo.MarkFailed(ctx, job.ID, "unknown job type")
	}
}

func (w *Worker) handleBlobCleanup(ctx context.Context, job *Job) {
	var p blobCleanupPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		_ = w.Repo.MarkFailed(ctx, job.ID, "bad payload")
		return
	}

	var remaining []string
	var lastErr error
	for _, u := range p.URLs {
		key, ok := w.Blobs.KeyFromURL(u)
		if !ok {
			// not ours (or already external); nothing to delete
			continue
		}
		if err := w.Blobs.Delete(ctx, key); err != nil {
			remaining = append(remaining, u)
			lastErr = err
		}
	}

	if len(remaining) == 0 {
		_ = w.Repo.MarkDone(ctx, job.ID)
		return
	}

	w.Log.Warn("blob cleanup incomplete",
		zap.Uint64("job", job.ID),
		zap.Int("remaining", len(remaining)),
		zap.Error(lastErr),
	)
	payload, _ := json.Marshal(blobCleanupPayload{URLs: remaining})
	w.retry(ctx, job, lastErr.Error(), payload)
}

func (w *Worker) retry(ctx context.Context, job *Job, errMsg string, payload []byte) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = w.Repo.MarkFailed(ctx, job.ID, errMsg)
		return
	}

	next := w.clock().Add(backoff(attempts))
	_ = w.Repo.RetryLater(ctx, job.ID, attempts, next, errMsg, payload)
}

// backoff is 2^attempts seconds, capped at ten minutes.
func backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	return time.Duration(sec) * time.Second
}

func (w *Worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}
