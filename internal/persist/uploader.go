package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Remote uploads a snapshot to the storage service.
type Remote interface {
	Upload(ctx context.Context, filename string, data []byte) error
}

type uploadJob struct {
	filename string
	data     []byte
}

// Uploader sends snapshots in the background, one at a time. While an
// upload is in flight newer snapshots replace the pending one, so only the
// latest state is sent next. Failures are logged and dropped.
type Uploader struct {
	remote  Remote
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	pending *uploadJob
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewUploader creates an Uploader. Call Start() to begin uploading.
func NewUploader(remote Remote, timeout time.Duration, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		remote:  remote,
		timeout: timeout,
		log:     logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Enqueue schedules a snapshot for upload. It never blocks.
func (u *Uploader) Enqueue(filename string, data []byte) {
	u.mu.Lock()
	if u.pending != nil {
		u.log.Debug("upload superseded", "filename", u.pending.filename)
	}
	u.pending = &uploadJob{filename: filename, data: data}
	u.mu.Unlock()

	select {
	case u.wake <- struct{}{}:
	default:
	}
}

// Start launches the upload goroutine.
func (u *Uploader) Start(ctx context.Context) {
	ctx, u.cancel = context.WithCancel(ctx)

	go func() {
		defer close(u.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-u.wake:
				u.drain(ctx)
			}
		}
	}()
}

// Stop cancels the upload goroutine and waits for it to finish.
// A snapshot still pending is dropped.
func (u *Uploader) Stop() {
	if u.cancel == nil {
		return
	}
	u.cancel()
	<-u.done

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.pending != nil {
		u.log.Warn("upload dropped on shutdown", "filename", u.pending.filename)
		u.pending = nil
	}
}

func (u *Uploader) drain(ctx context.Context) {
	for ctx.Err() == nil {
		u.mu.Lock()
		job := u.pending
		u.pending = nil
		u.mu.Unlock()
		if job == nil {
			return
		}
		u.send(ctx, job)
	}
}

func (u *Uploader) send(ctx context.Context, job *uploadJob) {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := u.remote.Upload(ctx, job.filename, job.data); err != nil {
		u.log.Warn("upload failed", "filename", job.filename, "error", err)
		return
	}
	u.log.Info("snapshot uploaded", "filename", job.filename, "bytes", len(job.data),
		"duration", time.Since(start).Round(time.Millisecond))
}
