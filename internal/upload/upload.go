// Package upload sends photo files to the external photo transport with a
// bounded worker pool.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Concurrency limits
const (
	DefaultConcurrency = 3
	MaxConcurrency     = 10
)

// Status of one file
type Status string

const (
	StatusPending    Status = "pending"
	StatusPresigning Status = "presigning"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusRecorded   Status = "recorded"
	StatusError      Status = "error"
)

// File is one photo to send.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Presigned is the transport's answer to a presign call.
type Presigned struct {
	BatchID   string            `json:"batchId"`
	PhotoID   string            `json:"photoId"`
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Record is what the transport stored for a completed file.
type Record struct {
	BatchID string `json:"batchId"`
	PhotoID string `json:"photoId"`
}

// Transport is the external photo store. Presign receives an empty batchID
// for the file that establishes the batch.
type Transport interface {
	Presign(ctx context.Context, batchID string, f File) (Presigned, error)
	Upload(ctx context.Context, p Presigned, f File) error
	Complete(ctx context.Context, p Presigned, f File) (Record, error)
}

// Result is the final state of one file.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	PhotoID string `json:"photoId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Submission is the aggregate outcome of one Dispatch.
type Submission struct {
	BatchID  string   `json:"batchId"`
	Results  []Result `json:"results"`
	Complete bool     `json:"complete"`
}

// Dispatcher uploads files through a Transport.
type Dispatcher struct {
	transport   Transport
	concurrency int
	logger      *slog.Logger

	// OnStatus, when set, observes every per-file transition. Calls are serialized.
	OnStatus func(index int, name string, status Status)
	statusMu sync.Mutex
}

// ClampConcurrency applies the default, floor and cap.
func ClampConcurrency(n int) int {
	switch {
	case n == 0:
		return DefaultConcurrency
	case n < 1:
		return 1
	case n > MaxConcurrency:
		return MaxConcurrency
	}
	return n
}

// NewDispatcher creates a dispatcher
func NewDispatcher(transport Transport, concurrency int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport:   transport,
		concurrency: ClampConcurrency(concurrency),
		logger:      logger,
	}
}

// Concurrency returns the effective worker count.
func (d *Dispatcher) Concurrency() int {
	return d.concurrency
}

// Dispatch uploads files. Without a batchID, files are sent one at a time
// until one succeeds and establishes the batch; the rest go through the
// worker pool reusing it. A failed file never cancels its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, batchID string, files []File) *Submission {
	sub := &Submission{BatchID: batchID, Results: make([]Result, len(files))}
	for i, f := range files {
		sub.Results[i] = Result{Name: f.Name, Status: StatusPending}
		d.notify(i, f.Name, StatusPending)
	}

	next := 0
	for sub.BatchID == "" && next < len(files) {
		rec, err := d.send(ctx, next, "", files[next], &sub.Results[next])
		next++
		if err == nil {
			sub.BatchID = rec.BatchID
		}
	}

	if next < len(files) {
		var cursor int64 = int64(next) - 1
		workers := d.concurrency
		if remaining := len(files) - next; remaining < workers {
			workers = remaining
		}

		var g errgroup.Group
		for w := 0; w < workers; w++ {
			g.Go(func() error {
				for {
					i := int(atomic.AddInt64(&cursor, 1))
					if i >= len(files) {
						return nil
					}
					_, _ = d.send(ctx, i, sub.BatchID, files[i], &sub.Results[i])
				}
			})
		}
		_ = g.Wait()
	}

	sub.Complete = len(files) > 0
	for _, r := range sub.Results {
		if r.Status != StatusRecorded {
			sub.Complete = false
			break
		}
	}

	d.logger.Info("Upload submission finished",
		"batch_id", sub.BatchID,
		"files", len(files),
		"complete", sub.Complete)
	return sub
}

func (d *Dispatcher) send(ctx context.Context, index int, batchID string, f File, res *Result) (Record, error) {
	fail := func(err error) (Record, error) {
		res.Status = StatusError
		res.Error = err.Error()
		d.notify(index, f.Name, StatusError)
		d.logger.Warn("Photo upload failed", "file", f.Name, "batch_id", batchID, "error", err)
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	d.set(index, f.Name, res, StatusPresigning)
	presigned, err := d.transport.Presign(ctx, batchID, f)
	if err != nil {
		return fail(fmt.Errorf("failed to presign upload: %w", err))
	}
	if batchID != "" && presigned.BatchID == "" {
		presigned.BatchID = batchID
	}

	d.set(index, f.Name, res, StatusUploading)
	if err := d.transport.Upload(ctx, presigned, f); err != nil {
		return fail(fmt.Errorf("failed to upload photo: %w", err))
	}

	d.set(index, f.Name, res, StatusProcessing)
	rec, err := d.transport.Complete(ctx, presigned, f)
	if err != nil {
		return fail(fmt.Errorf("failed to complete upload: %w", err))
	}
	if rec.BatchID == "" {
		rec.BatchID = presigned.BatchID
	}
	if rec.PhotoID == "" {
		rec.PhotoID = presigned.PhotoID
	}

	res.PhotoID = rec.PhotoID
	d.set(index, f.Name, res, StatusRecorded)
	return rec, nil
}

func (d *Dispatcher) set(index int, name string, res *Result, status Status) {
	res.Status = status
	d.notify(index, name, status)
}

func (d *Dispatcher) notify(index int, name string, status Status) {
	if d.OnStatus == nil {
		return
	}
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	d.OnStatus(index, name, status)
}
