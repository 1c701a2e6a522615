package behavior

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/crud"
)

// Export delivery modes.
const (
	DeliverySync  = "sync"
	DeliveryAsync = "async"
	DeliveryAuto  = "auto"
)

// Export outcome statuses.
const (
	ExportCompleted  = "completed"
	ExportProcessing = "processing"
	ExportFailed     = "failed"
)

// DefaultHeavyFormats are the formats auto delivery sends through a job.
var DefaultHeavyFormats = []string{"xlsx", "pdf", "parquet"}

// ExportClient is the export side of the API. *crud.Client satisfies it.
type ExportClient interface {
	SubmitExport(ctx context.Context, resource string, req crud.ExportRequest) (crud.ExportResult, error)
	ExportStatus(ctx context.Context, jobID string) (crud.ExportJob, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// ExportOutcome is the terminal state of an export as seen by the user.
// Processing means polling gave up while the job keeps running server side.
type ExportOutcome struct {
	Status   string
	Filename string
	Body     []byte
	Job      *crud.ExportJob
}

// Export is the default export behavior.
type Export struct {
	Client       ExportClient
	Resource     string
	PollInterval time.Duration
	PollTimeout  time.Duration
	HeavyFormats []string
	Logger       *zap.Logger
}

// ResolveDelivery maps auto (or empty) delivery to sync or async by format.
func (e Export) ResolveDelivery(format, delivery string) string {
	switch strings.ToLower(strings.TrimSpace(delivery)) {
	case DeliverySync:
		return DeliverySync
	case DeliveryAsync:
		return DeliveryAsync
	}
	heavy := e.HeavyFormats
	if heavy == nil {
		heavy = DefaultHeavyFormats
	}
	for _, f := range heavy {
		if strings.EqualFold(f, format) {
			return DeliveryAsync
		}
	}
	return DeliverySync
}

func (e Export) Export(ctx context.Context, req crud.ExportRequest) (ExportOutcome, error) {
	if e.Client == nil {
		return ExportOutcome{}, errors.New("export: no client configured")
	}
	if strings.TrimSpace(req.Format) == "" {
		return ExportOutcome{}, errors.New("export: format is required")
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	req.Delivery = e.ResolveDelivery(req.Format, req.Delivery)

	res, err := e.Client.SubmitExport(ctx, e.Resource, req)
	if err != nil {
		return ExportOutcome{}, fmt.Errorf("submit export: %w", err)
	}
	if res.Job == nil {
		return ExportOutcome{Status: ExportCompleted, Filename: res.Filename, Body: res.Body}, nil
	}

	logger.Info("export job submitted", zap.String("job", res.Job.ID), zap.String("format", req.Format))
	job, err := e.poll(ctx, *res.Job)
	if err != nil {
		return ExportOutcome{}, err
	}
	switch {
	case !job.Terminal():
		logger.Info("export still processing", zap.String("job", job.ID))
		return ExportOutcome{Status: ExportProcessing, Job: &job}, nil
	case job.Failed():
		msg := job.Error
		if msg == "" {
			msg = job.Status
		}
		return ExportOutcome{Status: ExportFailed, Job: &job}, fmt.Errorf("export failed: %s", msg)
	}

	out := ExportOutcome{Status: ExportCompleted, Job: &job, Filename: fmt.Sprintf("%s.%s", e.Resource, req.Format)}
	if job.DownloadURL != "" {
		body, err := e.Client.Download(ctx, job.DownloadURL)
		if err != nil {
			return ExportOutcome{}, fmt.Errorf("download export: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

// poll checks the job every PollInterval until it is terminal or PollTimeout
// elapses. Reaching the timeout, or a deadline on ctx, returns the last known
// (non-terminal) job. Only cancellation is an error.
func (e Export) poll(ctx context.Context, job crud.ExportJob) (crud.ExportJob, error) {
	interval := e.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timeout := e.PollTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for !job.Terminal() {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return job, nil
			}
			return job, ctx.Err()
		case <-deadline.C:
			return job, nil
		case <-ticker.C:
			next, err := e.Client.ExportStatus(ctx, job.ID)
			if err != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return job, nil
				}
				return job, fmt.Errorf("export status: %w", err)
			}
			if next.ID == "" {
				next.ID = job.ID
			}
			job = next
		}
	}
	return job, nil
}

// BulkClient is the bulk-action side of the API. *crud.Client satisfies it.
type BulkClient interface {
	BulkAction(ctx context.Context, resource, action string, ids []string) (crud.BulkResult, error)
}

// Bulk is the default bulk-action behavior.
type Bulk struct {
	Client   BulkClient
	Resource string
}

func (b Bulk) Run(ctx context.Context, action string, ids []string) (crud.BulkResult, error) {
	if b.Client == nil {
		return crud.BulkResult{}, errors.New("bulk action: no client configured")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return crud.BulkResult{}, errors.New("bulk action: action is required")
	}
	if len(ids) == 0 {
		return crud.BulkResult{}, errors.New("bulk action: no rows selected")
	}
	res, err := b.Client.BulkAction(ctx, b.Resource, action, ids)
	if err != nil {
		return crud.BulkResult{}, fmt.Errorf("bulk %s: %w", action, err)
	}
	if res.Processed == 0 && res.Failed == 0 && len(res.Items) > 0 {
		for _, item := range res.Items {
			if item.OK {
				res.Processed++
			} else {
				res.Failed++
			}
		}
	}
	return res, nil
}

// SummarizeBulk renders a one-line summary of r, naming up to three failed
// items with their messages.
func SummarizeBulk(action string, r crud.BulkResult) string {
	if r.Message != "" && r.Failed == 0 {
		return r.Message
	}
	summary := fmt.Sprintf("%s: %d processed", action, r.Processed)
	if r.Failed == 0 {
		return summary
	}
	summary += fmt.Sprintf(", %d failed", r.Failed)
	var details []string
	for _, item := range r.Items {
		if item.OK {
			continue
		}
		msg := item.Error
		if msg == "" {
			msg = "failed"
		}
		details = append(details, item.ID+": "+msg)
		if len(details) == 3 {
			break
		}
	}
	if len(details) > 0 {
		summary += " (" + strings.Join(details, "; ") + ")"
	}
	return summary
}
