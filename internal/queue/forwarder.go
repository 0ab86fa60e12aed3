package queue

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Forwarder hands queued jobs to the simulation worker over HTTP. The worker
// reports progress back through the run callbacks, so a successful hand-off
// is all a job needs; execution failures surface as run transitions, not job
// errors.
type Forwarder struct {
	client *retryablehttp.Client
	url    string
	logger *logrus.Logger
}

// NewForwarder creates a forwarder targeting the worker's execute endpoint
func NewForwarder(url string, logger *logrus.Logger) *Forwarder {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = 30 * time.Second
	client.RetryMax = 2
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	return &Forwarder{
		client: client,
		url:    url,
		logger: logger,
	}
}

// Handle posts the job payload to the worker. It satisfies JobHandler.
func (f *Forwarder) Handle(ctx context.Context, job Job) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(job.Payload))
	if err != nil {
		return fmt.Errorf("failed to build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-ID", job.ID)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker hand-off failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("worker rejected job %s: status %d", job.ID, resp.StatusCode)
	}

	f.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"url":    f.url,
	}).Debug("Job handed to worker")
	return nil
}
