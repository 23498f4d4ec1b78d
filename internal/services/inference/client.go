package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/CharadesAI/charadesai-sub000/internal/api"
	"github.com/CharadesAI/charadesai-sub000/internal/config"
	"github.com/CharadesAI/charadesai-sub000/internal/middleware"
	"github.com/CharadesAI/charadesai-sub000/internal/models"
	"github.com/CharadesAI/charadesai-sub000/internal/services/cache"
	"github.com/sirupsen/logrus"
)

// ErrJobFailed is returned when the server reports a terminal "failed"
// status for an async job. It is a normal outcome, not a transport error.
var ErrJobFailed = errors.New("inference job failed")

// Client submits conversational inference requests. A request either
// completes synchronously (HTTP 200) or is accepted as an async job
// (HTTP 202), in which case the client polls the job status endpoint until
// a terminal state, the poll deadline, or cancellation.
type Client struct {
	api          *api.Client
	cache        cache.Service
	metrics      *middleware.Metrics
	logger       *logrus.Logger
	maxTokens    int
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewClient creates an inference client
func NewClient(
	cfg *config.ChatConfig,
	apiClient *api.Client,
	cacheService cache.Service,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Client {
	return &Client{
		api:          apiClient,
		cache:        cacheService,
		metrics:      metrics,
		logger:       logger,
		maxTokens:    cfg.MaxTokens,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
	}
}

// Generate submits the message history and resolves the assistant's reply,
// waiting out an async job if the server accepts rather than answers.
func (c *Client) Generate(ctx context.Context, messages []models.Message) (string, error) {
	if answer, found := c.cache.Get(ctx, messages); found {
		c.metrics.RecordCacheHit()
		return answer, nil
	}
	c.metrics.RecordCacheMiss()

	start := time.Now()

	status, raw, err := c.api.Post(ctx, "/ai/generate", models.GenerateRequest{
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}, "")
	if err != nil {
		c.metrics.RecordInference("sync", "error", time.Since(start))
		return "", err
	}

	var resp models.GenerateResponse
	if raw != nil {
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.metrics.RecordInference("sync", "error", time.Since(start))
			return "", fmt.Errorf("failed to parse generate response: %w", err)
		}
	}

	switch {
	case status == http.StatusOK && resp.Status == models.GenerateStatusSuccess:
		c.logger.WithField("duration", time.Since(start)).Debug("Inference completed synchronously")
		c.metrics.RecordInference("sync", "success", time.Since(start))
		c.cache.Set(ctx, messages, resp.Data.Result)
		return resp.Data.Result, nil

	case status == http.StatusAccepted && resp.Status == models.GenerateStatusAccepted && resp.Data.JobID != "":
		c.logger.WithField("job_id", resp.Data.JobID).Debug("Inference accepted, polling for completion")
		result, err := c.pollJob(ctx, resp.Data.JobID)
		if err != nil {
			c.metrics.RecordInference("async", "error", time.Since(start))
			return "", err
		}
		c.metrics.RecordInference("async", "success", time.Since(start))
		c.cache.Set(ctx, messages, result)
		return result, nil

	default:
		c.metrics.RecordInference("sync", "error", time.Since(start))
		return "", fmt.Errorf("unexpected generate response: status %d, body status %q", status, resp.Status)
	}
}

// pollJob polls the job status endpoint on a fixed interval until the job
// reports completed or failed. Polling is bounded by the configured poll
// timeout; cancelling ctx stops the loop immediately.
func (c *Client) pollJob(ctx context.Context, jobID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	path := fmt.Sprintf("/ai/jobs/%s/status", jobID)

	for {
		select {
		case <-ctx.Done():
			c.logger.WithFields(logrus.Fields{
				"job_id": jobID,
				"reason": ctx.Err(),
			}).Warn("Stopped polling job before a terminal status")
			c.metrics.RecordJobOutcome("abandoned")
			return "", fmt.Errorf("gave up waiting for job %s: %w", jobID, ctx.Err())

		case <-ticker.C:
			c.metrics.RecordPollTick()

			raw, err := c.api.GetJSON(ctx, path, "")
			if err != nil {
				// A failed poll tick terminates the job from our side.
				c.metrics.RecordJobOutcome("error")
				return "", fmt.Errorf("job status poll failed: %w", err)
			}

			var status models.JobStatusResponse
			if raw != nil {
				if err := json.Unmarshal(raw, &status); err != nil {
					c.metrics.RecordJobOutcome("error")
					return "", fmt.Errorf("failed to parse job status: %w", err)
				}
			}

			switch status.Data.Status {
			case models.JobStatusCompleted:
				c.logger.WithField("job_id", jobID).Debug("Job completed")
				c.metrics.RecordJobOutcome("completed")
				return status.Data.Result, nil
			case models.JobStatusFailed:
				c.logger.WithField("job_id", jobID).Warn("Job failed")
				c.metrics.RecordJobOutcome("failed")
				return "", ErrJobFailed
			default:
				c.logger.WithFields(logrus.Fields{
					"job_id": jobID,
					"status": status.Data.Status,
				}).Debug("Job still processing")
			}
		}
	}
}
