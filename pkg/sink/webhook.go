package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dbtuneai/pgvacuum/pkg/events"
	"github.com/dbtuneai/pgvacuum/pkg/internal/utils"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

// WebhookSink posts the final run report to an HTTP endpoint. Decision and
// error events are not sent: the report carries their totals.
type WebhookSink struct {
	client  *retryablehttp.Client
	url     string
	timeout time.Duration
	logger  *log.Logger
}

// NewWebhookClient returns the retrying client used for report delivery.
func NewWebhookClient(logger *log.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 5
	client.RetryWaitMax = 10 * time.Second
	client.Logger = &utils.LeveledLogrus{Logger: logger}
	return client
}

func NewWebhookSink(client *retryablehttp.Client, url string, logger *log.Logger) *WebhookSink {
	return &WebhookSink{
		client:  client,
		url:     url,
		timeout: time.Minute,
		logger:  logger,
	}
}

func (s *WebhookSink) Name() string {
	return "webhook"
}

func (s *WebhookSink) Process(ctx context.Context, event events.Event) error {
	report, ok := event.(events.ReportEvent)
	if !ok {
		return nil
	}

	jsonData, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	// Add a timeout context to avoid hanging
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, "POST", s.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		s.logger.Warnf("Failed to send report. Response body: %s", string(body))
		return fmt.Errorf("failed to send report, code: %d", resp.StatusCode)
	}

	s.logger.Infof("Run report sent to %s", s.url)
	return nil
}

func (s *WebhookSink) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}
