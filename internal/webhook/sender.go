package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/config"
	"github.com/orrn/labelspool/internal/core"
	"github.com/orrn/labelspool/internal/db"
)

type WebhookEvent string

const (
	EventLabelsPrinted WebhookEvent = "labels_printed"
	EventPrintFailed   WebhookEvent = "print_failed"
)

// Events lists every event a webhook can subscribe to.
var Events = []WebhookEvent{EventLabelsPrinted, EventPrintFailed}

var ErrUnknownEvent = errors.New("unknown webhook event")

// ParseEvents validates and deduplicates event names, keeping their order.
func ParseEvents(names []string) ([]WebhookEvent, error) {
	out := make([]WebhookEvent, 0, len(names))
	seen := make(map[WebhookEvent]bool, len(names))
	for _, name := range names {
		event := WebhookEvent(strings.TrimSpace(name))
		known := false
		for _, e := range Events {
			if e == event {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
		}
		if !seen[event] {
			seen[event] = true
			out = append(out, event)
		}
	}
	return out, nil
}

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Test      bool        `json:"test,omitempty"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

type JobItemData struct {
	Code        string `json:"code"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	Qty         int    `json:"qty"`
}

type JobEventData struct {
	JobUUID      string        `json:"job_uuid"`
	Printer      string        `json:"printer"`
	Labels       int           `json:"labels"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	SubmittedBy  string        `json:"submitted_by,omitempty"`
	DurationMs   int64         `json:"duration_ms,omitempty"`
	Items        []JobItemData `json:"items"`
}

// WebhookStore is the subset of the webhook table the sender reads.
type WebhookStore interface {
	ListActiveWebhooksForEvent(ctx context.Context, event string) ([]*db.Webhook, error)
	GetWebhookByID(ctx context.Context, id int64) (*db.Webhook, error)
}

type webhookTask struct {
	webhookID int64
	event     WebhookEvent
	payload   *WebhookPayload
	attempt   int
}

type WebhookSender struct {
	store       WebhookStore
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *webhookTask
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	logger      *zap.Logger
}

func NewWebhookSender(store WebhookStore, cfg config.WebhookConfig, logger *zap.Logger) *WebhookSender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookSender{
		store: store,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount:  cfg.RetryCount,
		retryDelay:  cfg.RetryDelay,
		workerCount: cfg.WorkerCount,
		queue:       make(chan *webhookTask, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		logger:      logger.Named("webhook"),
	}
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *WebhookSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *WebhookSender) SendLabelsPrinted(rec *core.JobRecord) {
	s.enqueue(EventLabelsPrinted, rec.Printer, jobEventData(rec))
}

func (s *WebhookSender) SendPrintFailed(rec *core.JobRecord) {
	s.enqueue(EventPrintFailed, rec.Printer, jobEventData(rec))
}

// SampleJob is the job carried by test deliveries.
func SampleJob(event WebhookEvent, printer string) *core.JobRecord {
	if printer == "" {
		printer = "Sample printer"
	}
	now := time.Now().UTC()
	rec := &core.JobRecord{
		UUID:    "00000000-0000-0000-0000-000000000000",
		Printer: printer,
		Labels:  3,
		Items: []core.PrintItem{
			{Code: "SAMPLE-0001", ProductName: "Sample product", Price: decimal.RequireFromString("12.50"), Qty: 2},
			{Code: "SAMPLE-0002", ProductName: "Sample product", Price: decimal.RequireFromString("12.50"), Qty: 1},
		},
		Status:      core.JobStatusCompleted,
		SubmittedBy: "webhook-test",
		CreatedAt:   now.Add(-1200 * time.Millisecond),
		CompletedAt: now,
	}
	if event == EventPrintFailed {
		rec.Labels = 0
		rec.Status = core.JobStatusFailed
		rec.ErrorMessage = core.ErrNoPrinter.Error()
	}
	return rec
}

// Deliver sends one signed sample event to w and waits for the answer. It
// does not retry.
func (s *WebhookSender) Deliver(ctx context.Context, w *db.Webhook, event WebhookEvent) error {
	printer := ""
	if scope := w.Printers(); len(scope) > 0 {
		printer = scope[0]
	}
	payload := &WebhookPayload{
		Event:     string(event),
		Timestamp: time.Now().UTC(),
		Test:      true,
		Data:      jobEventData(SampleJob(event, printer)),
	}
	return s.sendRequest(ctx, w, payload)
}

func jobEventData(rec *core.JobRecord) *JobEventData {
	data := &JobEventData{
		JobUUID:      rec.UUID,
		Printer:      rec.Printer,
		Labels:       rec.Labels,
		Status:       string(rec.Status),
		ErrorMessage: rec.ErrorMessage,
		SubmittedBy:  rec.SubmittedBy,
		Items:        make([]JobItemData, 0, len(rec.Items)),
	}
	if !rec.CompletedAt.IsZero() {
		data.DurationMs = rec.CompletedAt.Sub(rec.CreatedAt).Milliseconds()
	}
	for _, it := range rec.Items {
		data.Items = append(data.Items, JobItemData{
			Code:        it.Code,
			ProductName: it.ProductName,
			Price:       it.Price.StringFixed(2),
			Qty:         it.Qty,
		})
	}
	return data
}

func (s *WebhookSender) enqueue(event WebhookEvent, printer string, data interface{}) {
	webhooks, err := s.store.ListActiveWebhooksForEvent(context.Background(), string(event))
	if err != nil {
		s.logger.Error("failed to get webhooks for event", zap.String("event", string(event)), zap.Error(err))
		return
	}

	for _, webhook := range webhooks {
		if !webhook.CoversPrinter(printer) {
			continue
		}
		task := &webhookTask{
			webhookID: webhook.ID,
			event:     event,
			payload: &WebhookPayload{
				Event:     string(event),
				Timestamp: time.Now().UTC(),
				Data:      data,
			},
		}

		select {
		case s.queue <- task:
		default:
			s.logger.Warn("queue full, dropping webhook",
				zap.Int64("webhook_id", webhook.ID), zap.String("event", string(event)))
		}
	}
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				s.logger.Error("failed to send webhook",
					zap.Int("worker", id),
					zap.Int64("webhook_id", task.webhookID),
					zap.String("event", string(task.event)),
					zap.Int("attempts", task.attempt),
					zap.Error(err))
			}
		}
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	webhook, err := s.store.GetWebhookByID(context.Background(), task.webhookID)
	if err != nil {
		return fmt.Errorf("get webhook: %w", err)
	}

	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(context.Background(), webhook, task.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			s.logger.Warn("client error, not retrying", zap.Int64("webhook_id", webhook.ID), zap.Error(err))
			return err
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))
			s.logger.Info("retrying webhook",
				zap.Int("attempt", task.attempt),
				zap.Int("max", s.retryCount),
				zap.Int64("webhook_id", webhook.ID),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

type httpError struct {
	StatusCode int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http error: %d", e.StatusCode)
}

func (s *WebhookSender) sendRequest(ctx context.Context, webhook *db.Webhook, payload *WebhookPayload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if webhook.Secret != "" {
		payload.Signature = Sign(dataBytes, webhook.Secret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)
	if payload.Test {
		req.Header.Set("X-Webhook-Test", "true")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &httpError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of the event data.
func Sign(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var he *httpError
	return errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500
}

var _ core.JobEvents = (*WebhookSender)(nil)
