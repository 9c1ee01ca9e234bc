package db

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PrintJob struct {
	ID           int64      `json:"id"`
	UUID         string     `json:"uuid"`
	Printer      string     `json:"printer"`
	Labels       int        `json:"labels"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SubmittedBy  string     `json:"submitted_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type PrintJobItem struct {
	ID          int64           `json:"id"`
	JobID       int64           `json:"job_id"`
	Position    int             `json:"position"`
	Code        string          `json:"code"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Qty         int             `json:"qty"`
}

type PrintCounter struct {
	ID      int64     `json:"id"`
	Printer string    `json:"printer"`
	Date    time.Time `json:"date"`
	Count   int64     `json:"count"`
}

type Webhook struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Secret       string    `json:"secret,omitempty"`
	EventsJSON   string    `json:"events_json"`
	PrintersJSON string    `json:"printers_json"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
}

func decodeList(raw string) []string {
	var out []string
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &out)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func (w *Webhook) Events() []string {
	return decodeList(w.EventsJSON)
}

// Printers is the printer scope of the webhook. Empty means every printer.
func (w *Webhook) Printers() []string {
	return decodeList(w.PrintersJSON)
}

func (w *Webhook) CoversPrinter(printer string) bool {
	scope := w.Printers()
	if len(scope) == 0 {
		return true
	}
	for _, p := range scope {
		if p == printer {
			return true
		}
	}
	return false
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuditLog struct {
	ID          int64     `json:"id"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	DetailsJSON string    `json:"details_json"`
	IPAddress   string    `json:"ip_address"`
	CreatedAt   time.Time `json:"created_at"`
}

type JobFilter struct {
	Printer  string
	Status   string
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

type AuditFilter struct {
	Action     string
	EntityType string
	EntityID   string
}
