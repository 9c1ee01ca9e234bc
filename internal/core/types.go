package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PrintItem is one deduplicated unit of print work.
type PrintItem struct {
	Code        string          `json:"code" yaml:"code"`
	ProductName string          `json:"product_name" yaml:"product_name"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Qty         int             `json:"qty" yaml:"qty"`
}

// BatchSource is one upstream origin of unit barcodes, usually an inventory batch.
type BatchSource struct {
	BatchID      int64           `json:"batch_id" yaml:"batch_id"`
	ProductName  string          `json:"product_name" yaml:"product_name"`
	Price        decimal.Decimal `json:"price" yaml:"price"`
	FallbackCode string          `json:"fallback_code,omitempty" yaml:"fallback_code,omitempty"`
}

// BarcodeLookup returns the active unit-level barcodes of a batch.
type BarcodeLookup interface {
	ActiveBarcodes(ctx context.Context, batchID int64) ([]string, error)
}

const (
	ColorBlackWhite      = "blackwhite"
	InterpolationNearest = "nearest-neighbor"
	UnitsMillimeters     = "mm"
)

// JobConfig is the printer-side configuration of a label job.
type JobConfig struct {
	Printer       string  `json:"printer"`
	WidthMM       float64 `json:"width_mm"`
	HeightMM      float64 `json:"height_mm"`
	DPI           int     `json:"dpi"`
	MarginMM      float64 `json:"margin_mm"`
	ColorType     string  `json:"color_type"`
	Interpolation string  `json:"interpolation"`
	Units         string  `json:"units"`
}

// PrintJob is an ordered list of base64 PNG rasters sent as a single print call.
type PrintJob struct {
	Config   JobConfig `json:"config"`
	Payloads []string  `json:"payloads"`
}

// Bridge is the client contract of the local print spooler.
type Bridge interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Printers(ctx context.Context) ([]string, error)
	DefaultPrinter(ctx context.Context) (string, error)
	Print(ctx context.Context, job *PrintJob) error
	Close() error
}

// PrinterPreferences stores the operator's last chosen printer.
type PrinterPreferences interface {
	PreferredPrinter(ctx context.Context) (string, error)
	SetPreferredPrinter(ctx context.Context, name string) error
}

type JobStatus string

const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord is the audit trail of one submission.
type JobRecord struct {
	UUID         string
	Printer      string
	Labels       int
	Items        []PrintItem
	Status       JobStatus
	ErrorMessage string
	SubmittedBy  string
	CreatedAt    time.Time
	CompletedAt  time.Time
}

// JobRecorder persists job history.
type JobRecorder interface {
	RecordJob(ctx context.Context, rec *JobRecord) error
}

// JobEvents is notified after every submission attempt.
type JobEvents interface {
	SendLabelsPrinted(rec *JobRecord)
	SendPrintFailed(rec *JobRecord)
}
