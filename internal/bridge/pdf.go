package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/core"
)

// PDFPrinterName is the single printer the PDF bridge exposes.
const PDFPrinterName = "PDF"

// WriteLabelsPDF writes one page per payload, each page the size of the label.
func WriteLabelsPDF(w io.Writer, cfg core.JobConfig, payloads []string) error {
	if len(payloads) == 0 {
		return core.ErrNothingToPrint
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: cfg.WidthMM, Ht: cfg.HeightMM},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	names := make(map[string]string)
	for i, payload := range payloads {
		name, ok := names[payload]
		if !ok {
			raw, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				return fmt.Errorf("label %d: failed to decode payload: %w", i+1, err)
			}
			name = fmt.Sprintf("label-%d", len(names))
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(raw))
			names[payload] = name
		}

		pdf.AddPage()
		pdf.ImageOptions(name, 0, 0, cfg.WidthMM, cfg.HeightMM, false, opts, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to build pdf: %w", err)
	}
	return pdf.Output(w)
}

// PDFBridge writes every job to a PDF file in a directory, for setups
// without a thermal printer.
type PDFBridge struct {
	outputDir string
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	ready bool
	seq   int
}

func NewPDFBridge(outputDir string, logger *zap.Logger) *PDFBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFBridge{
		outputDir: outputDir,
		logger:    logger.Named("pdf_bridge"),
		now:       time.Now,
	}
}

func (b *PDFBridge) Connect(context.Context) error {
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBridgeUnavailable, err)
	}
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	return nil
}

func (b *PDFBridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *PDFBridge) Printers(context.Context) ([]string, error) {
	return []string{PDFPrinterName}, nil
}

func (b *PDFBridge) DefaultPrinter(context.Context) (string, error) {
	return PDFPrinterName, nil
}

func (b *PDFBridge) Print(_ context.Context, job *core.PrintJob) error {
	if job.Config.Printer != PDFPrinterName {
		return fmt.Errorf("%w: %s", core.ErrNoPrinter, job.Config.Printer)
	}

	b.mu.Lock()
	b.seq++
	name := fmt.Sprintf("labels-%s-%03d.pdf", b.now().Format("20060102-150405"), b.seq)
	b.mu.Unlock()

	path := filepath.Join(b.outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteLabelsPDF(f, job.Config, job.Payloads); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	b.logger.Info("wrote label pdf", zap.String("path", path), zap.Int("labels", len(job.Payloads)))
	return nil
}

func (b *PDFBridge) Close() error {
	b.mu.Lock()
	b.ready = false
	b.mu.Unlock()
	return nil
}

var _ core.Bridge = (*PDFBridge)(nil)
