package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Prompter is the operator-facing side of a print dialog: a blocking yes/no
// question and a blocking notice.
type Prompter interface {
	Confirm(ctx context.Context, prompt string) bool
	Notify(ctx context.Context, message string, severity Severity)
}

// PrintDialog walks one print run: collect, review quantities, confirm, print.
type PrintDialog struct {
	session   *SessionManager
	collector *BatchCollector
	prompter  Prompter
	maxQty    int
	logger    *zap.Logger

	mu       sync.Mutex
	open     bool
	printing bool
	printer  string
	editor   *QuantityEditor
}

func NewPrintDialog(session *SessionManager, collector *BatchCollector, prompter Prompter, maxQty int, logger *zap.Logger) *PrintDialog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrintDialog{
		session:   session,
		collector: collector,
		prompter:  prompter,
		maxQty:    maxQty,
		logger:    logger.Named("dialog"),
	}
}

// Prepare collects the sources, connects the bridge and resolves the printer.
// The dialog only opens when all three succeed.
func (d *PrintDialog) Prepare(ctx context.Context, sources []BatchSource) error {
	d.mu.Lock()
	if d.printing {
		d.mu.Unlock()
		return ErrPrintInProgress
	}
	d.mu.Unlock()

	items, err := d.collector.CollectForPrint(ctx, sources, d.prompter.Confirm)
	if err != nil {
		return d.fail(ctx, err)
	}
	printer, err := d.session.ResolvePrinter(ctx)
	if err != nil {
		return d.fail(ctx, err)
	}

	d.mu.Lock()
	d.editor = NewQuantityEditor(items, d.maxQty)
	d.printer = printer
	d.open = true
	d.mu.Unlock()

	d.logger.Info("print dialog opened", zap.Int("items", len(items)), zap.String("printer", printer))
	return nil
}

func (d *PrintDialog) fail(ctx context.Context, err error) error {
	switch Classify(err) {
	case KindCancelled:
	case KindNothingToPrint:
		d.prompter.Notify(ctx, OperatorMessage(err), SeverityWarning)
	default:
		d.prompter.Notify(ctx, OperatorMessage(err), SeverityError)
	}
	return err
}

func (d *PrintDialog) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *PrintDialog) IsPrinting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.printing
}

func (d *PrintDialog) Printer() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.printer
}

// SetPrinter switches the destination and remembers it for later dialogs.
func (d *PrintDialog) SetPrinter(ctx context.Context, name string) error {
	if _, err := d.openEditor(); err != nil {
		return err
	}
	if err := d.session.SetPreferredPrinter(ctx, name); err != nil {
		return err
	}
	d.mu.Lock()
	d.printer = name
	d.mu.Unlock()
	return nil
}

func (d *PrintDialog) openEditor() (*QuantityEditor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, ErrDialogClosed
	}
	if d.printing {
		return nil, ErrPrintInProgress
	}
	return d.editor, nil
}

func (d *PrintDialog) SetQuantity(code string, q int) (int, error) {
	e, err := d.openEditor()
	if err != nil {
		return 0, err
	}
	return e.Set(code, q)
}

func (d *PrintDialog) SetQuantities(quantities map[string]int) error {
	e, err := d.openEditor()
	if err != nil {
		return err
	}
	return e.SetAll(quantities)
}

func (d *PrintDialog) Increment(code string) (int, error) {
	e, err := d.openEditor()
	if err != nil {
		return 0, err
	}
	return e.Increment(code)
}

func (d *PrintDialog) Decrement(code string) (int, error) {
	e, err := d.openEditor()
	if err != nil {
		return 0, err
	}
	return e.Decrement(code)
}

func (d *PrintDialog) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.editor == nil {
		return 0
	}
	return d.editor.Total()
}

func (d *PrintDialog) Items() []PrintItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.editor == nil {
		return nil
	}
	return d.editor.Items()
}

// Print asks for confirmation and submits the job. The dialog closes on
// success and stays open on failure so the operator can retry.
func (d *PrintDialog) Print(ctx context.Context) (*JobRecord, error) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil, ErrDialogClosed
	}
	if d.printing {
		d.mu.Unlock()
		return nil, ErrPrintInProgress
	}
	editor, printer := d.editor, d.printer
	d.printing = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.printing = false
		d.mu.Unlock()
	}()

	total := editor.Total()
	if total == 0 {
		d.prompter.Notify(ctx, "All quantities are zero. Set at least one quantity to print.", SeverityWarning)
		return nil, ErrNothingToPrint
	}

	if !d.prompter.Confirm(ctx, fmt.Sprintf("Print %d labels on %s?", total, printer)) {
		return nil, ErrCancelled
	}

	rec, err := d.session.Submit(ctx, printer, editor.Items(), editor.Quantities())
	if err != nil {
		if errors.Is(err, ErrPrintInProgress) {
			d.prompter.Notify(ctx, "Another print job is still being sent. Wait for it to finish and try again.", SeverityWarning)
			return rec, err
		}
		return rec, d.fail(ctx, err)
	}

	d.mu.Lock()
	d.open = false
	d.editor = nil
	d.mu.Unlock()

	d.prompter.Notify(ctx, fmt.Sprintf("Sent %d labels to %s.", rec.Labels, printer), SeverityInfo)
	return rec, nil
}

// Close discards the dialog. It is refused while a job is being sent.
func (d *PrintDialog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.printing {
		return ErrPrintInProgress
	}
	d.open = false
	d.editor = nil
	return nil
}
