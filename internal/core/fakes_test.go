package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelspool/internal/config"
)

func newTestRenderer(t *testing.T) *LabelRenderer {
	t.Helper()
	r, err := NewLabelRenderer(LayoutFromConfig(config.Defaults().Label))
	require.NoError(t, err)
	return r
}

func item(code string, qty int) PrintItem {
	return PrintItem{Code: code, ProductName: "Item " + code, Price: decimal.NewFromInt(100), Qty: qty}
}

type fakeLookup struct {
	codes map[int64][]string
	errs  map[int64]error
	calls []int64
}

func (f *fakeLookup) ActiveBarcodes(_ context.Context, batchID int64) ([]string, error) {
	f.calls = append(f.calls, batchID)
	if err := f.errs[batchID]; err != nil {
		return nil, err
	}
	return f.codes[batchID], nil
}

type fakeBridge struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	connects   atomic.Int32
	release    chan struct{}
	printers   []string
	def        string
	defErr     error
	printErr   error
	jobs       []*PrintJob
	printStart chan struct{}
	printGate  chan struct{}
}

func (b *fakeBridge) Connect(ctx context.Context) error {
	b.connects.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.connectErr != nil {
		return b.connectErr
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBridge) Printers(context.Context) ([]string, error) {
	return b.printers, nil
}

func (b *fakeBridge) DefaultPrinter(context.Context) (string, error) {
	if b.defErr != nil {
		return "", b.defErr
	}
	return b.def, nil
}

func (b *fakeBridge) Print(_ context.Context, job *PrintJob) error {
	if b.printStart != nil {
		b.printStart <- struct{}{}
	}
	if b.printGate != nil {
		<-b.printGate
	}
	if b.printErr != nil {
		return b.printErr
	}
	b.mu.Lock()
	b.jobs = append(b.jobs, job)
	b.mu.Unlock()
	return nil
}

func (b *fakeBridge) Close() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

type fakePrefs struct {
	name string
	err  error
}

func (p *fakePrefs) PreferredPrinter(context.Context) (string, error) {
	return p.name, p.err
}

func (p *fakePrefs) SetPreferredPrinter(_ context.Context, name string) error {
	p.name = name
	return nil
}

type fakeRecorder struct {
	records []*JobRecord
}

func (r *fakeRecorder) RecordJob(_ context.Context, rec *JobRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type fakeEvents struct {
	printed []*JobRecord
	failed  []*JobRecord
}

func (e *fakeEvents) SendLabelsPrinted(rec *JobRecord) { e.printed = append(e.printed, rec) }
func (e *fakeEvents) SendPrintFailed(rec *JobRecord)   { e.failed = append(e.failed, rec) }

type notice struct {
	message  string
	severity Severity
}

type fakePrompter struct {
	mu      sync.Mutex
	answers []bool
	prompts []string
	notices []notice
}

func (p *fakePrompter) Confirm(_ context.Context, prompt string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if len(p.answers) == 0 {
		return false
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer
}

func (p *fakePrompter) Notify(_ context.Context, message string, severity Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, notice{message: message, severity: severity})
}

var errUpstream = errors.New("upstream returned 500")
