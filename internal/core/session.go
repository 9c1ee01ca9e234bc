package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StatePrinting     SessionState = "printing"
)

const (
	defaultRenderWorkers  = 4
	defaultConnectTimeout = 10 * time.Second
)

type operatorKey struct{}

// WithOperator tags ctx with the name of the operator submitting a job.
func WithOperator(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operatorKey{}, name)
}

func OperatorFromContext(ctx context.Context) string {
	name, _ := ctx.Value(operatorKey{}).(string)
	return name
}

type SessionOptions struct {
	Preferences   PrinterPreferences
	Recorder      JobRecorder
	Events        JobEvents
	RenderWorkers int
	// ConnectTimeout bounds a bridge connect attempt. The attempt is shared,
	// so it does not follow any one caller's context.
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// SessionManager owns the process-wide connection to the print bridge.
// Construct it once and share it; concurrent Connect calls share one
// in-flight attempt.
type SessionManager struct {
	bridge   Bridge
	renderer *LabelRenderer
	prefs    PrinterPreferences
	recorder JobRecorder
	events   JobEvents
	workers  int
	timeout  time.Duration
	logger   *zap.Logger

	connect singleflight.Group

	mu       sync.Mutex
	state    SessionState
	printing bool
}

func NewSessionManager(bridge Bridge, renderer *LabelRenderer, opts SessionOptions) *SessionManager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.RenderWorkers
	if workers < 1 {
		workers = defaultRenderWorkers
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return &SessionManager{
		bridge:   bridge,
		renderer: renderer,
		prefs:    opts.Preferences,
		recorder: opts.Recorder,
		events:   opts.Events,
		workers:  workers,
		timeout:  timeout,
		logger:   logger.Named("session"),
		state:    StateDisconnected,
	}
}

func (s *SessionManager) Renderer() *LabelRenderer {
	return s.renderer
}

func (s *SessionManager) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SessionManager) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Connect opens the bridge connection unless it is already open.
func (s *SessionManager) Connect(ctx context.Context) error {
	if s.bridge.IsConnected() {
		s.mu.Lock()
		if !s.printing {
			s.state = StateConnected
		}
		s.mu.Unlock()
		return nil
	}

	_, err, shared := s.connect.Do("connect", func() (interface{}, error) {
		dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		s.setState(StateConnecting)
		if err := s.bridge.Connect(dialCtx); err != nil {
			s.setState(StateDisconnected)
			if errors.Is(err, ErrBridgeUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
		}
		s.setState(StateConnected)
		s.logger.Info("connected to print bridge")
		return nil, nil
	})
	if shared {
		s.logger.Debug("joined in-flight bridge connect")
	}
	return err
}

// Printers lists the printers the bridge knows about.
func (s *SessionManager) Printers(ctx context.Context) ([]string, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	printers, err := s.bridge.Printers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	return printers, nil
}

// ResolvePrinter picks the operator's saved printer if it is still present,
// then the bridge default, then the first enumerated printer.
func (s *SessionManager) ResolvePrinter(ctx context.Context) (string, error) {
	printers, err := s.Printers(ctx)
	if err != nil {
		return "", err
	}

	if s.prefs != nil {
		preferred, err := s.prefs.PreferredPrinter(ctx)
		if err != nil {
			s.logger.Warn("failed to read preferred printer", zap.Error(err))
		} else if preferred != "" && contains(printers, preferred) {
			return preferred, nil
		}
	}

	def, err := s.bridge.DefaultPrinter(ctx)
	if err != nil {
		s.logger.Debug("bridge has no default printer", zap.Error(err))
	} else if def != "" {
		return def, nil
	}

	if len(printers) > 0 {
		return printers[0], nil
	}
	return "", ErrNoPrinter
}

// SetPreferredPrinter stores the operator's choice for later sessions.
func (s *SessionManager) SetPreferredPrinter(ctx context.Context, name string) error {
	printers, err := s.Printers(ctx)
	if err != nil {
		return err
	}
	if !contains(printers, name) {
		return fmt.Errorf("%w: %s", ErrNoPrinter, name)
	}
	if s.prefs == nil {
		return nil
	}
	return s.prefs.SetPreferredPrinter(ctx, name)
}

// NewJobConfig describes the label stock for the bridge: physical size, no
// margins, monochrome and nearest-neighbour scaling.
func (s *SessionManager) NewJobConfig(printer string) JobConfig {
	layout := s.renderer.Layout()
	return JobConfig{
		Printer:       printer,
		WidthMM:       layout.WidthMM,
		HeightMM:      layout.HeightMM,
		DPI:           layout.DPI,
		MarginMM:      0,
		ColorType:     ColorBlackWhite,
		Interpolation: InterpolationNearest,
		Units:         UnitsMillimeters,
	}
}

// BuildJob renders every item with a positive quantity and appends that many
// copies in item order. A single failed label fails the whole job. When qty
// is nil the items' own Qty is used.
func (s *SessionManager) BuildJob(ctx context.Context, printer string, items []PrintItem, qty map[string]int) (*PrintJob, error) {
	counts := make([]int, len(items))
	for i, item := range items {
		if qty != nil {
			counts[i] = qty[item.Code]
		} else {
			counts[i] = item.Qty
		}
	}

	rendered := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, item := range items {
		if counts[i] <= 0 {
			continue
		}
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			label, err := s.renderer.RenderItem(item)
			if err != nil {
				return err
			}
			rendered[i] = label.Base64()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	job := &PrintJob{Config: s.NewJobConfig(printer)}
	for i, payload := range rendered {
		for n := 0; n < counts[i]; n++ {
			job.Payloads = append(job.Payloads, payload)
		}
	}
	if len(job.Payloads) == 0 {
		return nil, ErrNothingToPrint
	}
	return job, nil
}

// Submit renders and sends one job. The returned record is non-nil whenever
// a submission was attempted, including failed ones.
func (s *SessionManager) Submit(ctx context.Context, printer string, items []PrintItem, qty map[string]int) (*JobRecord, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.printing {
		s.mu.Unlock()
		return nil, ErrPrintInProgress
	}
	s.printing = true
	s.state = StatePrinting
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.printing = false
		if s.bridge.IsConnected() {
			s.state = StateConnected
		} else {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
	}()

	rec := &JobRecord{
		UUID:        uuid.NewString(),
		Printer:     printer,
		Items:       itemsWithQty(items, qty),
		SubmittedBy: OperatorFromContext(ctx),
		CreatedAt:   time.Now(),
	}

	job, err := s.BuildJob(ctx, printer, items, qty)
	if err == nil {
		rec.Labels = len(job.Payloads)
		err = s.bridge.Print(ctx, job)
	}
	rec.CompletedAt = time.Now()

	if err != nil {
		rec.Status = JobStatusFailed
		rec.ErrorMessage = err.Error()
		s.logger.Error("print job failed",
			zap.String("job_uuid", rec.UUID),
			zap.String("printer", printer),
			zap.Error(err))
	} else {
		rec.Status = JobStatusCompleted
		s.logger.Info("print job submitted",
			zap.String("job_uuid", rec.UUID),
			zap.String("printer", printer),
			zap.Int("labels", rec.Labels))
	}

	s.finish(ctx, rec)
	return rec, err
}

func (s *SessionManager) finish(ctx context.Context, rec *JobRecord) {
	if s.recorder != nil {
		if err := s.recorder.RecordJob(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn("failed to record print job", zap.String("job_uuid", rec.UUID), zap.Error(err))
		}
	}
	if s.events == nil {
		return
	}
	if rec.Status == JobStatusCompleted {
		s.events.SendLabelsPrinted(rec)
	} else {
		s.events.SendPrintFailed(rec)
	}
}

func (s *SessionManager) Close() error {
	s.setState(StateDisconnected)
	return s.bridge.Close()
}

func itemsWithQty(items []PrintItem, qty map[string]int) []PrintItem {
	out := make([]PrintItem, len(items))
	for i, item := range items {
		if qty != nil {
			item.Qty = qty[item.Code]
		}
		out[i] = item
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
