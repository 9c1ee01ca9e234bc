package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/config"
	"github.com/orrn/labelspool/internal/core"
)

var (
	ErrPrinterNotFound    = errors.New("printer not found")
	ErrPrinterOffline     = errors.New("printer is offline")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrInvalidStatus      = errors.New("invalid status response")
	ErrPrinterCannotPrint = errors.New("printer cannot print in current state")
)

const (
	defaultTCPPort          = 9100
	statusCommand           = "\x1b!?"
	statusResponseLength    = 4
	defaultReadWriteTimeout = 10 * time.Second
)

var printerStateMap = map[byte]string{
	'@': "normal",
	'F': "feeding",
	'P': "paused",
	'E': "error",
	'H': "head_open",
	'S': "standby",
	'L': "label_waiting",
	'I': "idle",
}

var warningMap = map[byte]string{
	'@': "none",
	'A': "paper_low",
	'B': "ribbon_low",
	'C': "paper_and_ribbon_low",
}

var errorMap = map[byte]string{
	'@': "none",
	'A': "head_overheat",
	'B': "motor_overheat",
	'C': "head_and_motor_overheat",
	'D': "head_error",
	'E': "cutter_error",
	'F': "rtc_error",
}

var mediaErrorMap = map[byte]string{
	'@': "none",
	'A': "paper_empty",
	'B': "ribbon_empty",
	'C': "paper_and_ribbon_empty",
	'D': "takeup_reel_full",
	'`': "head_open",
}

// PrinterStatus is the decoded answer to the TSPL2 status query.
type PrinterStatus struct {
	Name         string    `json:"name"`
	IsOnline     bool      `json:"is_online"`
	CanPrint     bool      `json:"can_print"`
	PrinterState string    `json:"printer_state"`
	Warning      string    `json:"warning"`
	Error        string    `json:"error"`
	MediaError   string    `json:"media_error"`
	RawStatus    [4]byte   `json:"-"`
	LastChecked  time.Time `json:"last_checked"`
}

// Summary collapses the status into one word for listings.
func (s *PrinterStatus) Summary() string {
	switch {
	case !s.IsOnline:
		return "offline"
	case s.PrinterState == "error" || s.Error != "none" || s.MediaError != "none":
		return "error"
	case s.PrinterState == "paused":
		return "paused"
	case s.PrinterState == "feeding":
		return "busy"
	default:
		return "online"
	}
}

// TSPLBridge drives TSPL2 thermal printers directly over raw TCP. Connections
// are opened lazily and cached per printer.
type TSPLBridge struct {
	printers       map[string]config.BridgePrinterConfig
	names          []string
	defaultPrinter string
	timeout        time.Duration
	logger         *zap.Logger

	mu          sync.RWMutex
	ready       bool
	connections map[string]net.Conn
	sendMu      map[string]*sync.Mutex
}

func NewTSPLBridge(cfg config.BridgeConfig, logger *zap.Logger) *TSPLBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ConnectionTimeout
	if timeout == 0 {
		timeout = defaultReadWriteTimeout
	}

	b := &TSPLBridge{
		printers:       make(map[string]config.BridgePrinterConfig, len(cfg.Printers)),
		defaultPrinter: cfg.DefaultPrinter,
		timeout:        timeout,
		logger:         logger.Named("tspl_bridge"),
		connections:    make(map[string]net.Conn),
		sendMu:         make(map[string]*sync.Mutex),
	}
	for _, p := range cfg.Printers {
		if p.Port == 0 {
			p.Port = defaultTCPPort
		}
		b.printers[p.Name] = p
		b.names = append(b.names, p.Name)
		b.sendMu[p.Name] = &sync.Mutex{}
	}
	sort.Strings(b.names)
	return b
}

// Connect has no spooler to reach; it fails only when no printer is configured.
func (b *TSPLBridge) Connect(context.Context) error {
	if len(b.printers) == 0 {
		return fmt.Errorf("%w: no tspl printers configured", core.ErrBridgeUnavailable)
	}
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	return nil
}

func (b *TSPLBridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

func (b *TSPLBridge) Printers(context.Context) ([]string, error) {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out, nil
}

func (b *TSPLBridge) DefaultPrinter(context.Context) (string, error) {
	if b.defaultPrinter == "" {
		return "", ErrPrinterNotFound
	}
	if _, ok := b.printers[b.defaultPrinter]; !ok {
		return "", fmt.Errorf("%w: %s", ErrPrinterNotFound, b.defaultPrinter)
	}
	return b.defaultPrinter, nil
}

func (b *TSPLBridge) connect(ctx context.Context, name string) (net.Conn, error) {
	p, ok := b.printers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPrinterNotFound, name)
	}

	b.mu.RLock()
	if conn, exists := b.connections[name]; exists && conn != nil {
		b.mu.RUnlock()
		return conn, nil
	}
	b.mu.RUnlock()

	address := net.JoinHostPort(p.Address, fmt.Sprint(p.Port))
	dialer := net.Dialer{Timeout: b.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	b.mu.Lock()
	b.connections[name] = conn
	b.mu.Unlock()

	return conn, nil
}

func (b *TSPLBridge) disconnect(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn, exists := b.connections[name]; exists {
		if conn != nil {
			conn.Close()
		}
		delete(b.connections, name)
	}
}

// Status sends the ESC !? query and decodes the four status bytes.
func (b *TSPLBridge) Status(ctx context.Context, name string) (*PrinterStatus, error) {
	lock, ok := b.sendMu[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPrinterNotFound, name)
	}
	lock.Lock()
	defer lock.Unlock()
	return b.status(ctx, name)
}

func (b *TSPLBridge) status(ctx context.Context, name string) (*PrinterStatus, error) {
	offline := &PrinterStatus{Name: name, LastChecked: time.Now()}

	response, err := b.queryStatus(ctx, name)
	if err != nil {
		// A cached connection may have gone stale; retry once on a fresh one.
		b.disconnect(name)
		response, err = b.queryStatus(ctx, name)
	}
	if err != nil {
		b.disconnect(name)
		return offline, err
	}

	status := parseStatus(response)
	status.Name = name
	status.IsOnline = true
	status.LastChecked = time.Now()
	status.CanPrint = status.PrinterState == "normal" || status.PrinterState == "standby" || status.PrinterState == "idle"
	return status, nil
}

func (b *TSPLBridge) queryStatus(ctx context.Context, name string) ([]byte, error) {
	conn, err := b.connect(ctx, name)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(b.timeout))

	if _, err := conn.Write([]byte(statusCommand)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	response := make([]byte, statusResponseLength)
	if _, err := io.ReadFull(conn, response); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrInvalidStatus
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return response, nil
}

func parseStatus(response []byte) *PrinterStatus {
	status := &PrinterStatus{
		RawStatus: [4]byte{response[0], response[1], response[2], response[3]},
	}
	status.PrinterState = lookupStatus(printerStateMap, response[0])
	status.Warning = lookupStatus(warningMap, response[1])
	status.Error = lookupStatus(errorMap, response[2])
	status.MediaError = lookupStatus(mediaErrorMap, response[3])
	return status
}

func lookupStatus(m map[byte]string, b byte) string {
	if s, ok := m[b]; ok {
		return s
	}
	return "unknown"
}

// Print checks the printer state and sends the job as one TSPL2 stream.
func (b *TSPLBridge) Print(ctx context.Context, job *core.PrintJob) error {
	name := job.Config.Printer
	p, ok := b.printers[name]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNoPrinter, name)
	}

	commands, err := core.NewTSPL2Generator(p.GapMM).GenerateFromPayloads(job.Config, job.Payloads)
	if err != nil {
		return err
	}

	lock := b.sendMu[name]
	lock.Lock()
	defer lock.Unlock()

	status, err := b.status(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPrinterOffline, name, err)
	}
	if !status.CanPrint {
		return fmt.Errorf("%w: %s is %s", ErrPrinterCannotPrint, name, status.PrinterState)
	}

	conn, err := b.connect(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPrinterOffline, name)
	}
	_ = conn.SetDeadline(time.Now().Add(b.timeout))

	if _, err := conn.Write(commands); err != nil {
		b.disconnect(name)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	b.logger.Info("sent tspl job",
		zap.String("printer", name),
		zap.Int("labels", len(job.Payloads)),
		zap.Int("bytes", len(commands)))
	return nil
}

func (b *TSPLBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, conn := range b.connections {
		if conn != nil {
			conn.Close()
		}
		delete(b.connections, name)
	}
	b.ready = false
	return nil
}

var _ core.Bridge = (*TSPLBridge)(nil)
