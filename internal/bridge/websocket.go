package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/core"
)

const (
	callFindPrinters   = "printers.find"
	callDefaultPrinter = "printers.getDefault"
	callPrint          = "print"
)

var errConnectionClosed = errors.New("bridge connection closed")

type wsRequest struct {
	UID    string      `json:"uid"`
	Call   string      `json:"call"`
	Params interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	UID    string          `json:"uid"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type printParams struct {
	Config core.JobConfig `json:"config"`
	Data   []printData    `json:"data"`
}

type printData struct {
	Type   string `json:"type"`
	Format string `json:"format"`
	Flavor string `json:"flavor"`
	Data   string `json:"data"`
}

type wsConn struct {
	net.Conn
	r io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// WebsocketBridge talks JSON request/response to the local print spooler.
// Responses are matched to requests by uid, so calls may overlap.
type WebsocketBridge struct {
	url            string
	dialTimeout    time.Duration
	requestTimeout time.Duration
	logger         *zap.Logger

	mu      sync.Mutex
	conn    *wsConn
	pending map[string]chan wsResponse
	nextUID uint64

	writeMu sync.Mutex
}

func NewWebsocketBridge(url string, dialTimeout, requestTimeout time.Duration, logger *zap.Logger) *WebsocketBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketBridge{
		url:            url,
		dialTimeout:    dialTimeout,
		requestTimeout: requestTimeout,
		logger:         logger.Named("ws_bridge"),
		pending:        make(map[string]chan wsResponse),
	}
}

func (b *WebsocketBridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.conn != nil {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	dialer := ws.Dialer{Timeout: b.dialTimeout}
	conn, br, _, err := dialer.Dial(ctx, b.url)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrBridgeUnavailable, err)
	}

	c := &wsConn{Conn: conn, r: conn}
	if br != nil {
		c.r = io.MultiReader(br, conn)
	}

	b.mu.Lock()
	b.conn = c
	b.mu.Unlock()

	go b.readLoop(c)

	b.logger.Info("connected to print bridge", zap.String("url", b.url))
	return nil
}

func (b *WebsocketBridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *WebsocketBridge) readLoop(c *wsConn) {
	for {
		data, op, err := wsutil.ReadServerData(c)
		if err != nil {
			b.drop(c, err)
			return
		}
		if op != ws.OpText {
			continue
		}

		var resp wsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			b.logger.Warn("malformed bridge message", zap.Error(err))
			continue
		}

		b.mu.Lock()
		ch, ok := b.pending[resp.UID]
		delete(b.pending, resp.UID)
		b.mu.Unlock()

		if !ok {
			b.logger.Debug("unsolicited bridge message", zap.String("uid", resp.UID))
			continue
		}
		ch <- resp
	}
}

// drop forgets c and fails every call still waiting on it.
func (b *WebsocketBridge) drop(c *wsConn, cause error) {
	b.mu.Lock()
	if b.conn != c {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	pending := b.pending
	b.pending = make(map[string]chan wsResponse)
	b.mu.Unlock()

	_ = c.Close()
	for uid, ch := range pending {
		ch <- wsResponse{UID: uid, Error: errConnectionClosed.Error()}
	}
	if !errors.Is(cause, net.ErrClosed) {
		b.logger.Warn("print bridge connection lost", zap.Error(cause))
	}
}

func (b *WebsocketBridge) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	b.mu.Lock()
	c := b.conn
	if c == nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: not connected", core.ErrBridgeUnavailable)
	}
	b.nextUID++
	uid := strconv.FormatUint(b.nextUID, 10)
	ch := make(chan wsResponse, 1)
	b.pending[uid] = ch
	b.mu.Unlock()

	payload, err := json.Marshal(wsRequest{UID: uid, Call: method, Params: params})
	if err != nil {
		b.forget(uid)
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	b.writeMu.Lock()
	err = wsutil.WriteClientText(c, payload)
	b.writeMu.Unlock()
	if err != nil {
		b.forget(uid)
		b.drop(c, err)
		return fmt.Errorf("%w: %v", core.ErrBridgeUnavailable, err)
	}

	if b.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.requestTimeout)
		defer cancel()
	}

	select {
	case resp := <-ch:
		if resp.Error == errConnectionClosed.Error() {
			return fmt.Errorf("%w: %s", core.ErrBridgeUnavailable, resp.Error)
		}
		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		b.forget(uid)
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (b *WebsocketBridge) forget(uid string) {
	b.mu.Lock()
	delete(b.pending, uid)
	b.mu.Unlock()
}

func (b *WebsocketBridge) Printers(ctx context.Context) ([]string, error) {
	var printers []string
	if err := b.call(ctx, callFindPrinters, nil, &printers); err != nil {
		return nil, err
	}
	return printers, nil
}

func (b *WebsocketBridge) DefaultPrinter(ctx context.Context) (string, error) {
	var name string
	if err := b.call(ctx, callDefaultPrinter, nil, &name); err != nil {
		return "", err
	}
	return name, nil
}

func (b *WebsocketBridge) Print(ctx context.Context, job *core.PrintJob) error {
	params := printParams{Config: job.Config, Data: make([]printData, len(job.Payloads))}
	for i, p := range job.Payloads {
		params.Data[i] = printData{Type: "pixel", Format: "image", Flavor: "base64", Data: p}
	}
	return b.call(ctx, callPrint, params, nil)
}

func (b *WebsocketBridge) Close() error {
	b.mu.Lock()
	c := b.conn
	b.mu.Unlock()
	if c == nil {
		return nil
	}
	_ = wsutil.WriteClientMessage(c, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	b.drop(c, net.ErrClosed)
	return nil
}

var _ core.Bridge = (*WebsocketBridge)(nil)
