package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelspool/internal/core"
)

type fakeSpooler struct {
	mu       sync.Mutex
	requests []wsRequest
	prints   []printParams
	failCall string
	silent   bool
	hangup   bool
}

func (s *fakeSpooler) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if op != ws.OpText {
				continue
			}

			var req wsRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}

			s.mu.Lock()
			s.requests = append(s.requests, req)
			silent, hangup := s.silent, s.hangup
			failCall := s.failCall
			s.mu.Unlock()
			if hangup {
				return
			}
			if silent {
				continue
			}

			resp := map[string]interface{}{"uid": req.UID}
			switch {
			case req.Call == failCall:
				resp["error"] = "printer is out of paper"
			case req.Call == callFindPrinters:
				resp["result"] = []string{"Zebra ZD421", "TSC TE310"}
			case req.Call == callDefaultPrinter:
				resp["result"] = "TSC TE310"
			case req.Call == callPrint:
				raw, _ := json.Marshal(req.Params)
				var params printParams
				_ = json.Unmarshal(raw, &params)
				s.mu.Lock()
				s.prints = append(s.prints, params)
				s.mu.Unlock()
				resp["result"] = nil
			}

			out, _ := json.Marshal(resp)
			if err := wsutil.WriteServerMessage(conn, ws.OpText, out); err != nil {
				return
			}
		}
	}
}

func startSpooler(t *testing.T, s *fakeSpooler) string {
	t.Helper()
	srv := httptest.NewServer(s.handler(t))
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestWebsocketBridgeRoundTrip(t *testing.T) {
	spooler := &fakeSpooler{}
	b := NewWebsocketBridge(startSpooler(t, spooler), time.Second, 2*time.Second, nil)
	ctx := context.Background()

	require.NoError(t, b.Connect(ctx))
	defer b.Close()
	assert.True(t, b.IsConnected())

	printers, err := b.Printers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zebra ZD421", "TSC TE310"}, printers)

	def, err := b.DefaultPrinter(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TSC TE310", def)

	job := &core.PrintJob{
		Config:   core.JobConfig{Printer: "TSC TE310", WidthMM: 39, HeightMM: 25, DPI: 300, ColorType: core.ColorBlackWhite},
		Payloads: []string{"AAAA", "AAAA", "BBBB"},
	}
	require.NoError(t, b.Print(ctx, job))

	spooler.mu.Lock()
	defer spooler.mu.Unlock()
	require.Len(t, spooler.prints, 1)
	got := spooler.prints[0]
	assert.Equal(t, job.Config, got.Config)
	require.Len(t, got.Data, 3)
	assert.Equal(t, "BBBB", got.Data[2].Data)
	assert.Equal(t, "base64", got.Data[0].Flavor)
}

func TestWebsocketBridgeRemoteError(t *testing.T) {
	spooler := &fakeSpooler{failCall: callPrint}
	b := NewWebsocketBridge(startSpooler(t, spooler), time.Second, 2*time.Second, nil)
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))
	defer b.Close()

	err := b.Print(ctx, &core.PrintJob{Payloads: []string{"AAAA"}})
	require.EqualError(t, err, "printer is out of paper")
	assert.Equal(t, core.KindOther, core.Classify(err))
}

func TestWebsocketBridgeRequestTimeout(t *testing.T) {
	spooler := &fakeSpooler{silent: true}
	b := NewWebsocketBridge(startSpooler(t, spooler), time.Second, 100*time.Millisecond, nil)
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))
	defer b.Close()

	_, err := b.Printers(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebsocketBridgeUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws://" + strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	b := NewWebsocketBridge(url, time.Second, time.Second, nil)
	err := b.Connect(context.Background())
	require.ErrorIs(t, err, core.ErrBridgeUnavailable)
	assert.False(t, b.IsConnected())

	_, err = b.Printers(context.Background())
	assert.ErrorIs(t, err, core.ErrBridgeUnavailable)
}

func TestWebsocketBridgeServerHangsUp(t *testing.T) {
	spooler := &fakeSpooler{hangup: true}
	b := NewWebsocketBridge(startSpooler(t, spooler), time.Second, 2*time.Second, nil)
	require.NoError(t, b.Connect(context.Background()))

	_, err := b.Printers(context.Background())
	require.ErrorIs(t, err, core.ErrBridgeUnavailable)
	assert.Eventually(t, func() bool { return !b.IsConnected() }, 2*time.Second, 10*time.Millisecond)
}
