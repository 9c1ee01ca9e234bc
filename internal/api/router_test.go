package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelspool/internal/api/middleware"
	"github.com/orrn/labelspool/internal/bridge"
	"github.com/orrn/labelspool/internal/config"
	"github.com/orrn/labelspool/internal/core"
	"github.com/orrn/labelspool/internal/db"
	"github.com/orrn/labelspool/internal/webhook"
)

type mapLookup map[int64][]string

func (m mapLookup) ActiveBarcodes(_ context.Context, batchID int64) ([]string, error) {
	return m[batchID], nil
}

func newTestRouter(t *testing.T, authEnabled bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	require.NoError(t, db.Init(db.Config{Path: filepath.Join(t.TempDir(), "api.db")}))
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	cfg.Auth.Enabled = authEnabled

	renderer, err := core.NewLabelRenderer(core.LayoutFromConfig(cfg.Label))
	require.NoError(t, err)

	session := core.NewSessionManager(bridge.NewPDFBridge(t.TempDir(), nil), renderer, core.SessionOptions{
		Preferences: db.Preferences{},
		Recorder:    db.JobStore{},
	})
	lookup := mapLookup{
		1: {"A1", "A2"},
		2: {},
		3: {"B1", "B2", "B3", "B4"},
	}
	collector := core.NewBatchCollector(lookup, 3, nil)

	auth, err := middleware.NewAuthMiddleware(authEnabled, nil)
	require.NoError(t, err)

	return NewRouter(Deps{
		Config:    cfg,
		Session:   session,
		Collector: collector,
		Auth:      auth,
		Webhooks:  webhook.NewWebhookSender(db.Webhooks, cfg.Webhook, nil),
	})
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, false)
	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLabelPreview(t *testing.T) {
	r := newTestRouter(t, false)

	w := do(t, r, http.MethodPost, "/api/labels/preview", map[string]string{
		"code": "ABC123", "product_name": "Green Tea", "price": "12.50",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = do(t, r, http.MethodPost, "/api/labels/preview", map[string]string{
		"code": "ABC123", "price": "1", "format": "pdf",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = do(t, r, http.MethodPost, "/api/labels/preview", map[string]string{"product_name": "no code"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/labels/preview", map[string]string{"code": "X", "price": "-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "render_error", decode(t, w)["error"])
}

func TestPrintDialogFlow(t *testing.T) {
	r := newTestRouter(t, false)

	w := do(t, r, http.MethodPost, "/api/print-dialogs", map[string]interface{}{
		"sources": []map[string]interface{}{
			{"batch_id": 1, "product_name": "Green Tea", "price": "12.5"},
			{"batch_id": 2, "product_name": "Honey", "price": "4", "fallback_code": "FB-2"},
		},
	}, "X-Operator", "alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode(t, w)
	id := created["id"].(string)
	assert.Equal(t, "PDF", created["printer"])
	assert.EqualValues(t, 3, created["total"])
	items := created["items"].([]interface{})
	require.Len(t, items, 3)
	assert.Equal(t, "A1", items[0].(map[string]interface{})["code"])
	assert.Equal(t, "FB-2", items[2].(map[string]interface{})["code"])

	w = do(t, r, http.MethodPut, "/api/print-dialogs/"+id+"/quantities", map[string]interface{}{
		"quantities": map[string]int{"A1": 2, "FB-2": 0},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode(t, w)["total"])

	w = do(t, r, http.MethodPost, "/api/print-dialogs/"+id+"/items/A2/increment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, decode(t, w)["total"])

	w = do(t, r, http.MethodPost, "/api/print-dialogs/"+id+"/items/A2/decrement", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["total"])

	w = do(t, r, http.MethodPut, "/api/print-dialogs/"+id+"/quantities", map[string]interface{}{
		"quantities": map[string]int{"A1": 50, "NOPE": 1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/print-dialogs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["total"])

	w = do(t, r, http.MethodPost, "/api/print-dialogs/"+id+"/print", map[string]bool{"confirm": false})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "confirmation_required", body["error"])
	assert.Equal(t, "Print 3 labels on PDF?", body["message"])

	w = do(t, r, http.MethodPost, "/api/print-dialogs/"+id+"/print", map[string]bool{"confirm": true}, "X-Operator", "alice")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	printed := decode(t, w)
	assert.EqualValues(t, 3, printed["labels"])
	assert.Equal(t, "completed", printed["status"])
	jobUUID := printed["job_uuid"].(string)

	w = do(t, r, http.MethodGet, "/api/print-dialogs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/jobs/"+jobUUID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	job := decode(t, w)
	assert.Equal(t, "alice", job["submitted_by"])
	assert.Len(t, job["items"], 3)

	w = do(t, r, http.MethodGet, "/api/jobs?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["jobs"], 1)

	w = do(t, r, http.MethodGet, "/api/jobs/counters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["total"])
}

func TestPrintDialogGates(t *testing.T) {
	r := newTestRouter(t, false)

	t.Run("nothing to print", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/api/print-dialogs", map[string]interface{}{
			"sources": []map[string]interface{}{{"batch_id": 2, "product_name": "Empty", "price": "1"}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "nothing_to_print", decode(t, w)["error"])
	})

	sources := []map[string]interface{}{{"batch_id": 3, "product_name": "Bulk", "price": "2"}}

	t.Run("soft limit needs confirmation", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/api/print-dialogs", map[string]interface{}{"sources": sources})
		require.Equal(t, http.StatusConflict, w.Code)
		body := decode(t, w)
		assert.Equal(t, "confirmation_required", body["error"])
		assert.Contains(t, body["message"], "4 labels")
	})

	t.Run("confirmed soft limit opens", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/api/print-dialogs", map[string]interface{}{
			"sources": sources, "confirm_large": true,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		id := decode(t, w)["id"].(string)

		w = do(t, r, http.MethodDelete, "/api/print-dialogs/"+id, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = do(t, r, http.MethodDelete, "/api/print-dialogs/"+id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("all quantities zero", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/api/print-dialogs", map[string]interface{}{
			"sources": []map[string]interface{}{{"batch_id": 1, "product_name": "Tea", "price": "1"}},
		})
		require.Equal(t, http.StatusCreated, w.Code)
		id := decode(t, w)["id"].(string)

		w = do(t, r, http.MethodPut, "/api/print-dialogs/"+id+"/quantities", map[string]interface{}{
			"quantities": map[string]int{"A1": 0, "A2": 0},
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = do(t, r, http.MethodPost, "/api/print-dialogs/"+id+"/print", map[string]bool{"confirm": true})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		w = do(t, r, http.MethodGet, "/api/print-dialogs/"+id, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestPrinters(t *testing.T) {
	r := newTestRouter(t, false)

	w := do(t, r, http.MethodGet, "/api/printers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []interface{}{"PDF"}, body["printers"])
	assert.Equal(t, "PDF", body["default"])

	w = do(t, r, http.MethodPut, "/api/printers/default", map[string]string{"printer": "Missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPut, "/api/printers/default", map[string]string{"printer": "PDF"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PDF", decode(t, w)["preferred_printer"])

	w = do(t, r, http.MethodGet, "/api/printers/status/PDF", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestWebhookRoutes(t *testing.T) {
	r := newTestRouter(t, false)

	received := make(chan *http.Request, 2)
	bodies := make(chan []byte, 2)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(req.Body)
		received <- req
		bodies <- buf.Bytes()
	}))
	defer receiver.Close()

	invalid := []map[string]interface{}{
		{"name": "erp", "url": receiver.URL, "events": []string{"job_started"}},
		{"name": "erp", "url": receiver.URL, "events": []string{}},
		{"name": "erp", "url": receiver.URL, "events": []string{"labels_printed"}, "printers": []string{" "}},
		{"url": receiver.URL, "events": []string{"labels_printed"}},
	}
	for _, body := range invalid {
		w := do(t, r, http.MethodPost, "/api/webhooks", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	}

	w := do(t, r, http.MethodPost, "/api/webhooks", map[string]interface{}{
		"name":     "erp",
		"url":      receiver.URL,
		"secret":   "k",
		"events":   []string{"labels_printed", "labels_printed"},
		"printers": []string{"PDF"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := int64(created["id"].(float64))
	assert.Equal(t, []interface{}{"labels_printed"}, created["events"])
	assert.Equal(t, []interface{}{"PDF"}, created["printers"])
	assert.Equal(t, true, created["signed"])
	assert.NotContains(t, created, "secret")

	path := "/api/webhooks/" + strconv.FormatInt(id, 10)

	w = do(t, r, http.MethodPut, path, map[string]interface{}{
		"events":   []string{"labels_printed", "print_failed"},
		"printers": []string{},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)
	assert.Equal(t, "erp", updated["name"])
	assert.Equal(t, []interface{}{"labels_printed", "print_failed"}, updated["events"])
	assert.Equal(t, []interface{}{}, updated["printers"])

	w = do(t, r, http.MethodPost, path+"/test", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "labels_printed", result["event"])
	req := <-received
	assert.Equal(t, "labels_printed", req.Header.Get("X-Webhook-Event"))
	assert.NotEmpty(t, req.Header.Get("X-Webhook-Signature"))
	var payload struct {
		Event string               `json:"event"`
		Test  bool                 `json:"test"`
		Data  webhook.JobEventData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-bodies, &payload))
	assert.True(t, payload.Test)
	assert.Equal(t, "completed", payload.Data.Status)
	assert.NotEmpty(t, payload.Data.Items)

	w = do(t, r, http.MethodPost, path+"/test", map[string]string{"event": "print_failed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "print_failed", decode(t, w)["event"])
	req = <-received
	assert.Equal(t, "print_failed", req.Header.Get("X-Webhook-Event"))
	<-bodies

	w = do(t, r, http.MethodPost, path+"/test", map[string]string{"event": "job_completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/webhooks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(t, r, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodPost, path+"/test", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t, true)

	w := do(t, r, http.MethodGet, "/api/printers", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodGet, "/api/auth/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["setup_required"])

	w = do(t, r, http.MethodPost, "/api/auth/setup", map[string]string{"password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/auth/login", map[string]string{"password": "wrong", "operator": "bob"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/api/auth/login", map[string]string{"password": "secret1", "operator": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	w = do(t, r, http.MethodGet, "/api/printers", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
}
