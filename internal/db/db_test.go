package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelspool/internal/core"
)

func setupDB(t *testing.T) {
	t.Helper()
	require.NoError(t, Init(Config{Path: filepath.Join(t.TempDir(), "nested", "test.db")}))
	t.Cleanup(func() { Close() })
}

func TestInitAppliesMigrations(t *testing.T) {
	setupDB(t)

	var version string
	require.NoError(t, GetDB().QueryRow("SELECT version FROM schema_migrations").Scan(&version))
	assert.Equal(t, "001_initial", version)

	require.NoError(t, Close())
	assert.Nil(t, GetDB())
}

func TestSettings(t *testing.T) {
	setupDB(t)
	ctx := context.Background()

	_, err := Settings.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, Settings.SetSetting(ctx, "k", "v1", false))
	require.NoError(t, Settings.SetSetting(ctx, "k", "v2", true))

	s, err := Settings.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", s.Value)
	assert.True(t, s.Encrypted)

	require.NoError(t, Settings.DeleteSetting(ctx, "k"))
	_, err = Settings.GetSetting(ctx, "k")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPreferences(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	prefs := Preferences{}

	name, err := prefs.PreferredPrinter(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, prefs.SetPreferredPrinter(ctx, "Zebra"))
	name, err = prefs.PreferredPrinter(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Zebra", name)
}

func TestJobs(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	job := &PrintJob{UUID: "job-1", Printer: "P1", Labels: 3, Status: "completed", CreatedAt: created}
	items := []*PrintJobItem{
		{Code: "A", ProductName: "Apple", Price: decimal.RequireFromString("12.50"), Qty: 2},
		{Code: "B", ProductName: "Banana", Price: decimal.RequireFromString("3"), Qty: 1},
	}
	require.NoError(t, Jobs.CreateJob(ctx, job, items))
	assert.NotZero(t, job.ID)

	got, err := Jobs.GetJobByUUID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "P1", got.Printer)
	assert.Equal(t, 3, got.Labels)
	assert.Nil(t, got.CompletedAt)

	gotItems, err := Jobs.GetJobItems(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, gotItems, 2)
	assert.Equal(t, "A", gotItems[0].Code)
	assert.Equal(t, 0, gotItems[0].Position)
	assert.True(t, gotItems[0].Price.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "B", gotItems[1].Code)

	_, err = Jobs.GetJobByUUID(ctx, "absent")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, Jobs.CreateJob(ctx, &PrintJob{
		UUID: "job-2", Printer: "P2", Status: "failed", ErrorMessage: "offline", CreatedAt: created.Add(time.Hour),
	}, nil))

	all, err := Jobs.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "job-2", all[0].UUID)

	failed, err := Jobs.ListJobs(ctx, JobFilter{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "offline", failed[0].ErrorMessage)

	byPrinter, err := Jobs.ListJobs(ctx, JobFilter{Printer: "P1"})
	require.NoError(t, err)
	require.Len(t, byPrinter, 1)

	n, err := Jobs.CountJobsByStatus(ctx, "completed")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	deleted, err := Jobs.DeleteJobsBefore(ctx, created.Add(30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	remaining, err := Jobs.GetJobItems(ctx, got.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDuplicateJobUUID(t *testing.T) {
	setupDB(t)
	ctx := context.Background()

	job := &PrintJob{UUID: "dup", Printer: "P", Status: "completed", CreatedAt: time.Now().UTC()}
	require.NoError(t, Jobs.CreateJob(ctx, job, nil))
	assert.Error(t, Jobs.CreateJob(ctx, &PrintJob{UUID: "dup", Printer: "P", Status: "completed", CreatedAt: time.Now().UTC()}, nil))
}

func TestCounters(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Counters.AddLabels(ctx, "P1", day, 5))
	require.NoError(t, Counters.AddLabels(ctx, "P1", day.Add(3*time.Hour), 7))
	require.NoError(t, Counters.AddLabels(ctx, "P2", day.AddDate(0, 0, 1), 1))
	require.NoError(t, Counters.AddLabels(ctx, "P1", day.AddDate(0, 0, 10), 1))

	counters, err := Counters.GetCounters(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, "P1", counters[0].Printer)
	assert.EqualValues(t, 12, counters[0].Count)
	assert.True(t, counters[0].Date.Equal(day))
	assert.Equal(t, "P2", counters[1].Printer)
}

func TestWebhooks(t *testing.T) {
	setupDB(t)
	ctx := context.Background()

	w := &Webhook{Name: "erp", URL: "http://example.invalid/hook", EventsJSON: `["labels_printed"]`, Enabled: true}
	require.NoError(t, Webhooks.CreateWebhook(ctx, w))
	alerts := &Webhook{
		Name: "alerts", URL: "http://example.invalid/alerts", EventsJSON: `["print_failed"]`,
		PrintersJSON: `["Packing"]`, Enabled: true,
	}
	require.NoError(t, Webhooks.CreateWebhook(ctx, alerts))
	require.NoError(t, Webhooks.CreateWebhook(ctx, &Webhook{
		Name: "off", URL: "http://example.invalid/off", EventsJSON: `["labels_printed"]`, Enabled: false,
	}))

	all, err := Webhooks.ListWebhooks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := Webhooks.ListActiveWebhooksForEvent(ctx, "labels_printed")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "erp", active[0].Name)

	stored, err := Webhooks.GetWebhookByID(ctx, alerts.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"print_failed"}, stored.Events())
	assert.Equal(t, []string{"Packing"}, stored.Printers())
	assert.True(t, stored.CoversPrinter("Packing"))
	assert.False(t, stored.CoversPrinter("Front desk"))

	unscoped, err := Webhooks.GetWebhookByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, unscoped.Printers())
	assert.True(t, unscoped.CoversPrinter("Front desk"))

	w.Enabled = false
	require.NoError(t, Webhooks.UpdateWebhook(ctx, w))
	got, err := Webhooks.GetWebhookByID(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, Webhooks.DeleteWebhook(ctx, w.ID))
	assert.ErrorIs(t, Webhooks.DeleteWebhook(ctx, w.ID), sql.ErrNoRows)
	_, err = Webhooks.GetWebhookByID(ctx, w.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestJobStore(t *testing.T) {
	setupDB(t)
	ctx := core.WithOperator(context.Background(), "alice")
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	rec := &core.JobRecord{
		UUID:    "rec-1",
		Printer: "P1",
		Labels:  4,
		Items: []core.PrintItem{
			{Code: "A", ProductName: "Apple", Price: decimal.NewFromInt(1), Qty: 4},
		},
		Status:      core.JobStatusCompleted,
		SubmittedBy: "alice",
		CreatedAt:   now,
		CompletedAt: now.Add(time.Second),
	}
	require.NoError(t, JobStore{}.RecordJob(ctx, rec))

	job, err := Jobs.GetJobByUUID(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, "alice", job.SubmittedBy)

	counters, err := Counters.GetCounters(ctx, now, now)
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.EqualValues(t, 4, counters[0].Count)

	logs, err := Audit.ListAuditLogs(ctx, AuditFilter{EntityID: "rec-1"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "print_job_submitted", logs[0].Action)
	assert.Contains(t, logs[0].DetailsJSON, `"labels":4`)

	failed := &core.JobRecord{UUID: "rec-2", Printer: "P1", Labels: 2, Status: core.JobStatusFailed, CreatedAt: now}
	require.NoError(t, JobStore{}.RecordJob(ctx, failed))

	counters, err = Counters.GetCounters(ctx, now, now)
	require.NoError(t, err)
	assert.EqualValues(t, 4, counters[0].Count)
}
