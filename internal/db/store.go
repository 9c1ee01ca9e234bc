package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/orrn/labelspool/internal/core"
)

const SettingPreferredPrinter = "preferred_printer"

// Preferences keeps the operator's printer choice in the settings table.
type Preferences struct{}

func (Preferences) PreferredPrinter(ctx context.Context) (string, error) {
	s, err := Settings.GetSetting(ctx, SettingPreferredPrinter)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

func (Preferences) SetPreferredPrinter(ctx context.Context, name string) error {
	return Settings.SetSetting(ctx, SettingPreferredPrinter, name, false)
}

// JobStore records submitted jobs, their items, the daily counters and an
// audit entry.
type JobStore struct{}

func (JobStore) RecordJob(ctx context.Context, rec *core.JobRecord) error {
	job := &PrintJob{
		UUID:         rec.UUID,
		Printer:      rec.Printer,
		Labels:       rec.Labels,
		Status:       string(rec.Status),
		ErrorMessage: rec.ErrorMessage,
		SubmittedBy:  rec.SubmittedBy,
		CreatedAt:    rec.CreatedAt,
	}
	if !rec.CompletedAt.IsZero() {
		completed := rec.CompletedAt
		job.CompletedAt = &completed
	}

	items := make([]*PrintJobItem, len(rec.Items))
	for i, it := range rec.Items {
		items[i] = &PrintJobItem{Code: it.Code, ProductName: it.ProductName, Price: it.Price, Qty: it.Qty}
	}

	if err := Jobs.CreateJob(ctx, job, items); err != nil {
		return err
	}

	if rec.Status == core.JobStatusCompleted && rec.Labels > 0 {
		if err := Counters.AddLabels(ctx, rec.Printer, rec.CreatedAt, rec.Labels); err != nil {
			return err
		}
	}

	details, _ := json.Marshal(map[string]interface{}{
		"printer":      rec.Printer,
		"labels":       rec.Labels,
		"status":       rec.Status,
		"submitted_by": rec.SubmittedBy,
	})
	return Audit.CreateAuditLog(ctx, &AuditLog{
		Action:      "print_job_submitted",
		EntityType:  "print_job",
		EntityID:    rec.UUID,
		DetailsJSON: string(details),
	})
}

var (
	_ core.PrinterPreferences = Preferences{}
	_ core.JobRecorder        = JobStore{}
)
