package db

const (
	GetSetting = `
		SELECT value, encrypted, updated_at FROM settings WHERE key = ?
	`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, encrypted = excluded.encrypted, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `
		DELETE FROM settings WHERE key = ?
	`

	InsertJob = `
		INSERT INTO print_jobs (uuid, printer, labels, status, error_message, submitted_by, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	InsertJobItem = `
		INSERT INTO print_job_items (job_id, position, code, product_name, price, qty)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	jobColumns = `id, uuid, printer, labels, status, error_message, submitted_by, created_at, completed_at`

	GetJobByUUID = `
		SELECT ` + jobColumns + ` FROM print_jobs WHERE uuid = ?
	`

	ListJobItems = `
		SELECT id, job_id, position, code, product_name, price, qty
		FROM print_job_items WHERE job_id = ? ORDER BY position ASC
	`

	CountJobsByStatus = `
		SELECT COUNT(*) FROM print_jobs WHERE status = ?
	`

	DeleteJobsBefore = `
		DELETE FROM print_jobs WHERE created_at < ?
	`

	AddPrintCount = `
		INSERT INTO print_counters (printer, date, count)
		VALUES (?, ?, ?)
		ON CONFLICT(printer, date) DO UPDATE SET count = count + excluded.count
	`

	GetPrintCountersByDateRange = `
		SELECT id, printer, date, count FROM print_counters
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, printer ASC
	`

	InsertWebhook = `
		INSERT INTO webhooks (name, url, secret, events_json, printers_json, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	webhookColumns = `id, name, url, secret, events_json, printers_json, enabled, created_at`

	GetWebhookByID = `
		SELECT ` + webhookColumns + ` FROM webhooks WHERE id = ?
	`

	ListWebhooks = `
		SELECT ` + webhookColumns + ` FROM webhooks ORDER BY name ASC
	`

	ListWebhooksForEvent = `
		SELECT ` + webhookColumns + ` FROM webhooks WHERE enabled = 1 AND events_json LIKE ?
	`

	UpdateWebhook = `
		UPDATE webhooks SET name = ?, url = ?, secret = ?, events_json = ?, printers_json = ?, enabled = ? WHERE id = ?
	`

	DeleteWebhook = `
		DELETE FROM webhooks WHERE id = ?
	`

	InsertAuditLog = `
		INSERT INTO audit_log (action, entity_type, entity_id, details_json, ip_address)
		VALUES (?, ?, ?, ?, ?)
	`
)
