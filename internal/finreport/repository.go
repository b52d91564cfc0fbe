package finreport

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/finreport/internal/platform/db"
)

const foreignKeyViolation = "23503"

// Repository persists report templates and report records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var errRepoNotInitialised = errors.New("finreport: repository not initialised")

// ListTemplates returns templates, optionally including inactive ones.
func (r *Repository) ListTemplates(ctx context.Context, includeInactive bool) ([]Template, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(description,''), file_ref, tenant, is_active, created_at, updated_at
FROM report_templates
WHERE ($1 OR is_active)
ORDER BY name`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// SaveTemplate inserts a template or updates the one with the same name.
func (r *Repository) SaveTemplate(ctx context.Context, tpl Template) (Template, error) {
	if r == nil || r.pool == nil {
		return Template{}, errRepoNotInitialised
	}
	saved, err := scanTemplate(r.pool.QueryRow(ctx, `INSERT INTO report_templates (name, description, file_ref, tenant, is_active)
VALUES ($1, NULLIF($2,''), $3, $4, $5)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, file_ref = EXCLUDED.file_ref,
    tenant = EXCLUDED.tenant, is_active = EXCLUDED.is_active, updated_at = NOW()
RETURNING id, name, COALESCE(description,''), file_ref, tenant, is_active, created_at, updated_at`,
		strings.TrimSpace(tpl.Name), tpl.Description, tpl.FileRef, strings.ToLower(strings.TrimSpace(tpl.Tenant)), tpl.IsActive))
	if err != nil {
		return Template{}, fmt.Errorf("finreport: save template: %w", err)
	}
	return saved, nil
}

// GetTemplate loads a template by id.
func (r *Repository) GetTemplate(ctx context.Context, id int64) (Template, error) {
	if r == nil || r.pool == nil {
		return Template{}, errRepoNotInitialised
	}
	tpl, err := scanTemplate(r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description,''), file_ref, tenant, is_active, created_at, updated_at
FROM report_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, ErrTemplateNotFound
		}
		return Template{}, err
	}
	return tpl, nil
}

// InsertReport stores a new pending report.
func (r *Repository) InsertReport(ctx context.Context, req CreateRequest, tenant string) (Report, error) {
	if r == nil || r.pool == nil {
		return Report{}, errRepoNotInitialised
	}
	payload, err := json.Marshal(mergeMetadata(req.Metadata))
	if err != nil {
		return Report{}, err
	}
	var id int64
	const insert = `INSERT INTO financial_reports (template_id, tenant, month, year, branch, organization, ledger, status, requested_by, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,'PENDING',$8,$9)
RETURNING id`
	err = r.pool.QueryRow(ctx, insert, req.TemplateID, tenant, req.Month, req.Year, req.Branch, req.Organization, req.Ledger, req.RequestedBy, payload).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return Report{}, ErrTemplateNotFound
		}
		return Report{}, err
	}
	return r.GetReport(ctx, id)
}

const reportColumns = `fr.id, fr.template_id, COALESCE(t.name,''), fr.tenant, fr.month, fr.year,
    COALESCE(fr.branch,''), COALESCE(fr.organization,''), COALESCE(fr.ledger,''), fr.status,
    COALESCE(fr.output_path,''), fr.output_size, COALESCE(fr.pdf_path,''), fr.error_message,
    fr.metadata, COALESCE(fr.requested_by,''), fr.generated_at, fr.created_at, fr.updated_at
FROM financial_reports fr
LEFT JOIN report_templates t ON t.id = fr.template_id`

// GetReport fetches a report with its template name.
func (r *Repository) GetReport(ctx context.Context, id int64) (Report, error) {
	if r == nil || r.pool == nil {
		return Report{}, errRepoNotInitialised
	}
	rep, err := scanReport(r.pool.QueryRow(ctx, `SELECT `+reportColumns+`
WHERE fr.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Report{}, ErrReportNotFound
		}
		return Report{}, err
	}
	return rep, nil
}

// ListReports returns paginated reports filtered by template, year and status.
func (r *Repository) ListReports(ctx context.Context, filter ListFilter) ([]Report, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `SELECT `+reportColumns+`
WHERE ($1 = 0 OR fr.template_id = $1)
  AND ($2 = 0 OR fr.year = $2)
  AND ($3 = '' OR fr.status = $3)
ORDER BY fr.created_at DESC
LIMIT $4 OFFSET $5`, filter.TemplateID, filter.Year, string(filter.Status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// MarkInProgress transitions a pending report to in-progress.
func (r *Repository) MarkInProgress(ctx context.Context, id int64) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE financial_reports
SET status = 'IN_PROGRESS', error_message = NULL, updated_at = NOW()
WHERE id = $1 AND status IN ('PENDING','FAILED')`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// MarkCompleted stores the output artefacts and marks the report completed.
func (r *Repository) MarkCompleted(ctx context.Context, id int64, out Output, generatedAt time.Time, metadata map[string]any) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	payload, err := json.Marshal(mergeMetadata(metadata))
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE financial_reports
SET status = 'COMPLETED', output_path = $2, output_size = $3, pdf_path = NULLIF($4,''), metadata = $5,
    generated_at = $6, updated_at = NOW()
WHERE id = $1`, id, out.Path, out.Size, out.PDFPath, payload, generatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

// MarkFailed captures the error message and switches the status to failed.
func (r *Repository) MarkFailed(ctx context.Context, id int64, msg string) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE financial_reports SET status = 'FAILED', error_message = $2, updated_at = NOW() WHERE id = $1`, id, truncateError(msg))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

// ReclaimStale moves abandoned in-progress reports back to pending.
func (r *Repository) ReclaimStale(ctx context.Context, before time.Time, msg string) ([]int64, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `UPDATE financial_reports SET status = 'PENDING', error_message = $2, updated_at = NOW()
WHERE status = 'IN_PROGRESS' AND updated_at < $1
RETURNING id`, before, truncateError(msg))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTemplate(row pgx.Row) (Template, error) {
	var tpl Template
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.FileRef, &tpl.Tenant, &tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt)
	return tpl, err
}

func scanReport(row pgx.Row) (Report, error) {
	var rep Report
	var outputSize sql.NullInt64
	var errMsg sql.NullString
	var generatedAt sql.NullTime
	var metadata []byte
	if err := row.Scan(
		&rep.ID,
		&rep.TemplateID,
		&rep.TemplateName,
		&rep.Tenant,
		&rep.Month,
		&rep.Year,
		&rep.Branch,
		&rep.Organization,
		&rep.Ledger,
		&rep.Status,
		&rep.OutputPath,
		&outputSize,
		&rep.PDFPath,
		&errMsg,
		&metadata,
		&rep.RequestedBy,
		&generatedAt,
		&rep.CreatedAt,
		&rep.UpdatedAt,
	); err != nil {
		return Report{}, err
	}
	if outputSize.Valid {
		v := outputSize.Int64
		rep.OutputSize = &v
	}
	if errMsg.Valid {
		rep.ErrorMessage = errMsg.String
	}
	if generatedAt.Valid {
		t := generatedAt.Time
		rep.GeneratedAt = &t
	}
	rep.Metadata = make(map[string]any)
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &rep.Metadata)
	}
	return rep, nil
}

func mergeMetadata(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, meta := range maps {
		for k, v := range meta {
			out[k] = v
		}
	}
	return out
}

func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}

// Schema creates the tables used by Repository. It is idempotent.
const Schema = `CREATE TABLE IF NOT EXISTS report_templates (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT,
    file_ref TEXT NOT NULL,
    tenant TEXT NOT NULL DEFAULT 'standard',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS financial_reports (
    id BIGSERIAL PRIMARY KEY,
    template_id BIGINT NOT NULL REFERENCES report_templates(id),
    tenant TEXT NOT NULL,
    month CHAR(2) NOT NULL,
    year INT NOT NULL,
    branch TEXT,
    organization TEXT,
    ledger TEXT,
    status TEXT NOT NULL DEFAULT 'PENDING',
    output_path TEXT,
    output_size BIGINT,
    pdf_path TEXT,
    error_message TEXT,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    requested_by TEXT,
    generated_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS financial_reports_status_idx ON financial_reports (status, created_at DESC);`

// migrationLock serialises Migrate across the API and worker processes.
const migrationLock = 0x66696e72

// Migrate applies Schema in one transaction.
func (r *Repository) Migrate(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, Schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("finreport: migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	return r.pool.Ping(ctx)
}
