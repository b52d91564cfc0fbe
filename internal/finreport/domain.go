// Package finreport owns the lifecycle of generated financial reports: request
// records, template lookup, the generation pipeline and the queue job.
package finreport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Status captures the state of a report record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusFailed}

// Template is a stored DOCX template bound to a tenant.
type Template struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FileRef     string    `json:"file_ref"`
	Tenant      string    `json:"tenant"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Report is a persisted generation request and its outcome.
type Report struct {
	ID           int64          `json:"id"`
	TemplateID   int64          `json:"template_id"`
	TemplateName string         `json:"template_name"`
	Tenant       string         `json:"tenant"`
	Month        string         `json:"month"`
	Year         int            `json:"year"`
	Branch       string         `json:"branch,omitempty"`
	Organization string         `json:"organization,omitempty"`
	Ledger       string         `json:"ledger,omitempty"`
	Status       Status         `json:"status"`
	OutputPath   string         `json:"-"`
	OutputSize   *int64         `json:"output_size,omitempty"`
	PDFPath      string         `json:"-"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RequestedBy  string         `json:"requested_by,omitempty"`
	GeneratedAt  *time.Time     `json:"generated_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// HasPDF reports whether a PDF rendition was stored.
func (r Report) HasPDF() bool {
	return r.PDFPath != ""
}

// CreateRequest is the payload accepted when requesting a report.
type CreateRequest struct {
	TemplateID   int64          `json:"template_id" validate:"required,gt=0"`
	Month        string         `json:"month" validate:"required,len=2,numeric"`
	Year         int            `json:"year" validate:"required,gte=1900,lte=9999"`
	Branch       string         `json:"branch" validate:"omitempty,max=32"`
	Organization string         `json:"organization" validate:"omitempty,max=32"`
	Ledger       string         `json:"ledger" validate:"required,max=32"`
	RequestedBy  string         `json:"requested_by" validate:"omitempty,max=128"`
	Metadata     map[string]any `json:"metadata"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate ensures the request can be processed.
func (r *CreateRequest) Validate() error {
	r.Month = strings.TrimSpace(r.Month)
	if len(r.Month) == 1 {
		r.Month = "0" + r.Month
	}
	r.Branch = strings.ToUpper(strings.TrimSpace(r.Branch))
	r.Organization = strings.ToUpper(strings.TrimSpace(r.Organization))
	r.Ledger = strings.ToUpper(strings.TrimSpace(r.Ledger))
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}
	if r.Month < "01" || r.Month > "12" {
		return fmt.Errorf("%w: month must be between 01 and 12", ErrValidation)
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}

// ListFilter configures report listings.
type ListFilter struct {
	TemplateID int64
	Year       int
	Status     Status
	Limit      int
	Offset     int
}

var (
	ErrReportNotFound   = errors.New("finreport: report not found")
	ErrTemplateNotFound = errors.New("finreport: template not found")
	ErrInvalidStatus    = errors.New("finreport: invalid status transition")
	ErrValidation       = errors.New("finreport: invalid request")
	ErrOutputNotReady   = errors.New("finreport: output not ready")
	// ErrConfiguration marks failures that retrying cannot fix: missing template
	// files, unknown tenants or absent dimension placeholders.
	ErrConfiguration = errors.New("finreport: configuration error")
)

// NormaliseStatus uppercases and trims the provided status string. Unknown values
// yield an empty status.
func NormaliseStatus(v string) Status {
	v = strings.TrimSpace(strings.ToUpper(v))
	for _, s := range Statuses {
		if Status(v) == s {
			return s
		}
	}
	return ""
}
