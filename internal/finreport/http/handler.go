package finreporthttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/finreport/internal/finreport"
	"github.com/odyssey-erp/finreport/internal/platform/httpx"
)

// Handler wires JSON endpoints for report requests.
type Handler struct {
	logger  *slog.Logger
	service *finreport.Service
	jobs    finreport.Enqueuer
}

// NewHandler constructs a Handler value.
func NewHandler(logger *slog.Logger, service *finreport.Service, jobs finreport.Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, jobs: jobs}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/templates", h.listTemplates)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.detail)
		r.Post("/{id}/retry", h.retry)
		r.Get("/{id}/download", h.download)
	})
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context())
	if err != nil {
		h.respondError(w, "list templates", err)
		return
	}
	if templates == nil {
		templates = []finreport.Template{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := finreport.ListFilter{
		TemplateID: parseInt64(q.Get("template_id")),
		Year:       int(parseInt64(q.Get("year"))),
		Limit:      int(parseInt64(q.Get("limit"))),
		Offset:     int(parseInt64(q.Get("offset"))),
	}
	if status := strings.TrimSpace(q.Get("status")); status != "" {
		filter.Status = finreport.NormaliseStatus(status)
		if filter.Status == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("unknown status %q", status))
			return
		}
	}
	reports, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list reports", err)
		return
	}
	if reports == nil {
		reports = []finreport.Report{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// create stores the request and enqueues generation.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req finreport.CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	rep, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, "create report", err)
		return
	}
	h.enqueue(r.Context(), rep.ID)
	w.Header().Set("Location", "/api/v1/reports/"+strconv.FormatInt(rep.ID, 10))
	httpx.JSON(w, http.StatusAccepted, rep)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

// retry re-enqueues a failed report.
func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r)
	if !ok {
		return
	}
	if rep.Status != finreport.StatusFailed {
		httpx.Problem(w, http.StatusConflict, "Conflict", "only failed reports can be retried")
		return
	}
	h.enqueue(r.Context(), rep.ID)
	httpx.JSON(w, http.StatusAccepted, rep)
}

// download streams the DOCX, or the PDF rendition with ?format=pdf.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r)
	if !ok {
		return
	}
	if rep.Status != finreport.StatusCompleted || rep.OutputPath == "" {
		h.respondError(w, "download report", finreport.ErrOutputNotReady)
		return
	}
	path := rep.OutputPath
	if strings.EqualFold(r.URL.Query().Get("format"), "pdf") {
		if !rep.HasPDF() {
			h.respondError(w, "download report", fmt.Errorf("%w: no pdf rendition", finreport.ErrOutputNotReady))
			return
		}
		path = rep.PDFPath
	}
	file, err := os.Open(path)
	if err != nil {
		h.logger.Error("open report output", slog.Any("error", err), slog.String("path", path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	name := "financial-report-" + strconv.FormatInt(rep.ID, 10) + filepath.Ext(path)
	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func contentType(name string) string {
	if typ := mime.TypeByExtension(filepath.Ext(name)); typ != "" {
		return typ
	}
	if strings.EqualFold(filepath.Ext(name), ".docx") {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (finreport.Report, bool) {
	id := parseInt64(chi.URLParam(r, "id"))
	if id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid report id")
		return finreport.Report{}, false
	}
	rep, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get report", err)
		return finreport.Report{}, false
	}
	return rep, true
}

func (h *Handler) enqueue(ctx context.Context, id int64) {
	if h.jobs == nil {
		return
	}
	if _, err := h.jobs.EnqueueReport(ctx, id); err != nil {
		h.logger.Warn("enqueue report", slog.Int64("report_id", id), slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, finreport.ErrReportNotFound), errors.Is(err, finreport.ErrTemplateNotFound):
		err = httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, finreport.ErrValidation):
		err = httpx.Wrap(httpx.ErrValidation, err)
	case errors.Is(err, finreport.ErrConfiguration):
		err = httpx.Wrap(httpx.ErrUnprocessable, err)
	case errors.Is(err, finreport.ErrOutputNotReady), errors.Is(err, finreport.ErrInvalidStatus):
		err = httpx.Wrap(httpx.ErrConflict, err)
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseInt64(value string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
