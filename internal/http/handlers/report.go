package handlers

import (
	"net/http"

	"github.com/potholewatch/server/internal/metrics"
	"github.com/potholewatch/server/internal/model"
	"github.com/potholewatch/server/internal/pipeline"
)

// ReportHandler handles report submission and the query endpoints
type ReportHandler struct {
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
}

// NewReportHandler creates a new report handler
func NewReportHandler(p *pipeline.Pipeline, m *metrics.Metrics) *ReportHandler {
	return &ReportHandler{
		pipeline: p,
		metrics:  m,
	}
}

// HandleSubmitReport handles POST /api/report. The pipeline authenticates the
// request itself so that a rejected token never reaches body decoding.
func (h *ReportHandler) HandleSubmitReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.pipeline.SubmitReport(r.Context(), r.Header.Get("Authorization"), r.Body)
	if err != nil {
		h.metrics.ReportSubmissions.WithLabelValues(ErrorKind(err)).Inc()
		RespondWithError(w, err)
		return
	}
	h.metrics.ReportSubmissions.WithLabelValues("ok").Inc()

	respondJSON(w, http.StatusCreated, report)
}

// HandleListReports handles GET /api/potholes?city=
func (h *ReportHandler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.pipeline.ListReports(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		RespondWithError(w, err)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	respondJSON(w, http.StatusOK, reports)
}

// HandleDashboard handles GET /api/dashboard
func (h *ReportHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.pipeline.Dashboard(r.Context())
	if err != nil {
		RespondWithError(w, err)
		return
	}
	if dash.MostCities == nil {
		dash.MostCities = []model.CityCount{}
	}
	if dash.LeastCities == nil {
		dash.LeastCities = []model.CityCount{}
	}
	respondJSON(w, http.StatusOK, dash)
}
