package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
)

// maxUploadBytes caps document uploads; larger requests fail with 400.
const maxUploadBytes = 32 << 20

// Router is the thin API surface over the pipeline: submission, document
// state, forced re-extraction, feedback and the monitoring query.
type Router struct {
	submitter ports.ExtractionSubmitter
	docs      ports.DocumentStore
	feedback  ports.FeedbackIngestor
	monitor   ports.MonitorReader
	cache     ports.ResultCache
	logger    *slog.Logger
}

func NewRouter(
	submitter ports.ExtractionSubmitter,
	docs ports.DocumentStore,
	feedback ports.FeedbackIngestor,
	monitor ports.MonitorReader,
	cache ports.ResultCache,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		submitter: submitter,
		docs:      docs,
		feedback:  feedback,
		monitor:   monitor,
		cache:     cache,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.submitDocument)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	mux.HandleFunc("/v1/feedback", rt.submitFeedback)
	mux.HandleFunc("/v1/monitor/stats", rt.monitorStats)
	return requestIDMiddleware(accessLogMiddleware(rt.logger, mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	category := domain.DocumentCategory(r.FormValue("category"))
	if category == "" {
		category = domain.CategoryOther
	}
	priority := 0
	if raw := r.FormValue("priority"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			priority = p
		}
	}

	receipt, err := rt.submitter.Submit(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		category,
		priority,
		file,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusAccepted
	if receipt.Status == ports.SubmitCached {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/reextract"); ok {
		rt.reextract(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/result"); ok {
		rt.getResult(w, r, id)
		return
	}
	rt.getDocument(w, r, rest)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getResult(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	result, err := rt.docs.GetResult(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) reextract(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	receipt, err := rt.submitter.ForceReextract(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (rt *Router) submitFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ports.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid feedback payload")
		return
	}

	report, err := rt.feedback.Ingest(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) monitorStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snapshot := rt.monitor.Snapshot()
	stats := rt.cache.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"successRate":             snapshot.SuccessRate,
		"averageConfidence":       snapshot.AverageConfidence,
		"averageProcessingTimeMs": snapshot.AverageProcessingTimeMs,
		"totalAttempts":           snapshot.TotalAttempts,
		"errorCounts":             snapshot.ErrorCounts,
		"cache": map[string]any{
			"entries":   stats.Entries,
			"hitRate":   stats.HitRate(),
			"evictions": stats.Evictions,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), err.Error())
}
