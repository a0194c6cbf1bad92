package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smart-redact/redactd/internal/document"
	"github.com/smart-redact/redactd/internal/evidence"
	"github.com/smart-redact/redactd/internal/pipeline"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{}
		if s.evidenceStore == nil {
			components["evidence_store"] = "disabled"
		} else {
			components["evidence_store"] = "ok"
		}
		for method, active := range s.pipeline.Methods() {
			if active {
				components["detection_"+method] = "ok"
			} else {
				components["detection_"+method] = "disabled"
			}
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":        "ok",
		"version":       s.version,
		"uptime":        time.Since(s.startTime).String(),
		"methods":       s.pipeline.Methods(),
		"ocr_available": document.DefaultOCREngine().Available(),
		"max_upload_mb": s.cfg.MaxUploadMB,
	}
	if s.evidenceStore != nil {
		if n, err := s.evidenceStore.Count(r.Context()); err == nil {
			resp["runs_total"] = n
		}
		now := time.Now().UTC()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if totals, err := s.evidenceStore.Summary(r.Context(), dayStart, dayStart.Add(24*time.Hour)); err == nil {
			resp["entities_today"] = totals
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// saveUpload reads the multipart "file" part into the upload directory
// under a uuid-prefixed name and returns the stored path. The body is
// capped at the configured upload limit.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, bool) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			fmt.Sprintf("upload exceeds %d MB limit", s.cfg.MaxUploadMB))
		return "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required")
		return "", false
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "invalid_request", "upload has no filename")
		return "", false
	}
	stored := filepath.Join(s.cfg.UploadDir(), uuid.New().String()[:8]+"_"+name)

	dst, err := os.OpenFile(stored, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "cannot store upload")
		return "", false
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(stored)
		writeError(w, http.StatusInternalServerError, "internal", "cannot store upload")
		return "", false
	}
	return stored, true
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.saveUpload(w, r)
	if !ok {
		return
	}

	result, err := s.pipeline.Process(r.Context(), stored, s.cfg.OutputDir())
	if err != nil {
		s.writeRunError(w, result, err)
		return
	}

	resp := map[string]interface{}{
		"run_id":      result.RunID,
		"state":       result.State,
		"medium":      result.Medium,
		"output":      filepath.Base(result.Output),
		"type_counts": result.TypeCounts,
		"stats":       result.Stats,
		"validation":  result.Validation,
		"duration_ms": result.DurationMS,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.saveUpload(w, r)
	if !ok {
		return
	}
	// Scan-only uploads are not kept; there is no output to tie them to.
	defer os.Remove(stored)

	scan, err := s.pipeline.Scan(r.Context(), stored)
	if err != nil {
		s.writeRunError(w, nil, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"medium":      scan.Medium,
		"findings":    scan.Findings,
		"type_counts": scan.Findings.TypeCounts(),
		"stats":       scan.Extraction.Stats,
	})
}

// writeRunError maps pipeline failures to HTTP statuses. A validation
// leak is 422 so callers can distinguish "your document could not be
// safely redacted" from a server fault.
func (s *Server) writeRunError(w http.ResponseWriter, result *pipeline.Result, err error) {
	var violation *pipeline.ValidationViolation
	if errors.As(err, &violation) {
		resp := map[string]interface{}{
			"error":   "validation_failed",
			"message": "redacted output still contained detected text and was discarded",
			"leaked":  violation.Leaked,
		}
		if result != nil {
			resp["run_id"] = result.RunID
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	if errors.Is(err, document.ErrUnsupportedFormat) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
		return
	}
	var extraction *pipeline.ExtractionError
	if errors.As(err, &extraction) {
		writeError(w, http.StatusBadRequest, "extraction_failed", err.Error())
		return
	}
	log.Error().Err(err).Msg("redaction run failed")
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid output name")
		return
	}
	path := filepath.Join(s.cfg.OutputDir(), name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "no such output")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	if s.evidenceStore == nil {
		writeError(w, http.StatusServiceUnavailable, "disabled", "evidence store is disabled")
		return
	}
	medium := r.URL.Query().Get("medium")
	validation := r.URL.Query().Get("validation")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	var from, to time.Time
	if f := r.URL.Query().Get("from"); f != "" {
		from, _ = time.Parse(time.RFC3339, f)
	}
	if t := r.URL.Query().Get("to"); t != "" {
		to, _ = time.Parse(time.RFC3339, t)
	}
	runs, err := s.evidenceStore.List(r.Context(), medium, validation, from, to, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleRunsSummary(w http.ResponseWriter, r *http.Request) {
	if s.evidenceStore == nil {
		writeError(w, http.StatusServiceUnavailable, "disabled", "evidence store is disabled")
		return
	}
	var from, to time.Time
	if f := r.URL.Query().Get("from"); f != "" {
		from, _ = time.Parse(time.RFC3339, f)
	}
	if t := r.URL.Query().Get("to"); t != "" {
		to, _ = time.Parse(time.RFC3339, t)
	}
	totals, err := s.evidenceStore.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entities": totals})
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if s.evidenceStore == nil {
		writeError(w, http.StatusServiceUnavailable, "disabled", "evidence store is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.evidenceStore.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRunVerify(w http.ResponseWriter, r *http.Request) {
	if s.evidenceStore == nil {
		writeError(w, http.StatusServiceUnavailable, "disabled", "evidence store is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	valid, err := s.evidenceStore.Verify(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "valid": valid})
}

type runsExportRequest struct {
	Medium     string `json:"medium"`
	Validation string `json:"validation"`
	From       string `json:"from"`
	To         string `json:"to"`
	Limit      int    `json:"limit"`
	Format     string `json:"format"` // csv | json
}

func (s *Server) handleRunsExport(w http.ResponseWriter, r *http.Request) {
	if s.evidenceStore == nil {
		writeError(w, http.StatusServiceUnavailable, "disabled", "evidence store is disabled")
		return
	}
	var req runsExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 1000
	}
	var from, to time.Time
	if req.From != "" {
		from, _ = time.Parse(time.RFC3339, req.From)
	}
	if req.To != "" {
		to, _ = time.Parse(time.RFC3339, req.To)
	}
	format := req.Format
	if format == "" {
		format = "json"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "format must be csv or json")
		return
	}
	runs, err := s.evidenceStore.List(r.Context(), req.Medium, req.Validation, from, to, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	records := make([]evidence.ExportRecord, len(runs))
	for i := range runs {
		records[i] = evidence.ToExportRecord(&runs[i])
	}
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"id", "timestamp", "source", "output", "medium", "state", "validation", "findings_total", "entity_counts", "input_hash", "output_hash", "duration_ms", "has_error"})
		for i := range records {
			rec := &records[i]
			_ = cw.Write([]string{
				rec.ID, rec.Timestamp.Format(time.RFC3339), rec.Source, rec.Output, rec.Medium,
				rec.State, rec.Validation, strconv.Itoa(rec.FindingsTotal), rec.EntityCountsCSV(),
				rec.InputHash, rec.OutputHash, strconv.FormatInt(rec.DurationMS, 10),
				strconv.FormatBool(rec.HasError),
			})
		}
		cw.Flush()
		return
	}
	writeJSON(w, http.StatusOK, records)
}
