package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brunobiangulo/faultgraph"
	"github.com/brunobiangulo/faultgraph/report"
)

type handler struct {
	engine faultgraph.Engine
}

func newHandler(e faultgraph.Engine) *handler {
	return &handler{engine: e}
}

// POST /import
// Accepts a multipart file upload (xlsx or pdf) or JSON with a file path.
// PDF imports require an accident code ("code" form field or JSON field).
func (h *handler) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	// Try multipart upload first
	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// Sanitise filename to prevent path traversal.
			safeName := filepath.Base(header.Filename)

			tmpPath := filepath.Join(os.TempDir(), safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()
			defer os.Remove(tmpPath)

			h.importFile(ctx, w, tmpPath, r.FormValue("code"), r.FormValue("force") != "")
			return
		}
	}

	// Try JSON body with path
	var req struct {
		Path  string `json:"path"`
		Code  string `json:"code,omitempty"`
		Force bool   `json:"force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	h.importFile(ctx, w, absPath, req.Code, req.Force)
}

func (h *handler) importFile(ctx context.Context, w http.ResponseWriter, path, code string, force bool) {
	var opts []faultgraph.ImportOption
	if force {
		opts = append(opts, faultgraph.WithForceReimport())
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		results, err := h.engine.ImportExcel(ctx, path, opts...)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "import failed")
			slog.Error("excel import error", "path", path, "error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})

	case ".pdf":
		if code == "" {
			writeError(w, http.StatusBadRequest, "accident code is required for pdf imports")
			return
		}
		result, err := h.engine.ImportPDF(ctx, path, code, opts...)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "import failed")
			slog.Error("pdf import error", "path", path, "error", err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		writeError(w, http.StatusBadRequest, "unsupported file format: expected .xlsx or .pdf")
	}
}

// POST /query
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Question   string `json:"question"`
		MaxRecords int    `json:"max_records,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	// Bound parameters.
	if req.MaxRecords < 0 || req.MaxRecords > 50 {
		req.MaxRecords = 0 // use default
	}

	var opts []faultgraph.QueryOption
	if req.MaxRecords > 0 {
		opts = append(opts, faultgraph.WithMaxRecords(req.MaxRecords))
	}

	answer, err := h.engine.Query(ctx, req.Question, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		slog.Error("query error", "question", req.Question, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// POST /analyze/{code}
func (h *handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	code := chi.URLParam(r, "code")

	var req struct {
		AnalysisType string `json:"analysis_type,omitempty"`
		Save         bool   `json:"save,omitempty"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.AnalysisType == "" {
		req.AnalysisType = report.Comprehensive
	}

	var opts []faultgraph.AnalyzeOption
	if req.Save {
		opts = append(opts, faultgraph.WithSaveReport())
	}

	rep, err := h.engine.Analyze(ctx, code, req.AnalysisType, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis failed")
		slog.Error("analyze error", "accident_code", code, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// GET /records
func (h *handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.ListRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		slog.Error("list records error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// GET /records/{code}
func (h *handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	record, err := h.engine.Store().GetRecordByCode(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		slog.Error("stats error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
