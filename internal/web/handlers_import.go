package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is allowed on top of the file size for the other form
// fields and multipart boundaries.
const multipartOverhead = 1 << 20

// DiscardResponse is returned by DELETE /api/imports/{token}.
type DiscardResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string             `json:"status"`
	Chunks core.LimiterStatus `json:"chunks"`
}

// handleStartImport accepts a multipart upload and creates a job.
//
// Form fields: csv_file (required), create_terms, dry_run, download_images,
// geocode (booleans), import_mode, match_by (enums, sanitized by core).
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit %d bytes", core.ErrFileTooLarge, maxSize))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
		return
	}

	file, header, err := r.FormFile("csv_file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		s.respondError(w, r, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, header.Size, maxSize))
		return
	}

	ctx := withClient(r.Context(), r)
	result, err := s.service.Start(ctx, core.StartRequest{
		FileName: header.Filename,
		File:     file,
		Options:  optionsFromForm(r),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// optionsFromForm reads import options from a parsed form. Enum values are
// passed through as-is; core.SanitizeOptions coerces unknown values.
func optionsFromForm(r *http.Request) core.ImportOptions {
	return core.ImportOptions{
		CreateTerms:    formBool(r.FormValue("create_terms")),
		DryRun:         formBool(r.FormValue("dry_run")),
		ImportMode:     core.ImportMode(r.FormValue("import_mode")),
		MatchBy:        core.MatchBy(r.FormValue("match_by")),
		DownloadImages: formBool(r.FormValue("download_images")),
		Geocode:        formBool(r.FormValue("geocode")),
	}
}

// formBool treats any non-empty value as true except "0", "false" and "off".
func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "off":
		return false
	default:
		return true
	}
}

// advanceParams is the JSON form of an advance request.
type advanceParams struct {
	BatchSize *int   `json:"batch_size"`
	Version   *int64 `json:"version"`
}

// handleAdvanceImport processes the next chunk of a job.
// batch_size and version come from a JSON body or form/query values.
func (s *Server) handleAdvanceImport(w http.ResponseWriter, r *http.Request) {
	params := readAdvanceParams(r)

	requested := 0
	if params.BatchSize != nil {
		requested = *params.BatchSize
	}

	report, err := s.service.Advance(withClient(r.Context(), r), core.AdvanceRequest{
		Token:           chi.URLParam(r, "token"),
		ChunkSize:       clampChunkSize(requested, s.cfg.Import.BatchSize, s.cfg.Import.MaxChunkSize),
		ExpectedVersion: params.Version,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// readAdvanceParams never fails: unreadable values are treated as absent.
func readAdvanceParams(r *http.Request) advanceParams {
	var p advanceParams

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&p); err != nil {
			return advanceParams{}
		}
		return p
	}

	if n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("batch_size"))); err == nil {
		p.BatchSize = &n
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("version")), 10, 64); err == nil {
		p.Version = &v
	}
	return p
}

// clampChunkSize defaults non-positive sizes and caps large ones.
func clampChunkSize(requested, def, limit int) int {
	if requested <= 0 {
		requested = def
	}
	if limit > 0 && requested > limit {
		requested = limit
	}
	return requested
}

// handleImportStatus returns a job's progress without advancing it.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Status(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDiscardImport deletes a job. It succeeds for unknown tokens.
func (s *Server) handleDiscardImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(r.Context(), chi.URLParam(r, "token")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DiscardResponse{Success: true, Message: "Cleanup complete."})
}

// handleHealth reports liveness and chunk slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Chunks: s.service.LimiterStatus(),
	})
}
