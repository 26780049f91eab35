package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"eeg-stress-api/internal/analysis"
	"eeg-stress-api/internal/common"
	"eeg-stress-api/internal/ml"
	"eeg-stress-api/internal/storage"
)

// User-facing error texts.
const (
	msgProcessFailed    = "Failed to process EEG file"
	msgNoFile           = "No file uploaded"
	msgInvalidFormat    = "Invalid file format. Please upload an EDF file."
	msgModelLoading     = "Model is still loading. Please try again in a few moments."
	msgHistoryDisabled  = "Analysis history is not enabled"
	msgRequestFailed    = "Request failed"
	msgAnalysisNotFound = "Analysis not found"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Analyzer.Ready() {
		writeError(w, http.StatusServiceUnavailable, msgModelLoading, msgProcessFailed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	up := analysis.Upload{RequestID: RequestIDFromContext(r.Context())}
	part, err := s.uploadPart(r)
	if err != nil {
		s.writeAnalyzeError(w, r, err)
		return
	}
	if part != nil {
		defer part.Close()
		up.FileName = part.FileName()
		up.Content = part
	}

	report, err := s.cfg.Analyzer.Analyze(r.Context(), up)
	if err != nil {
		s.writeAnalyzeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, NewAnalyzeResponse(report))
}

// uploadPart returns the first file part sent under an accepted field name.
// The body is streamed; nothing is buffered in memory or on disk here. A body
// that is not multipart yields no part.
func (s *Server) uploadPart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", analysis.ErrNoFile, err)
		}
		if s.fields[part.FormName()] && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) writeAnalyzeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	ev := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = zerolog.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Msg("analysis request failed")
	writeError(w, status, detail, msgProcessFailed)
}

// statusFor maps a pipeline error onto an HTTP status and user-facing detail.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	var perr *analysis.ProcessingError

	switch {
	case errors.Is(err, analysis.ErrModelNotReady):
		return http.StatusServiceUnavailable, msgModelLoading
	case errors.Is(err, analysis.ErrNoFile):
		return http.StatusBadRequest, msgNoFile
	case errors.Is(err, analysis.ErrInvalidExtension):
		return http.StatusBadRequest, msgInvalidFormat
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the upload limit of %d bytes", tooLarge.Limit)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "Request cancelled before the analysis finished"
	case errors.As(err, &perr):
		switch perr.Stage {
		case analysis.StageDecode, analysis.StageFilter, analysis.StageFeatures:
			return http.StatusBadRequest, perr.Error()
		default:
			return http.StatusInternalServerError, perr.Error()
		}
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.cfg.Model.Info()

	resp := HealthResponse{
		Status:     StatusUnavailable,
		ModelState: info.State,
		Timestamp:  time.Now().UTC(),
	}
	if info.Metadata != nil {
		resp.ModelVersion = info.Metadata.Version
	}

	status := http.StatusServiceUnavailable
	switch info.State {
	case ml.StateLoaded.String():
		resp.Status = StatusHealthy
		status = http.StatusOK
	case ml.StateLoading.String():
		resp.Status = StatusLoading
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelInfoResponse(s.cfg.Model.Info()))
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusServiceUnavailable, msgHistoryDisabled, msgRequestFailed)
		return
	}

	limit := s.cfg.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", msgRequestFailed)
			return
		}
		limit = min(n, common.MaxHistoryLimit)
	}

	records, err := s.cfg.History.ListAnalyses(limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to list analyses")
		writeError(w, http.StatusInternalServerError, "Failed to read analysis history", msgRequestFailed)
		return
	}
	if records == nil {
		records = []storage.AnalysisRecord{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Analyses: records, Count: len(records)})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusServiceUnavailable, msgHistoryDisabled, msgRequestFailed)
		return
	}

	rec, err := s.cfg.History.GetAnalysis(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgAnalysisNotFound, msgRequestFailed)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to read analysis")
		writeError(w, http.StatusInternalServerError, "Failed to read analysis history", msgRequestFailed)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
