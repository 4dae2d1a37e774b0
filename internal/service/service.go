package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/middlesplit/internal/preview"
	"github.com/local/middlesplit/internal/repaginate"
	"github.com/local/middlesplit/internal/statuscheck"
	"github.com/local/middlesplit/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	CancelJob(ctx context.Context, jobID string) error
	Ping(ctx context.Context) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
	Results(ctx context.Context, jobID string) ([]string, error)
}

type Dependencies struct {
	Queue     Queue
	Status    StatusStore
	Checker   *statuscheck.Checker
	ResultDir string
}

type Service struct {
	deps Dependencies
}

func New(deps Dependencies) *Service {
	return &Service{deps: deps}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/split_document", s.handleSplit)
	mux.HandleFunc("/progress/", s.handleProgress)
	mux.HandleFunc("/download_result/", s.handleDownloadResult)
	mux.HandleFunc("/preview_result/", s.handlePreviewResult)
	mux.HandleFunc("/webhook/cancel_job", s.handleCancelJob)
}

type sourceReq struct {
	FilePath string `json:"file_path"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

type splitReq struct {
	FilePath      string      `json:"file_path,omitempty"`
	Sources       []sourceReq `json:"sources,omitempty"`
	Repagination  string      `json:"repagination,omitempty"`
	FormatVersion string      `json:"format_version,omitempty"`
	NamePattern   string      `json:"name_pattern,omitempty"`
	OutputPath    string      `json:"output_path,omitempty"`
	Overwrite     bool        `json:"overwrite,omitempty"`
	Password      string      `json:"password,omitempty"`
}

type splitResp struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Queue.Ping(r.Context()); err != nil {
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checker == nil {
		http.Error(w, "not configured", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.deps.Checker.Summary(r.Context()))
}

func (s *Service) handleSplit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed); return
	}
	defer r.Body.Close()
	var req splitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest); return
	}

	// normalize: single file_path becomes a one-element source list
	sources := req.Sources
	if len(sources) == 0 && req.FilePath != "" {
		sources = []sourceReq{{FilePath: req.FilePath, Password: req.Password}}
	}
	if len(sources) == 0 {
		http.Error(w, "missing file_path or sources", http.StatusBadRequest); return
	}
	for i := range sources {
		if sources[i].FilePath == "" {
			http.Error(w, fmt.Sprintf("sources[%d]: missing file_path", i), http.StatusBadRequest); return
		}
		if sources[i].Name == "" {
			sources[i].Name = filepath.Base(sources[i].FilePath)
		}
	}
	mode, err := repaginate.ParseMode(req.Repagination)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest); return
	}

	jobID := uuid.NewString()
	log.Info().Str("job_id", jobID).Int("sources", len(sources)).Str("repagination", string(mode)).Msg("split job created")
	start := time.Now()
	_ = s.deps.Status.Set(r.Context(), jobID, store.Status{Status: store.StatusQueued, Progress: 0, Message: "queued", Start: &start,
		Metadata: map[string]any{"sources": len(sources)}})

	payload := map[string]any{
		"job_id":         jobID,
		"sources":        sources,
		"repagination":   string(mode),
		"format_version": req.FormatVersion,
		"name_pattern":   req.NamePattern,
		"output_path":    req.OutputPath,
		"overwrite":      req.Overwrite,
	}
	data, _ := json.Marshal(payload)
	if err := s.deps.Queue.Enqueue(r.Context(), data); err != nil {
		log.Error().Err(err).Msg("enqueue failed")
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(splitResp{Status: "ok", JobID: jobID, Message: "Split job created"})
}

func (s *Service) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/progress/")
	st, ok, err := s.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError); return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound); return
	}
	resp := map[string]any{
		"success":    st.Status == store.StatusDone,
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
	}
	if st.Status == store.StatusDone {
		if names, err := s.deps.Status.Results(r.Context(), id); err == nil && len(names) > 0 {
			resp["results"] = names
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleDownloadResult serves a produced PDF from the local result directory.
func (s *Service) handleDownloadResult(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/download_result/")
	if name == "" || name != filepath.Base(name) {
		http.Error(w, "invalid name", http.StatusBadRequest); return
	}
	p := filepath.Join(s.deps.ResultDir, name)
	f, err := os.Open(p)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound); return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	http.ServeContent(w, r, name, time.Time{}, f)
}

// handlePreviewResult renders one page of a produced PDF as a JPEG thumbnail.
func (s *Service) handlePreviewResult(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/preview_result/")
	if name == "" || name != filepath.Base(name) {
		http.Error(w, "invalid name", http.StatusBadRequest); return
	}
	p := filepath.Join(s.deps.ResultDir, name)
	if _, err := os.Stat(p); err != nil {
		http.Error(w, "not found", http.StatusNotFound); return
	}
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if _, err := fmt.Sscan(v, &page); err != nil || page <= 0 {
			http.Error(w, "invalid page", http.StatusBadRequest); return
		}
	}
	img, err := preview.RenderJPEG(p, preview.Options{Page: page})
	if err != nil {
		log.Warn().Err(err).Str("name", name).Msg("preview render failed")
		http.Error(w, "render failed", http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(img)
}

type cancelReq struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Service) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed); return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest); return
	}
	if req.JobID == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest); return
	}
	if err := s.deps.Queue.CancelJob(r.Context(), req.JobID); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError); return
	}
	st, ok, _ := s.deps.Status.Get(r.Context(), req.JobID)
	if !ok {
		st = store.Status{}
	}
	st.Status = store.StatusCancelled
	if req.Reason != "" {
		st.Message = fmt.Sprintf("Cancelled: %s", req.Reason)
	} else {
		st.Message = "Cancelled"
	}
	now := time.Now()
	st.End = &now
	_ = s.deps.Status.Set(r.Context(), req.JobID, st)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "job_id": req.JobID, "status": store.StatusCancelled})
}
