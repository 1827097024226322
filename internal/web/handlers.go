package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyingest/internal/core"
	"github.com/JonMunkholm/policyingest/internal/logging"
)

// uploadField is the multipart field carrying the CSV file.
const uploadField = "file"

// errNoFile is returned when the multipart body has no file part.
var errNoFile = fmt.Errorf("no file provided: %w", http.ErrMissingFile)

// chunkErrorsResponse is the body of a partially failed ingestion.
type chunkErrorsResponse struct {
	Errors []*core.ChunkError `json:"errors"`
}

// handleUpload spools the uploaded file and ingests it, holding the
// response until every chunk has reported.
//
//	200 empty body         every chunk persisted
//	500 {"errors":[...]}   one or more chunks failed
//	500 {"error":"..."}    the file could not be parsed, nothing dispatched
//	400 / 413              missing file or body too large
//	503                    no upload slot became free in time
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	path, fileName, err := s.spoolUpload(r)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, err, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	res, err := s.service.Ingest(withUploadMeta(r.Context(), r, fileName), path)
	switch {
	case errors.Is(err, core.ErrTooManyUploads):
		w.Header().Set("Retry-After", "5")
		s.respondError(w, r, err, http.StatusServiceUnavailable)
	case core.IsStreamError(err):
		logging.FromContext(r.Context()).Warn("upload rejected", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		s.respondError(w, r, err, http.StatusInternalServerError)
	case !res.OK():
		writeJSONStatus(w, http.StatusInternalServerError, chunkErrorsResponse{Errors: res.Errors})
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// spoolUpload streams the file part of a multipart body into UPLOAD_DIR
// and returns the artifact path with the client's file name. On error
// nothing is left on disk.
func (s *Server) spoolUpload(r *http.Request) (path, fileName string, err error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return "", "", errNoFile
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", "", fmt.Errorf("read multipart body: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", "", errNoFile
		}
		if err != nil {
			return "", "", fmt.Errorf("read multipart body: %w", err)
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		path, err := s.writeArtifact(part)
		part.Close()
		return path, part.FileName(), err
	}
}

func (s *Server) writeArtifact(src io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.Upload.Dir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.CreateTemp(s.cfg.Upload.Dir, "upload-*.csv")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	_, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("save upload: %w", err)
	}
	return f.Name(), nil
}

// scheduleRequest is the POST /schedule body.
type scheduleRequest struct {
	Message string `json:"message"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

// scheduleResponse is the 201 body of POST /schedule.
type scheduleResponse struct {
	ID          uuid.UUID `json:"id"`
	Message     string    `json:"message"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status"`
}

// handleSchedule stores a message for delivery at date and time.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := s.scheduler.Schedule(r.Context(), req.Message, req.Date, req.Time)
	switch {
	case errors.Is(err, core.ErrScheduleMissingField), errors.Is(err, core.ErrInvalidSchedule):
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	case err != nil:
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusCreated, scheduleResponse{
		ID:          msg.ID,
		Message:     msg.Message,
		ScheduledAt: msg.ScheduledAt,
		Status:      "scheduled",
	})
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status  string                    `json:"status"`
	Uploads *core.UploadLimiterStatus `json:"uploads,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		resp.Uploads = &st
	}
	writeJSON(w, resp)
}
