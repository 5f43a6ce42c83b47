package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/dmitrijs2005/photodrop/internal/server/submissions"
)

const (
	msgRunning        = "PhotoDrop backend is running!"
	msgUploaded       = "File uploaded successfully!"
	msgNoFile         = "No file uploaded."
	msgTooLarge       = "File is too large."
	msgUploadFailed   = "Failed to upload file."
	msgListFailed     = "Failed to list submissions."
	msgDeleteFailed   = "Failed to delete submission."
	msgNotFound       = "Submission not found."
	msgBadRequest     = "Malformed request."
	msgInvalidCode    = "Invalid passcode."
	msgLoginRequired  = "Login required."
	msgSessionExpired = "Session expired, please log in again."
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, msgRunning)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		if errors.Is(err, http.ErrNotMultipart) {
			s.writeError(w, http.StatusBadRequest, msgNoFile)
			return
		}
		s.writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	receipt, err := s.svc.Submit(r.Context(), submissions.Upload{
		Email:        r.FormValue(common.FieldEmail),
		FolderNumber: r.FormValue(common.FieldFolderNumber),
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Photo:        data,
	})
	if err != nil {
		status, msg := errorStatus(err, msgUploadFailed)
		s.writeError(w, status, msg)
		return
	}

	s.writeJSON(w, http.StatusOK, models.UploadResponse{
		Message: msgUploaded,
		ID:      receipt.ID,
		Name:    receipt.Name,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	token, err := s.auth.Login(req.Passcode)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.log.Warn(r.Context(), "operator login rejected", "remote", r.RemoteAddr)
			s.writeError(w, http.StatusUnauthorized, msgInvalidCode)
			return
		}
		s.log.Error(r.Context(), "issue session token", "error", err)
		s.writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	s.writeJSON(w, http.StatusOK, models.LoginResponse{Token: token})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.List(r.Context())
	if err != nil {
		status, msg := errorStatus(err, msgListFailed)
		s.writeError(w, status, msg)
		return
	}
	if list == nil {
		list = []models.Submission{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		status, msg := errorStatus(err, msgDeleteFailed)
		s.writeError(w, status, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := s.svc.Photo(r.Context(), r.PathValue("id"))
	if err != nil {
		status, msg := errorStatus(err, msgNotFound)
		s.writeError(w, status, msg)
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn(r.Context(), "stream photo", "id", r.PathValue("id"), "error", err)
	}
}

// errorStatus maps the error taxonomy to a status code and the message shown
// to the client. Validation messages are passed through as they are.
func errorStatus(err error, fallback string) (int, string) {
	var se *common.StoreError
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.As(err, &se):
		return http.StatusBadGateway, fallback
	default:
		return http.StatusInternalServerError, fallback
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error(context.Background(), "failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, models.ErrorResponse{Message: message})
}
