package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/cdngate/pkg/admission"
	"github.com/dmitrymomot/cdngate/pkg/filerecord"
	"github.com/dmitrymomot/cdngate/pkg/profile"
)

// Cache policy for served files. Public files are immutable once uploaded so
// long shared caching is safe; private files must never be cached.
const (
	publicCacheControl  = "public, max-age=86400"
	privateCacheControl = "private, no-store"
)

// uploadResponse is the data payload of a successful upload.
type uploadResponse struct {
	FileKey string `json:"file_key"`
	URL     string `json:"url"`
}

// handleUpload accepts a multipart form with either a direct file or a
// remote image_url, plus the target profile and an optional custom folder.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxBodySize); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	profileName := r.FormValue("profile")
	if profileName == "" {
		respondError(w, http.StatusBadRequest, "Missing upload profile")
		return
	}

	cand := admission.Candidate{CustomFolder: r.FormValue("folder")}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		cand.Source = admission.BytesSource{Data: data}
		cand.OriginalName = header.Filename
	case r.FormValue("image_url") != "":
		cand.Source = admission.RemoteSource{URL: r.FormValue("image_url")}
	default:
		respondError(w, http.StatusBadRequest, "No file or image_url provided")
		return
	}

	res, err := s.uploads.Upload(r.Context(), profileName, cand)
	if err != nil {
		s.respondUploadError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusOK, uploadResponse{FileKey: res.FileKey, URL: res.URL})
}

func (s *Server) respondUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, admission.ErrUnknownProfile):
		respondError(w, http.StatusBadRequest, "Unknown upload profile")
	case errors.Is(err, admission.ErrEmptyFile):
		respondError(w, http.StatusBadRequest, "File is empty")
	case errors.Is(err, admission.ErrInvalidURL):
		respondError(w, http.StatusBadRequest, "Invalid source URL")
	case errors.Is(err, profile.ErrUnsafeFolder):
		respondError(w, http.StatusBadRequest, "Invalid custom folder")
	case errors.Is(err, admission.ErrTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "File exceeds the profile size limit")
	case errors.Is(err, admission.ErrUnsupportedType):
		respondError(w, http.StatusUnsupportedMediaType, "File type not allowed")
	case errors.Is(err, admission.ErrSSRFBlocked), errors.Is(err, admission.ErrFetchFailed):
		respondError(w, http.StatusUnprocessableEntity, "Failed to fetch source URL")
	default:
		s.logger.ErrorContext(r.Context(), "upload failed",
			slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "Upload failed")
	}
}

// handleServePublic streams a public file. Private, deleted, expired, and
// unknown keys all produce the same 404.
func (s *Server) handleServePublic(w http.ResponseWriter, r *http.Request) {
	fileKey := chi.URLParam(r, "fileKey")

	rec, err := s.records.ResolveForAccess(r.Context(), fileKey)
	if err != nil || !rec.IsPublic {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	s.serveFile(w, r, rec, publicCacheControl)
}

// handleServePrivate streams a file through a signed link. Any signature or
// resolution failure produces the same 404 as an unknown key.
func (s *Server) handleServePrivate(w http.ResponseWriter, r *http.Request) {
	fileKey := chi.URLParam(r, "fileKey")

	if !s.codec.VerifyQuery(fileKey, r.URL.Query()) {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	rec, err := s.records.ResolveForAccess(r.Context(), fileKey)
	if err != nil {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	s.serveFile(w, r, rec, privateCacheControl)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, rec *filerecord.Record, cacheControl string) {
	body, err := s.blobs.Open(r.Context(), rec.StorageKey())
	if err != nil {
		// Metadata exists but the bytes are gone. Surface the same 404 as an
		// unknown key; the mismatch is an operational problem, so log it.
		s.logger.ErrorContext(r.Context(), "blob missing for live record",
			slog.String("file_key", rec.FileKey),
			slog.String("error", err.Error()))
		respondError(w, http.StatusNotFound, "File not found")
		return
	}
	defer body.Close()

	s.records.IncrementDownload(r.Context(), rec.FileKey)

	w.Header().Set("Content-Type", rec.MIMEType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, body); err != nil {
		s.logger.WarnContext(r.Context(), "failed to stream file",
			slog.String("file_key", rec.FileKey),
			slog.String("error", err.Error()))
	}
}

// handleDelete soft-deletes a file. The key becomes unreachable from every
// read path immediately.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileKey := chi.URLParam(r, "fileKey")

	if err := s.uploads.Delete(r.Context(), fileKey); err != nil {
		if errors.Is(err, filerecord.ErrNotFound) {
			respondError(w, http.StatusNotFound, "File not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "delete failed",
			slog.String("file_key", fileKey),
			slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "Delete failed")
		return
	}

	respondSuccess(w, http.StatusOK, map[string]string{"file_key": fileKey})
}
