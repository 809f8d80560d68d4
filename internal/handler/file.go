package handler

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/chatlink/internal/fileserver"
)

type FileHandler struct {
	files *fileserver.Service
}

func NewFileHandler(svc *fileserver.Service) *FileHandler {
	return &FileHandler{files: svc}
}

// Upload принимает multipart "file"; в ответе {url, mimeType, originalName, size}.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	h.files.Upload(w, r)
}

func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.files.Serve(w, r, filepath.Base(chi.URLParam(r, "filename")))
}
