package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"veochat-backend/internal/blob"
)

type BlobHandler struct {
	blobs *blob.Store
}

func NewBlobHandler(blobs *blob.Store) *BlobHandler {
	return &BlobHandler{blobs: blobs}
}

// ServeBlob streams a held video. A released or unknown handle is a 404;
// the client treats that as the video being gone for good.
func (h *BlobHandler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	b, ok := h.blobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Video not found or already released", r))
		return
	}

	w.Header().Set("Content-Type", b.MIMEType)
	w.Header().Set("Content-Length", strconv.FormatInt(b.Size(), 10))
	w.WriteHeader(http.StatusOK)
	w.Write(b.Data)
}
