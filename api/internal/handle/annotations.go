package handle

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"image-annotator/api/internal/store"
)

// Annotations serves GET and POST /annotations/<filename>.
func (h *Handle) Annotations(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/annotations/")

	switch r.Method {
	case http.MethodGet:
		data, err := h.records.Get(filename)
		if err != nil {
			h.storeError(w, "load annotations", filename, err)
			return
		}
		writeJSON(w, http.StatusOK, data)

	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		save, err := h.records.Put(r.Context(), filename, body)
		if err != nil {
			h.storeError(w, "save annotations", filename, err)
			return
		}
		h.log.Info("annotations saved",
			zap.String("filename", filename), zap.String("dir", save.Dir), zap.Int("items", save.Items))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Annotations saved."})

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}

func (h *Handle) storeError(w http.ResponseWriter, op, filename string, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidFilename), errors.Is(err, store.ErrInvalidJSON):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(op+" failed", zap.String("filename", filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}
