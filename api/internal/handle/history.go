package handle

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"image-annotator/api/internal/store"
)

// AnnotationHistory lists recent saves of one record from the journal.
func (h *Handle) AnnotationHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if h.history == nil {
		writeError(w, http.StatusNotFound, "save journal is disabled")
		return
	}
	filename := strings.TrimPrefix(r.URL.Path, "/annotation_history/")
	if _, err := store.RecordPath(h.dir.Path(), filename); errors.Is(err, store.ErrInvalidFilename) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.history.Recent(r.Context(), filename, limit)
	if err != nil {
		h.log.Error("journal query failed", zap.String("filename", filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "journal query failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
