package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"image-annotator/api/internal/store"
)

type setDirRequest struct {
	Path string `json:"path"`
}

// SetAnnotationDir redirects all later reads and writes to another directory.
func (h *Handle) SetAnnotationDir(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req setDirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}

	path, err := h.dir.Set(req.Path)
	if err != nil {
		if errors.Is(err, store.ErrInvalidPath) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.log.Info("annotation directory changed", zap.String("dir", path))

	if h.events != nil {
		// a directory created on first write is picked up at the next retarget
		_ = h.events.Retarget(path)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": path})
}

func (h *Handle) GetAnnotationDir(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": h.dir.Path()})
}
