package handle

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const propertiesFile = "properties_config.json"

// PropertiesConfig passes <root>/properties_config.json through unchanged.
func (h *Handle) PropertiesConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	b, err := os.ReadFile(filepath.Join(h.rootDir, propertiesFile))
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, propertiesFile+" not found")
		return
	}
	if err != nil {
		h.log.Error("read properties config", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "read "+propertiesFile+" failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
