package handle

import (
	"encoding/json"
	"net/http"
)

type batchStatusRequest struct {
	Filenames []string `json:"filenames"`
}

// BatchStatus reports a verdict for every requested filename; it never fails on record content.
func (h *Handle) BatchStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req batchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.checker.Check(req.Filenames))
}
