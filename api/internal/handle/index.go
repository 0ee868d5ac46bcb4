package handle

import (
	"net/http"

	"go.uber.org/zap"
)

type indexData struct {
	AnnotationDir string
	StatusMode    string
	Suggestions   bool
	Events        bool
}

func (h *Handle) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := h.page.Execute(w, indexData{
		AnnotationDir: h.dir.Path(),
		StatusMode:    string(h.checker.Mode()),
		Suggestions:   h.suggester != nil,
		Events:        h.events != nil,
	})
	if err != nil {
		h.log.Warn("render index", zap.Error(err))
	}
}
