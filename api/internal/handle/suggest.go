package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"go.uber.org/zap"

	"image-annotator/api/internal/suggest"
	"image-annotator/api/internal/util"
)

const maxImageBytes = 20 << 20

type SuggestRequest struct {
	ImageB64 string   `json:"image_b64"`
	MIME     string   `json:"mime,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

// SuggestAnnotations asks the configured engine for candidate regions and returns
// them as ROIs in image pixels. Nothing is saved.
func (h *Handle) SuggestAnnotations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if h.suggester == nil {
		writeError(w, http.StatusServiceUnavailable, "suggestions are disabled: GEMINI_API_KEY is not set")
		return
	}
	var req SuggestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImageBytes*2)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}

	img, declared, err := util.DecodeImagePayload(req.ImageB64)
	if err != nil || len(img) == 0 {
		writeError(w, http.StatusBadRequest, "bad image_b64")
		return
	}
	if len(img) > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported image: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.suggestTimeout)
	defer cancel()

	resp, err := h.suggester.Suggest(ctx, suggest.Input{
		Image:  img,
		MIME:   util.ImageMIME(format, req.MIME, declared),
		Labels: req.Labels,
	})
	if err != nil {
		h.log.Warn("suggest failed", zap.String("engine", h.suggester.Name()), zap.Error(err))
		writeError(w, http.StatusBadGateway, "suggest error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, suggest.NormalizeSuggestions(resp, cfg.Width, cfg.Height))
}
