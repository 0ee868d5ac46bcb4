package suggest

import (
	"context"
	"math"
	"strings"
)

// ROI is a rectangle in image pixels, shaped like the records the UI saves.
type ROI struct {
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	W          float64        `json:"w"`
	H          float64        `json:"h"`
	Properties map[string]any `json:"properties"`
}

// Region is one detection as returned by the model: box_2d is
// [ymin, xmin, ymax, xmax] normalized to 0..1000.
type Region struct {
	Label string    `json:"label"`
	Box   []float64 `json:"box_2d"`
}

type Response struct {
	Regions []Region `json:"regions"`
}

type Input struct {
	Image  []byte
	MIME   string
	Labels []string
}

// Engine proposes regions for an image.
type Engine interface {
	Name() string
	Suggest(ctx context.Context, in Input) (Response, error)
}

// NormalizeSuggestions converts model regions into pixel ROIs for an image of the given size.
// Malformed boxes and boxes with no area after clamping are dropped.
func NormalizeSuggestions(resp Response, width, height int) []ROI {
	out := make([]ROI, 0, len(resp.Regions))
	if width <= 0 || height <= 0 {
		return out
	}
	for _, r := range resp.Regions {
		if len(r.Box) != 4 {
			continue
		}
		ymin, xmin := clamp1000(r.Box[0]), clamp1000(r.Box[1])
		ymax, xmax := clamp1000(r.Box[2]), clamp1000(r.Box[3])
		if xmax <= xmin || ymax <= ymin {
			continue
		}
		x := math.Round(xmin / 1000 * float64(width))
		y := math.Round(ymin / 1000 * float64(height))
		w := math.Round(xmax/1000*float64(width)) - x
		h := math.Round(ymax/1000*float64(height)) - y
		if w <= 0 || h <= 0 {
			continue
		}
		label := strings.TrimSpace(r.Label)
		if label == "" {
			label = "Untitled"
		}
		out = append(out, ROI{
			X: x, Y: y, W: w, H: h,
			Properties: map[string]any{"Class": map[string]any{"name": label}},
		})
	}
	return out
}

func clamp1000(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}
