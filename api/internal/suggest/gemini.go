package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"image-annotator/api/internal/util"
)

const systemPrompt = `You label objects in a single image for an annotation tool.
Return every distinct object worth annotating as a bounding box.
box_2d is [ymin, xmin, ymax, xmax] with coordinates normalized to 0..1000.
label is a short class name. If a list of allowed labels is given, use only those labels
and skip objects that match none of them.
Output ONLY JSON of the form {"regions":[{"label":string,"box_2d":[number,number,number,number]}]}.`

type Gemini struct {
	APIKey string
	Model  string
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Gemini) Name() string { return "gemini" }

func (e *Gemini) Suggest(ctx context.Context, in Input) (Response, error) {
	if e.APIKey == "" {
		return Response{}, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return Response{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return Response{}, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	userText := "Detect the objects in this image."
	if len(in.Labels) > 0 {
		userText += " Allowed labels: " + strings.Join(in.Labels, ", ") + "."
	}
	parts := []genai.Part{
		genai.Text(userText),
		&genai.Blob{MIMEType: in.MIME, Data: in.Image},
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return Response{}, fmt.Errorf("gemini suggest: empty response")
		}
		return ParseResponse(txt)
	}
	return Response{}, lastErr
}

// ParseResponse accepts the model output with or without code fences or surrounding
// prose, and also a bare array of regions.
func ParseResponse(txt string) (Response, error) {
	txt = util.ExtractJSON(txt)
	var out Response
	if strings.HasPrefix(txt, "[") {
		if err := json.Unmarshal([]byte(txt), &out.Regions); err != nil {
			return Response{}, fmt.Errorf("gemini suggest: bad JSON: %w", err)
		}
		return out, nil
	}
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return Response{}, fmt.Errorf("gemini suggest: bad JSON: %w", err)
	}
	return out, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
