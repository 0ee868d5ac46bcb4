package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"image-annotator/api/internal/status"
	"image-annotator/api/internal/store"
	"image-annotator/api/internal/suggest"
	"image-annotator/api/internal/watch"
)

type fixture struct {
	root string
	dir  *store.Directory
	mux  *http.ServeMux
}

func newFixture(t *testing.T, mode status.Mode, extra func(*Deps)) *fixture {
	t.Helper()
	root := t.TempDir()
	dir := store.NewDirectory(filepath.Join(root, "annotations"))
	log := zap.NewNop()
	d := Deps{
		Log:     log,
		Dir:     dir,
		Records: store.NewRecords(dir, log, nil),
		Checker: status.NewChecker(dir, mode, 4, log),
		RootDir: root,
	}
	if extra != nil {
		extra(&d)
	}
	mux := http.NewServeMux()
	New(d).Routes(mux)
	return &fixture{root: root, dir: dir, mux: mux}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func TestScenario_SaveThenStatus(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)

	rr := f.do(t, http.MethodPost, "/batch_annotation_status", `{"filenames":["a","b"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"a":"none","b":"none"}`, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/annotations/a", `[{"label":"cat"}]`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"message":"Annotations saved."}`, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/annotations/a", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"label":"cat"}]`, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/batch_annotation_status", `{"filenames":["a","b"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"a":"annotated","b":"none"}`, rr.Body.String())
}

func TestAnnotations_RoundTripPreservesValue(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)
	body := `[{"x":10.5,"y":20,"w":30,"h":40,"properties":{"Class":{"name":"dog","icon":"dog.png"}}}]`

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/annotations/photos/IMG_0001.JPG", body).Code)
	rr := f.do(t, http.MethodGet, "/annotations/photos/IMG_0001.JPG", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var want, got any
	require.NoError(t, json.Unmarshal([]byte(body), &want))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAnnotations_EmptyListIsEmptyStatus(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/annotations/a.jpg", `[]`).Code)

	rr := f.do(t, http.MethodPost, "/batch_annotation_status", `{"filenames":["a.jpg"]}`)
	assert.JSONEq(t, `{"a.jpg":"empty"}`, rr.Body.String())
}

func TestAnnotations_MalformedFileOnDisk(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)
	require.NoError(t, os.MkdirAll(f.dir.Path(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir.Path(), "blank.jpg.json"), []byte("  \n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir.Path(), "bad.jpg.json"), []byte("{nope"), 0o644))

	rr := f.do(t, http.MethodPost, "/batch_annotation_status", `{"filenames":["blank.jpg","bad.jpg"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"blank.jpg":"empty","bad.jpg":"empty"}`, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/annotations/bad.jpg", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestAnnotations_BadRequests(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/annotations/a.jpg", `[{`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/annotations/", `[]`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodDelete, "/annotations/a.jpg", "").Code)
	assert.NoDirExists(t, f.dir.Path())
}

func TestBatchStatus_ExistsMode(t *testing.T) {
	f := newFixture(t, status.ModeExists, nil)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/annotations/a.jpg", `[]`).Code)

	rr := f.do(t, http.MethodPost, "/batch_annotation_status", `{"filenames":["a.jpg","b.jpg"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"a.jpg":true,"b.jpg":false}`, rr.Body.String())
}

func TestBatchStatus_Requests(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)

	rr := f.do(t, http.MethodPost, "/batch_annotation_status", `{}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{}`, rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/batch_annotation_status", `not json`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/batch_annotation_status", "").Code)
}

func TestSetAnnotationDir(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)
	other := t.TempDir()

	rr := f.do(t, http.MethodPost, "/set_annotation_dir", `{"path":`+strconvQuote(other)+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"path":`+strconvQuote(other)+`}`, rr.Body.String())

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/annotations/a.jpg", `[1]`).Code)
	assert.FileExists(t, filepath.Join(other, "a.jpg.json"))

	rr = f.do(t, http.MethodGet, "/get_annotation_dir", "")
	assert.JSONEq(t, `{"path":`+strconvQuote(other)+`}`, rr.Body.String())
}

func TestSetAnnotationDir_Invalid(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)
	before := f.dir.Path()
	bad := filepath.Join(t.TempDir(), "missing", "child")

	rr := f.do(t, http.MethodPost, "/set_annotation_dir", `{"path":`+strconvQuote(bad)+`}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "error")
	assert.Equal(t, before, f.dir.Path())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/set_annotation_dir", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/set_annotation_dir", `{`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/set_annotation_dir", "").Code)
	assert.Equal(t, before, f.dir.Path())
}

func TestPropertiesConfig(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/get_properties_config", "").Code)

	cfg := `{"Class":[{"name":"cat","icon":"cat.png"},{"name":"dog"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(f.root, propertiesFile), []byte(cfg), 0o644))

	rr := f.do(t, http.MethodGet, "/get_properties_config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, cfg, rr.Body.String())
}

func TestIndexAndStatic(t *testing.T) {
	f := newFixture(t, status.ModeTriState, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "static"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "static", "style.css"), []byte("body{}"), 0o644))

	rr := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Image Annotator")
	assert.Contains(t, rr.Body.String(), `data-status-mode="tristate"`)
	assert.NotContains(t, rr.Body.String(), `id="suggest-btn"`)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope", "").Code)

	// files under <root>/static win over the bundled UI
	rr = f.do(t, http.MethodGet, "/static/style.css", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "body{}", rr.Body.String())

	rr = f.do(t, http.MethodGet, "/static/js/main.js", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rr.Body.String(), "initializeEventListeners")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/static/js/missing.js", "").Code)

	rr = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, "ok", rr.Body.String())
}

var elementIDRe = regexp.MustCompile(`getElementById\('([^']+)'\)`)

func TestIndex_HasEveryElementTheScriptsUse(t *testing.T) {
	f := newFixture(t, status.ModeTriState, func(d *Deps) { d.Suggester = &fakeEngine{} })
	rr := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	page := rr.Body.String()
	assert.Contains(t, page, `src="/static/js/main.js"`)
	assert.Contains(t, page, `data-suggestions="true"`)

	var ids []string
	err := fs.WalkDir(bundledFS, "static/js", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		src, err := fs.ReadFile(bundledFS, path)
		if err != nil {
			return err
		}
		for _, m := range elementIDRe.FindAllStringSubmatch(string(src), -1) {
			ids = append(ids, m[1])
		}
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	for _, id := range ids {
		assert.Contains(t, page, `id="`+id+`"`, id)
	}
}

type fakeHistory struct {
	filename string
	limit    int
	err      error
}

func (h *fakeHistory) Recent(_ context.Context, filename string, limit int) ([]store.JournalEntry, error) {
	h.filename, h.limit = filename, limit
	if h.err != nil {
		return nil, h.err
	}
	return []store.JournalEntry{{ID: "1", Filename: filename, Items: 2, SavedAt: time.Unix(0, 0).UTC()}}, nil
}

func TestAnnotationHistory(t *testing.T) {
	disabled := newFixture(t, status.ModeTriState, nil)
	assert.Equal(t, http.StatusNotFound, disabled.do(t, http.MethodGet, "/annotation_history/a.jpg", "").Code)

	hist := &fakeHistory{}
	f := newFixture(t, status.ModeTriState, func(d *Deps) { d.History = hist })

	rr := f.do(t, http.MethodGet, "/annotation_history/set/a.jpg?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "set/a.jpg", hist.filename)
	assert.Equal(t, 5, hist.limit)

	var got []store.JournalEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Items)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/annotation_history/", "").Code)

	hist.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodGet, "/annotation_history/a.jpg", "").Code)
}

type fakeEngine struct {
	in   suggest.Input
	resp suggest.Response
	err  error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Suggest(_ context.Context, in suggest.Input) (suggest.Response, error) {
	e.in = in
	return e.resp, e.err
}

func pngB64(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestSuggestAnnotations(t *testing.T) {
	disabled := newFixture(t, status.ModeTriState, nil)
	assert.Equal(t, http.StatusServiceUnavailable,
		disabled.do(t, http.MethodPost, "/suggest_annotations", `{"image_b64":"x"}`).Code)

	eng := &fakeEngine{resp: suggest.Response{Regions: []suggest.Region{
		{Label: "cat", Box: []float64{0, 0, 500, 500}},
	}}}
	f := newFixture(t, status.ModeTriState, func(d *Deps) { d.Suggester = eng })

	body := `{"image_b64":"data:image/png;base64,` + pngB64(t, 200, 100) + `","labels":["cat","dog"]}`
	rr := f.do(t, http.MethodPost, "/suggest_annotations", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `[{"x":0,"y":0,"w":100,"h":50,"properties":{"Class":{"name":"cat"}}}]`, rr.Body.String())
	assert.Equal(t, "image/png", eng.in.MIME)
	assert.Equal(t, []string{"cat", "dog"}, eng.in.Labels)

	// the decoded format overrides a wrong client-declared type
	rr = f.do(t, http.MethodPost, "/suggest_annotations", `{"image_b64":"`+pngB64(t, 10, 10)+`","mime":"image/jpeg"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "image/png", eng.in.MIME)

	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/suggest_annotations", `{"image_b64":"data:text/plain;base64,`+pngB64(t, 10, 10)+`"}`).Code)

	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/suggest_annotations", `{"image_b64":"!!!"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/suggest_annotations",
			`{"image_b64":"`+base64.StdEncoding.EncodeToString([]byte("plain text"))+`"}`).Code)

	eng.err = errors.New("quota")
	assert.Equal(t, http.StatusBadGateway,
		f.do(t, http.MethodPost, "/suggest_annotations", `{"image_b64":"`+pngB64(t, 10, 10)+`"}`).Code)
}

type fakeEvents struct {
	ch       chan watch.Event
	retarget []string
}

func (e *fakeEvents) Subscribe() (<-chan watch.Event, func()) { return e.ch, func() {} }

func (e *fakeEvents) Retarget(dir string) error {
	e.retarget = append(e.retarget, dir)
	return nil
}

func TestAnnotationEvents(t *testing.T) {
	disabled := newFixture(t, status.ModeTriState, nil)
	assert.Equal(t, http.StatusNotFound, disabled.do(t, http.MethodGet, "/annotation_events", "").Code)

	ev := &fakeEvents{ch: make(chan watch.Event, 1)}
	f := newFixture(t, status.ModeTriState, func(d *Deps) { d.Events = ev })

	ev.ch <- watch.Event{Filename: "a.jpg", Op: watch.OpWrite}
	close(ev.ch)

	rr := f.do(t, http.MethodGet, "/annotation_events", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "event: record\ndata: {\"filename\":\"a.jpg\",\"op\":\"write\"}\n\n")

	other := t.TempDir()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/set_annotation_dir", `{"path":`+strconvQuote(other)+`}`).Code)
	assert.Equal(t, []string{other}, ev.retarget)
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
