package handle

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"image-annotator/api/internal/status"
	"image-annotator/api/internal/store"
	"image-annotator/api/internal/suggest"
	"image-annotator/api/internal/watch"
)

//go:embed templates/index.html
var templatesFS embed.FS

//go:embed static
var bundledFS embed.FS

const maxRecordBytes = 32 << 20

// History is the read side of the save journal.
type History interface {
	Recent(ctx context.Context, filename string, limit int) ([]store.JournalEntry, error)
}

// Events is the record change feed.
type Events interface {
	Subscribe() (<-chan watch.Event, func())
	Retarget(dir string) error
}

// Deps are the collaborators of Handle. History, Suggester and Events are optional.
type Deps struct {
	Log     *zap.Logger
	Dir     *store.Directory
	Records *store.Records
	Checker *status.Checker
	// RootDir holds properties_config.json and static/.
	RootDir string

	History        History
	Suggester      suggest.Engine
	SuggestTimeout time.Duration
	Events         Events
}

type Handle struct {
	log     *zap.Logger
	dir     *store.Directory
	records *store.Records
	checker *status.Checker
	rootDir string

	history        History
	suggester      suggest.Engine
	suggestTimeout time.Duration
	events         Events

	page *template.Template
}

func New(d Deps) *Handle {
	if d.SuggestTimeout <= 0 {
		d.SuggestTimeout = 60 * time.Second
	}
	return &Handle{
		log:            d.Log,
		dir:            d.Dir,
		records:        d.Records,
		checker:        d.Checker,
		rootDir:        d.RootDir,
		history:        d.History,
		suggester:      d.Suggester,
		suggestTimeout: d.SuggestTimeout,
		events:         d.Events,
		page:           template.Must(template.ParseFS(templatesFS, "templates/index.html")),
	}
}

// Routes registers every endpoint on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", h.Index)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(h.staticFS())))

	mux.HandleFunc("/set_annotation_dir", h.SetAnnotationDir)
	mux.HandleFunc("/get_annotation_dir", h.GetAnnotationDir)
	mux.HandleFunc("/get_properties_config", h.PropertiesConfig)
	mux.HandleFunc("/annotations/", h.Annotations)
	mux.HandleFunc("/batch_annotation_status", h.BatchStatus)

	mux.HandleFunc("/annotation_history/", h.AnnotationHistory)
	mux.HandleFunc("/suggest_annotations", h.SuggestAnnotations)
	mux.HandleFunc("/annotation_events", h.AnnotationEvents)
}

// staticFS serves <root>/static first and falls back to the bundled UI.
func (h *Handle) staticFS() fs.FS {
	bundled, err := fs.Sub(bundledFS, "static")
	if err != nil {
		panic(err)
	}
	return layeredFS{os.DirFS(filepath.Join(h.rootDir, "static")), bundled}
}

type layeredFS []fs.FS

func (l layeredFS) Open(name string) (fs.File, error) {
	err := fs.ErrNotExist
	for _, fsys := range l {
		f, openErr := fsys.Open(name)
		if openErr == nil {
			return f, nil
		}
		if !errors.Is(openErr, fs.ErrNotExist) {
			return nil, openErr
		}
		err = openErr
	}
	return nil, err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
