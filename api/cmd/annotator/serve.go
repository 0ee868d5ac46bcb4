package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"image-annotator/api/internal/config"
	"image-annotator/api/internal/handle"
	"image-annotator/api/internal/httpserver"
	"image-annotator/api/internal/status"
	"image-annotator/api/internal/store"
	"image-annotator/api/internal/suggest"
	"image-annotator/api/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the annotation web server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

type app struct {
	dir     *store.Directory
	mux     *http.ServeMux
	server  *httpserver.Server
	journal *store.JournalRepo
	watcher *watch.Watcher
}

func (a *app) Close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	return g.Wait()
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{dir: store.NewDirectory(cfg.ResolvedAnnotationDir())}
	if err := os.MkdirAll(a.dir.Path(), 0o755); err != nil {
		return nil, err
	}
	log.Info("annotation directory", zap.String("dir", a.dir.Path()), zap.String("root", cfg.RootDir))

	deps := handle.Deps{
		Log:            log,
		Dir:            a.dir,
		Checker:        status.NewChecker(a.dir, status.Mode(cfg.StatusMode), cfg.StatusWorkers, log),
		RootDir:        cfg.RootDir,
		SuggestTimeout: cfg.Suggest.Timeout,
	}

	var recorder store.SaveRecorder
	if cfg.Journal.Driver != "" {
		repo, err := openJournal(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		a.journal = repo
		recorder = repo
		deps.History = repo
	}
	deps.Records = store.NewRecords(a.dir, log, recorder)

	if cfg.SuggestEnabled() {
		deps.Suggester = suggest.NewGemini(cfg.Suggest.APIKey, cfg.Suggest.Model)
		log.Info("suggestions enabled", zap.String("model", cfg.Suggest.Model))
	}

	if cfg.Watch.Enabled {
		w, err := watch.New(log, cfg.Watch.Debounce)
		if err != nil {
			a.Close()
			return nil, err
		}
		_ = w.Retarget(a.dir.Path())
		a.watcher = w
		deps.Events = w
	}

	a.mux = http.NewServeMux()
	handle.New(deps).Routes(a.mux)
	a.server = httpserver.New(cfg.Addr, a.mux, log)
	return a, nil
}
