// Package app wires the recognition server together: store, classifier
// bundle, hand detector, plugins and the optional tray.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/bundle"
	"github.com/ayusman/handsign/internal/classifier"
	"github.com/ayusman/handsign/internal/config"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/extract"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/logger"
	"github.com/ayusman/handsign/internal/metrics"
	"github.com/ayusman/handsign/internal/plugin"
	"github.com/ayusman/handsign/internal/recognize"
	"github.com/ayusman/handsign/internal/server"
	"github.com/ayusman/handsign/internal/store"
	"github.com/ayusman/handsign/internal/tray"
)

// Config holds configuration options for the application.
type Config struct {
	Server   config.ServerConfig
	Detector detector.Config
	DBPath   string
	Log      *zap.Logger

	// Recognizer replaces the one built from the bundle and detector.
	Recognizer recognize.Recognizer
}

// App is the running recognition service.
type App struct {
	config     Config
	log        *zap.Logger
	store      *store.Store
	recognizer recognize.Recognizer
	server     *server.Server
	plugins    *plugin.Manager
	dispatcher *plugin.Dispatcher
	tray       *tray.Tray

	closers []io.Closer
	once    sync.Once
}

// New creates the application. Without a bundle, or when the hand landmarker
// is unavailable, it falls back to the dominant colour recognizer.
func New(cfg Config) (*App, error) {
	a := &App{
		config: cfg,
		log:    logger.OrNop(cfg.Log),
	}

	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		st, err := store.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, st)
	}

	a.recognizer = cfg.Recognizer
	if a.recognizer == nil {
		r, err := a.buildRecognizer()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.recognizer = r
	}

	a.plugins = plugin.NewManager(cfg.Server.PluginDir, a.log)
	if err := a.plugins.Discover(); err != nil {
		a.log.Warn("plugin discovery failed", zap.String("dir", cfg.Server.PluginDir), zap.Error(err))
	}
	a.dispatcher = plugin.NewDispatcher(a.plugins, plugin.NewExecutor(plugin.DefaultTimeout), a.log)

	a.server = server.New(server.Config{
		StaticDir:  cfg.Server.StaticDir,
		Store:      a.store,
		Recognizer: a.recognizer,
		Log:        a.log,
	})
	a.tray = tray.New(a.server.Enabled())
	a.server.OnRecognition(a.onRecognition)

	return a, nil
}

func (a *App) buildRecognizer() (recognize.Recognizer, error) {
	if a.config.Server.BundlePath == "" {
		a.log.Warn("no classifier bundle configured, using dominant colour recognizer")
		return recognize.DominantColor{}, nil
	}

	cls, meta, err := classifier.Load(a.config.Server.BundlePath, a.log)
	if err != nil {
		return nil, fmt.Errorf("load bundle %s: %w", a.config.Server.BundlePath, err)
	}
	if c, ok := cls.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	features, err := FeatureOptions(meta)
	if err != nil {
		return nil, err
	}

	det, err := detector.NewMediaPipeDetector(a.config.Detector, a.log)
	if err != nil {
		a.log.Warn("hand landmarker unavailable, using dominant colour recognizer", zap.Error(err))
		return recognize.DominantColor{}, nil
	}
	a.closers = append(a.closers, det)

	a.log.Info("classifier loaded",
		zap.String("bundle", a.config.Server.BundlePath),
		zap.String("kind", string(meta.Kind)),
		zap.Int("labels", len(meta.Labels)),
		zap.Int("feature_dim", meta.FeatureDim),
	)
	return recognize.NewLandmark(det, cls, features, a.log), nil
}

// FeatureOptions returns the vector layout a bundle was trained on.
func FeatureOptions(meta *bundle.Metadata) (extract.Options, error) {
	opts := extract.DefaultOptions()
	opts.Normalize = meta.Normalize
	if len(meta.Fields) > 0 {
		opts.Fields = opts.Fields[:0:0]
		for _, s := range meta.Fields {
			f, err := landmark.ParseField(s)
			if err != nil {
				return extract.Options{}, fmt.Errorf("bundle fields: %w", err)
			}
			opts.Fields = append(opts.Fields, f)
		}
	}
	if opts.Dim() != meta.FeatureDim {
		return extract.Options{}, fmt.Errorf("bundle fields give %d values, metadata declares %d", opts.Dim(), meta.FeatureDim)
	}
	return opts, nil
}

func (a *App) onRecognition(rec store.Recognition) {
	if rec.Outcome != metrics.OutcomeRecognized {
		return
	}
	a.tray.SetLastSign(rec.Label)
	a.dispatcher.Dispatch(context.Background(), plugin.Request{
		Sign:       rec.Label,
		Text:       rec.Message,
		Score:      rec.Score,
		Handedness: rec.Handedness,
	})
}

// Handler returns the HTTP handler of the server.
func (a *App) Handler() http.Handler {
	return a.server
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Recognizer returns the recognizer serving /api/recognize.
func (a *App) Recognizer() recognize.Recognizer {
	return a.recognizer
}

// Tray returns the tray menu state.
func (a *App) Tray() *tray.Tray {
	return a.tray
}

// Plugins returns the plugin manager.
func (a *App) Plugins() *plugin.Manager {
	return a.plugins
}

// Run serves until ctx is cancelled. With the tray enabled the tray owns the
// calling goroutine and quitting it stops the server.
func (a *App) Run(ctx context.Context) error {
	if !a.config.Server.Tray {
		return a.server.ListenAndServe(ctx, a.config.Server.Addr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.tray.OnToggle(a.server.SetEnabled)
	a.tray.OnQuit(cancel)
	a.tray.OnHistory(func() {
		if err := openBrowser(historyURL(a.config.Server.Addr)); err != nil {
			a.log.Warn("failed to open browser", zap.Error(err))
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe(ctx, a.config.Server.Addr)
		a.tray.Quit()
	}()

	a.tray.Run()
	cancel()
	return <-errCh
}

// Close waits for running plugins and releases the detector, classifier
// and store.
func (a *App) Close() error {
	var errs []error
	a.once.Do(func() {
		if a.dispatcher != nil {
			a.dispatcher.Wait()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func historyURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/history"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
