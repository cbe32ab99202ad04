package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/recognize"
)

func runServe(ctx context.Context, e *env, args []string) error {
	sc := e.cfg.Server

	fs := e.newFlagSet("serve", "[-addr :8080] [-bundle signs.task]")
	fs.StringVar(&sc.Addr, "addr", sc.Addr, "listen address")
	fs.StringVar(&sc.BundlePath, "bundle", sc.BundlePath, "classifier bundle; without it images are answered by dominant colour")
	fs.StringVar(&sc.StaticDir, "static", sc.StaticDir, "directory with index.html and history.html (default: search web/)")
	fs.StringVar(&sc.PluginDir, "plugins", sc.PluginDir, "plugin directory")
	fs.BoolVar(&sc.Tray, "tray", sc.Tray, "show a system tray menu")
	if err := parse(fs, args); err != nil {
		return err
	}
	if sc.StaticDir == "" {
		sc.StaticDir = findWebDir(e.cfg.DataDir)
	}
	if sc.StaticDir != "" {
		e.log.Info("serving static files", zap.String("dir", sc.StaticDir))
		for _, page := range missingPages(sc.StaticDir) {
			e.log.Warn("static page missing", zap.String("dir", sc.StaticDir), zap.String("page", page))
		}
	} else {
		e.log.Warn("no web directory found; only the API is served")
	}

	a, err := app.New(app.Config{
		Server:   sc,
		Detector: e.cfg.Detector,
		DBPath:   e.cfg.DBPath,
		Log:      e.log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			e.log.Warn("shutdown", zap.Error(err))
		}
	}()

	return a.Run(ctx)
}

func runRecognize(ctx context.Context, e *env, args []string) error {
	sc := e.cfg.Server

	fs := e.newFlagSet("recognize", "-image photo.jpg [-bundle signs.task]")
	image := fs.String("image", "", "image file to recognize")
	fs.StringVar(&sc.BundlePath, "bundle", sc.BundlePath, "classifier bundle; without it the dominant colour is reported")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *image == "" {
		return usageErrorf("-image is required")
	}

	img, err := capture.ReadFile(*image)
	if err != nil {
		return err
	}
	defer img.Close()

	// No store or plugins for one-off recognition
	sc.PluginDir = ""
	a, err := app.New(app.Config{Server: sc, Detector: e.cfg.Detector, Log: e.log})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Recognizer().Recognize(ctx, img)
	switch {
	case errors.Is(err, recognize.ErrNoHand):
		fmt.Fprintln(e.stdout, "No hand detected")
		return nil
	case errors.Is(err, recognize.ErrNoMatch):
		fmt.Fprintf(e.stdout, "No sign recognized (best score %.3f)\n", res.Score)
		return nil
	case err != nil:
		return err
	}

	if res.Handedness != "" {
		fmt.Fprintf(e.stdout, "%s\t%.3f\t%s\n", res.Text, res.Score, res.Handedness)
	} else {
		fmt.Fprintf(e.stdout, "%s\t%.3f\n", res.Text, res.Score)
	}
	return nil
}

// findWebDir searches for the web directory in common locations.
// It checks "web", "../web", "../../web" and <dataDir>/web, returning the
// first existing directory or "" if none is found.
func findWebDir(dataDir string) string {
	candidates := []string{"web", "../web", "../../web"}
	if dataDir != "" {
		candidates = append(candidates, filepath.Join(dataDir, "web"))
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

// staticPages are the pages the server routes to StaticDir.
var staticPages = []string{"index.html", "history.html"}

func missingPages(dir string) []string {
	var missing []string
	for _, page := range staticPages {
		if _, err := os.Stat(filepath.Join(dir, page)); err != nil {
			missing = append(missing, page)
		}
	}
	return missing
}
