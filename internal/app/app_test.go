package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/bundle"
	"github.com/ayusman/handsign/internal/config"
	"github.com/ayusman/handsign/internal/recognize"
	"github.com/ayusman/handsign/internal/store"
)

type fixedRecognizer struct {
	res recognize.Result
}

func (f fixedRecognizer) Recognize(ctx context.Context, img *gocv.Mat) (recognize.Result, error) {
	return f.res, nil
}

// writePlugin creates a shell plugin that copies its request into seen.json.
func writePlugin(t *testing.T, dir string) string {
	t.Helper()
	pluginDir := filepath.Join(dir, "recorder")
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat > seen.json\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(pluginDir, "run.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"recorder","executable":"run.sh","signs":["hello"]}`
	if err := os.WriteFile(filepath.Join(pluginDir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(pluginDir, "seen.json")
}

func TestNew_FallsBackWithoutBundle(t *testing.T) {
	a, err := New(Config{
		DBPath: filepath.Join(t.TempDir(), "data", "handsign.db"),
		Log:    zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if _, ok := a.recognizer.(recognize.DominantColor); !ok {
		t.Errorf("expected dominant colour recognizer, got %T", a.recognizer)
	}
	if a.store == nil {
		t.Error("expected store to be opened")
	}
}

func TestNew_BadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.task")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(Config{Server: config.ServerConfig{BundlePath: path}})
	if err == nil {
		t.Fatal("expected error for unreadable bundle")
	}
}

func TestApp_RecognitionRunsPluginsAndUpdatesTray(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV decode in short mode")
	}

	pluginDir := t.TempDir()
	seen := writePlugin(t, pluginDir)

	a, err := New(Config{
		Server:     config.ServerConfig{PluginDir: pluginDir},
		DBPath:     filepath.Join(t.TempDir(), "handsign.db"),
		Log:        zaptest.NewLogger(t),
		Recognizer: fixedRecognizer{res: recognize.Result{Label: "hello", Text: "hello", Score: 0.9, Handedness: "Right"}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if len(a.Plugins().List()) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(a.Plugins().List()))
	}

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(map[string]string{
		"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.Bytes()),
	})
	resp, err := http.Post(ts.URL+"/api/recognize", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/recognize error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	a.dispatcher.Wait()

	if got := a.Tray().LastSign(); got != "hello" {
		t.Errorf("tray last sign = %q, want hello", got)
	}

	data, err := os.ReadFile(seen)
	if err != nil {
		t.Fatalf("plugin did not run: %v", err)
	}
	var req struct {
		Sign  string  `json:"sign"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("invalid plugin request %q: %v", data, err)
	}
	if req.Sign != "hello" || req.Score != 0.9 {
		t.Errorf("unexpected plugin request %+v", req)
	}
}

func TestApp_IgnoresUnrecognizedOutcomes(t *testing.T) {
	a, err := New(Config{Recognizer: fixedRecognizer{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	a.onRecognition(store.Recognition{Outcome: "no_hand", Message: "No hand detected"})
	if a.Tray().Count() != 0 {
		t.Errorf("no-hand results should not reach the tray")
	}
}

func TestApp_Run(t *testing.T) {
	a, err := New(Config{
		Server:     config.ServerConfig{Addr: "127.0.0.1:0"},
		Recognizer: fixedRecognizer{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFeatureOptions(t *testing.T) {
	tests := []struct {
		name    string
		meta    bundle.Metadata
		dim     int
		wantErr bool
	}{
		{"default xy", bundle.Metadata{FeatureDim: 42}, 42, false},
		{"xyz normalized", bundle.Metadata{FeatureDim: 63, Fields: []string{"x", "y", "z"}, Normalize: true}, 63, false},
		{"dimension mismatch", bundle.Metadata{FeatureDim: 63, Fields: []string{"x", "y"}}, 0, true},
		{"unknown field", bundle.Metadata{FeatureDim: 42, Fields: []string{"x", "w"}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := FeatureOptions(&tt.meta)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FeatureOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if opts.Dim() != tt.dim {
					t.Errorf("Dim() = %d, want %d", opts.Dim(), tt.dim)
				}
				if opts.Normalize != tt.meta.Normalize {
					t.Errorf("Normalize = %v, want %v", opts.Normalize, tt.meta.Normalize)
				}
			}
		})
	}
}

func TestHistoryURL(t *testing.T) {
	if got := historyURL(":8080"); got != "http://localhost:8080/history" {
		t.Errorf("historyURL(:8080) = %q", got)
	}
	if got := historyURL("127.0.0.1:9000"); got != "http://127.0.0.1:9000/history" {
		t.Errorf("historyURL(127.0.0.1:9000) = %q", got)
	}
}
