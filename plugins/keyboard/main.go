// Package main provides a keyboard plugin that types the recognized sign.
// It uses AppleScript on macOS and xdotool elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Sign   string          `json:"sign"`
	Text   string          `json:"text"`
	Score  float64         `json:"score"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config controls what gets typed.
type Config struct {
	Suffix    string            `json:"suffix"`    // appended after every sign, e.g. " "
	Uppercase bool              `json:"uppercase"` // type letters in upper case
	Replace   map[string]string `json:"replace"`   // sign -> text, e.g. "space" -> " "
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}

	text := textFor(req, cfg)
	if text == "" {
		writeErrorResponse("nothing to type")
		return
	}

	if err := typeText(text); err != nil {
		writeErrorResponse(fmt.Sprintf("typing %q failed: %v", text, err))
		return
	}

	data, _ := json.Marshal(map[string]string{"typed": text})
	writeSuccessResponse(data)
}

// textFor returns the keystrokes for a recognized sign.
func textFor(req Request, cfg Config) string {
	text := req.Text
	if text == "" {
		text = req.Sign
	}
	if r, ok := cfg.Replace[req.Sign]; ok {
		text = r
	}
	if cfg.Uppercase {
		text = strings.ToUpper(text)
	}
	if text == "" {
		return ""
	}
	return text + cfg.Suffix
}

func typeText(text string) error {
	if runtime.GOOS == "darwin" {
		return run("osascript", "-e", buildKeystrokeScript(text))
	}
	return run("xdotool", "type", "--", text)
}

// buildKeystrokeScript generates an AppleScript that types text.
func buildKeystrokeScript(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
