// Package main provides a system control plugin for macOS.
// It maps recognized signs to volume and media controls via AppleScript.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

// Request represents the input from the plugin executor.
type Request struct {
	Sign   string          `json:"sign"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config maps sign labels to control names, e.g. {"louder": "volume-up"}.
type Config struct {
	Actions map[string]string `json:"actions"`
}

// scripts maps control names to their AppleScript.
var scripts = map[string]string{
	"volume-up":        `set volume output volume ((output volume of (get volume settings)) + 10)`,
	"volume-down":      `set volume output volume ((output volume of (get volume settings)) - 10)`,
	"volume-mute":      `set volume output muted (not (output muted of (get volume settings)))`,
	"media-play-pause": "tell application \"System Events\"\n\tkey code 100\nend tell",
	"media-next":       "tell application \"System Events\"\n\tkey code 101\nend tell",
	"media-prev":       "tell application \"System Events\"\n\tkey code 98\nend tell",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	action, script, err := scriptFor(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	if err := runAppleScript(script); err != nil {
		writeErrorResponse(fmt.Sprintf("control %s failed: %v", action, err))
		return
	}

	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}

// scriptFor resolves the control for req.Sign and its AppleScript.
func scriptFor(req Request) (action, script string, err error) {
	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return "", "", fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Signs without a mapping use their own name as the control
	action, ok := cfg.Actions[req.Sign]
	if !ok {
		action = req.Sign
	}

	script, ok = scripts[action]
	if !ok {
		return action, "", fmt.Errorf("no control for sign %q", req.Sign)
	}
	return action, script, nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// runAppleScript executes an AppleScript command and returns any error.
func runAppleScript(script string) error {
	output, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
