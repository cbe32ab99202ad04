// Package plugin runs external executables when a sign is recognized.
package plugin

import (
	"encoding/json"
	"slices"
)

// Manifest describes a plugin and the signs it reacts to.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Signs       []string        `json:"signs,omitempty"` // empty means every sign
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is written as JSON to the plugin's stdin.
type Request struct {
	Sign       string          `json:"sign"`
	Text       string          `json:"text"`
	Score      float64         `json:"score"`
	Handedness string          `json:"handedness,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// Response is read as JSON from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the plugin wants to hear about sign.
func (p *Plugin) Handles(sign string) bool {
	return len(p.Manifest.Signs) == 0 || slices.Contains(p.Manifest.Signs, sign)
}
