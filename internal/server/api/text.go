package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/logger"
)

type textRequest struct {
	ExtractedText *string `json:"extracted_text"`
}

// TextHandler acknowledges text assembled by the browser client
// (POST /get_text).
type TextHandler struct {
	log *zap.Logger
	// OnText is called with every received text.
	OnText func(text string)
}

// NewTextHandler creates a TextHandler.
func NewTextHandler(log *zap.Logger) *TextHandler {
	return &TextHandler{log: logger.OrNop(log)}
}

// ServeHTTP implements the http.Handler interface.
func (h *TextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req textRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, messageResponse{Status: StatusError, Message: MessageBadBody})
		return
	}

	text := ""
	if req.ExtractedText != nil {
		text = *req.ExtractedText
	}
	h.log.Info("text received", zap.String("text", text))
	if h.OnText != nil {
		h.OnText(text)
	}

	writeMessage(w, http.StatusOK, messageResponse{Status: StatusSuccess, Message: "DONE"})
}
