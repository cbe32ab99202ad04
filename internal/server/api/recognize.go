package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/logger"
	"github.com/ayusman/handsign/internal/metrics"
	"github.com/ayusman/handsign/internal/recognize"
	"github.com/ayusman/handsign/internal/store"
)

// Messages returned in place of a label.
const (
	MessageNoHand   = "No hand detected"
	MessageNoMatch  = "No sign recognized"
	MessageInvalid  = "Invalid Image"
	MessagePaused   = "Recognition paused"
	MessageBadBody  = "Invalid JSON"
	MessageNoImage  = "Image is required"
	MessageInternal = "Recognition failed"
)

// maxBodyBytes bounds a recognize request; base64 inflates the image by a third.
const maxBodyBytes = capture.MaxImageBytes*4/3 + 1024

type recognizeRequest struct {
	Image string `json:"image"`
}

// RecognizeHandler answers POST /api/recognize.
type RecognizeHandler struct {
	recognizer recognize.Recognizer
	store      *store.Store
	log        *zap.Logger

	// Enabled reports whether recognition is switched on. Nil means always.
	Enabled func() bool
	// OnResult is called with every answered recognition.
	OnResult func(rec store.Recognition)
}

// NewRecognizeHandler creates a RecognizeHandler. s may be nil.
func NewRecognizeHandler(r recognize.Recognizer, s *store.Store, log *zap.Logger) *RecognizeHandler {
	return &RecognizeHandler{
		recognizer: r,
		store:      s,
		log:        logger.OrNop(log),
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *RecognizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.Enabled != nil && !h.Enabled() {
		writeMessage(w, http.StatusServiceUnavailable, messageResponse{Status: StatusError, Message: MessagePaused})
		return
	}

	var req recognizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		writeMessage(w, http.StatusBadRequest, messageResponse{Status: StatusError, Message: MessageBadBody})
		return
	}
	if req.Image == "" {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		writeMessage(w, http.StatusBadRequest, messageResponse{Status: StatusError, Message: MessageNoImage})
		return
	}

	img, err := capture.DecodeDataURL(req.Image)
	if err != nil {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		h.log.Debug("rejecting image", zap.Error(err))
		writeMessage(w, http.StatusBadRequest, messageResponse{Status: StatusError, Message: MessageInvalid})
		return
	}
	defer img.Close()

	res, err := h.recognizer.Recognize(r.Context(), img)

	rec := store.Recognition{
		Label:      res.Label,
		Message:    res.Text,
		Score:      res.Score,
		Handedness: res.Handedness,
		CreatedAt:  time.Now(),
	}
	switch {
	case err == nil:
		rec.Outcome = metrics.OutcomeRecognized
	case errors.Is(err, recognize.ErrNoHand):
		rec.Outcome, rec.Message = metrics.OutcomeNoHand, MessageNoHand
	case errors.Is(err, recognize.ErrNoMatch):
		rec.Outcome, rec.Label, rec.Message = metrics.OutcomeNoMatch, "", MessageNoMatch
	default:
		h.log.Error("recognition failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, messageResponse{Status: StatusError, Message: MessageInternal})
		return
	}

	h.record(&rec)
	writeMessage(w, http.StatusOK, messageResponse{
		Status:  StatusSuccess,
		Message: rec.Message,
		Label:   rec.Label,
		Score:   rec.Score,
	})
}

func (h *RecognizeHandler) record(rec *store.Recognition) {
	if h.store != nil {
		if err := h.store.Recognitions().Create(rec); err != nil {
			h.log.Warn("failed to record recognition", zap.Error(err))
		}
	}
	if h.OnResult != nil {
		h.OnResult(*rec)
	}
}
