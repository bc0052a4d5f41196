package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"whispr-service/internal/dispatch"
	"whispr-service/internal/model"
	"whispr-service/internal/transport"
	"whispr-service/internal/util"
)

const (
	maxMessageBytes = 1 << 20
	SignatureHeader = "X-Whispr-Signature"
)

var (
	ErrWebhookDisabled = errors.New("message webhook is disabled")
	ErrBadSignature    = errors.New("missing or invalid message signature")
)

// MessageSink accepts inbound messages for processing.
type MessageSink interface {
	Dispatch(msg *model.Message) error
}

// MessageHandler lets gateways push inbound messages over HTTP.
// Requests must carry SignatureHeader set to the hex HMAC-SHA256 of the body
// under the shared secret. An empty secret rejects every request.
type MessageHandler struct {
	sink   MessageSink
	secret []byte
	logger *zap.Logger
}

func NewMessageHandler(sink MessageSink, secret string, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{sink: sink, secret: []byte(secret), logger: logger}
}

// SignBody returns the signature header value for body.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (h *MessageHandler) verify(r *http.Request, body []byte) error {
	if len(h.secret) == 0 {
		return ErrWebhookDisabled
	}
	got, err := hex.DecodeString(strings.TrimPrefix(r.Header.Get(SignatureHeader), "sha256="))
	if err != nil || len(got) == 0 {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

func (h *MessageHandler) RegisterRoutes(router chi.Router) {
	router.Post("/messages", h.PostMessage)
}

// PostMessage queues an inbound message. The reply goes out over the
// messaging transport, not in the HTTP response.
// @Router /messages [post]
func (h *MessageHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Failed to read request body")
		return
	}
	if err := h.verify(r, body); err != nil {
		h.respondWithError(w, http.StatusUnauthorized, err, "Unauthorized")
		return
	}
	msg, err := transport.DecodeInbound(body)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid message")
		return
	}
	// payments are credited only from the gateway topic
	msg.PaymentPmob = 0

	if err := h.sink.Dispatch(msg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		h.respondWithError(w, status, err, "Failed to accept message")
		return
	}

	respondWithJSON(w, h.logger, http.StatusAccepted, successResponse(map[string]string{"id": msg.ID}, "Message accepted"))
	h.logger.Debug("Inbound message accepted via HTTP",
		util.String("id", msg.ID),
		util.String("source", msg.Source),
	)
}

func (h *MessageHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(w, h.logger, statusCode, errorResponse(err, message))
}
