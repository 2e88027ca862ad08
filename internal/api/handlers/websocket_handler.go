package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

// ReviewProcessor answers a single review.
type ReviewProcessor interface {
	Process(ctx context.Context, review models.Review) (models.ReviewResponse, error)
}

type jsonConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
}

type WebSocketHandler struct {
	reviews ReviewProcessor
}

func NewWebSocketHandler(reviews ReviewProcessor) *WebSocketHandler {
	return &WebSocketHandler{
		reviews: reviews,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	h.serve(context.Background(), c)
}

func (h *WebSocketHandler) serve(ctx context.Context, c jsonConn) {
	for {
		var msg struct {
			Type   string          `json:"type"`
			Review json.RawMessage `json:"review"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		if msg.Type != "review" {
			continue
		}

		var req reviewRequest
		if err := json.Unmarshal(msg.Review, &req); err != nil {
			h.sendError(c, "Invalid review payload")
			continue
		}
		review, err := req.toReview()
		if err != nil {
			h.sendError(c, err.Error())
			continue
		}

		logger.Info("Processing WebSocket review", zap.String("review_id", review.ID))

		if err := h.streamResponse(ctx, c, review); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process review")
		}
	}
}

func (h *WebSocketHandler) streamResponse(ctx context.Context, c jsonConn, review models.Review) error {
	if err := h.sendChunk(c, "status", "Processing review..."); err != nil {
		return err
	}

	response, err := h.reviews.Process(ctx, review)
	if err != nil {
		return err
	}

	words := splitIntoWords(response.ResponseText)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" && words[i+1] != "\n" {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":     "complete",
		"response": response,
	})
}

func (h *WebSocketHandler) sendChunk(c jsonConn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c jsonConn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}

func splitIntoWords(text string) []string {
	words := []string{}
	current := []rune{}

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if len(current) > 0 {
				words = append(words, string(current))
				current = current[:0]
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			current = append(current, char)
		}
	}

	if len(current) > 0 {
		words = append(words, string(current))
	}

	return words
}
