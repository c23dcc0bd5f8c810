package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
)

// handleMessage always answers 200. A body that cannot be decoded is treated as an
// empty message, which yields the preset menu.
func (s *Server) handleMessage(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		s.logger.Debug("Malformed chat request", zap.Error(err))
		req = domain.ChatRequest{}
	}
	c.JSON(http.StatusOK, s.deps.Chat.Handle(c.Request.Context(), req))
}

// handleWebSocket serves one JSON request and one JSON response per text frame.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.deps.Metrics.WebSocketOpened()
	defer s.deps.Metrics.WebSocketClosed()

	cfg := constants.WebSocketConfig
	conn.SetReadLimit(cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	write := func(messageType int, payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
		return conn.WriteMessage(messageType, payload)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req domain.ChatRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			req = domain.ChatRequest{}
		}
		resp := s.deps.Chat.Handle(ctx, req)

		out, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("Failed to encode chat response", zap.Error(err))
			return
		}
		if err := write(websocket.TextMessage, out); err != nil {
			s.logger.Debug("WebSocket write failed", zap.Error(err))
			return
		}
	}
}
