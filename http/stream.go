package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pitwall/predict"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	framePitStop = "pitstop"
	frameNextLap = "nextlap"
)

// streamRequest is one inbound frame. ID is echoed verbatim on the reply.
type streamRequest struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type streamReply struct {
	Type   string          `json:"type"`
	ID     json.RawMessage `json:"id,omitempty"`
	Result interface{}     `json:"result,omitempty"`
	Status int             `json:"status,omitempty"`
	Detail string          `json:"detail,omitempty"`
}

type streamHandler struct {
	svc      *predict.Service
	upgrader websocket.Upgrader
	maxFrame int64
	logger   *zap.Logger
}

func newStreamHandler(svc *predict.Service, config ServerConfig, logger *zap.Logger) *streamHandler {
	return &streamHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(config.AllowedOrigins, origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		maxFrame: config.MaxBodyBytes,
		logger:   logger,
	}
}

func (s *streamHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/predict", s.handleWebSocket)
}

// streamClient serves one connection. Only writePump writes to conn.
type streamClient struct {
	conn      *websocket.Conn
	send      chan streamReply
	requestID string
	handler   *streamHandler
}

func (s *streamHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &streamClient{
		conn:      conn,
		send:      make(chan streamReply, 16),
		requestID: GetRequestID(r.Context()),
		handler:   s,
	}
	s.logger.Info("stream client connected", zap.String("request_id", c.requestID))

	go c.writePump()
	c.readPump(r)
}

func (c *streamClient) readPump(r *http.Request) {
	defer close(c.send)

	c.conn.SetReadLimit(c.handler.maxFrame)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.logger.Warn("stream read failed", zap.String("request_id", c.requestID), zap.Error(err))
			}
			return
		}
		c.send <- c.handleFrame(r, data)
	}
}

func (c *streamClient) handleFrame(r *http.Request, data []byte) streamReply {
	var frame streamRequest
	if err := json.Unmarshal(data, &frame); err != nil {
		return streamReply{Status: http.StatusUnprocessableEntity, Detail: "invalid frame: " + err.Error()}
	}
	reply := streamReply{Type: frame.Type, ID: frame.ID}

	var (
		result interface{}
		err    error
	)
	switch frame.Type {
	case framePitStop:
		var req predict.PitStopRequest
		if req, err = decodePitStop(bytes.NewReader(frame.Payload)); err == nil {
			result, err = c.handler.svc.PredictPitStop(r.Context(), req)
		}
	case frameNextLap:
		var req predict.LapTimeRequest
		if req, err = decodeLapTime(bytes.NewReader(frame.Payload)); err == nil {
			result, err = c.handler.svc.PredictNextLap(r.Context(), req)
		}
	default:
		err = invalid("unknown frame type %q", frame.Type)
	}
	if err != nil {
		reply.Status, reply.Detail = errorStatus(err)
		logFailure(c.handler.logger, c.requestID, "/ws/predict#"+frame.Type, reply.Status, err)
		return reply
	}
	reply.Result = result
	return reply
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case reply, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(reply); err != nil {
				c.handler.logger.Warn("stream write failed", zap.String("request_id", c.requestID), zap.Error(err))
				c.drain()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.drain()
				return
			}
		}
	}
}

// drain keeps readPump from blocking on send after the writer gave up; the
// closed conn makes its next read fail.
func (c *streamClient) drain() {
	c.conn.Close()
	go func() {
		for range c.send {
		}
	}()
}
