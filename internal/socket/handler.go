// Package socket serves image assistant turns over a websocket.
package socket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
	"github.com/roschler/livepeer-image-helper-back-end/internal/volley"
)

// BadRequestPrefix starts the error text of rejected requests.
const BadRequestPrefix = "BAD REQUEST: "

// Processor runs one image assistant turn.
type Processor interface {
	Process(ctx context.Context, t volley.Turn, n volley.Notifier) (*volley.Outcome, error)
}

// Handler upgrades connections and runs the turns clients request.
type Handler struct {
	proc     Processor
	upgrader websocket.Upgrader
	markdown goldmark.Markdown
	locks    volley.UserLocks
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a websocket handler.
func NewHandler(proc Processor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		proc: proc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		markdown: goldmark.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws, logger: h.logger.With(zap.String("remote", r.RemoteAddr))}
	c.logger.Info("client connected")
	c.send(TypeState, StatePayload{})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			c.sendError(BadRequestPrefix + "message is not valid JSON")
			continue
		}

		switch {
		case in.Type == TypeRequestImageAssistant:
			h.handleImageAssistant(r.Context(), c, in.Payload)
		case unsupported[in.Type]:
			c.sendError(fmt.Sprintf("message type %q is not supported by this server", in.Type))
		default:
			c.sendError(fmt.Sprintf("%sunknown message type %q", BadRequestPrefix, in.Type))
		}
	}
}

func (h *Handler) handleImageAssistant(ctx context.Context, c *conn, raw json.RawMessage) {
	var req ImageAssistantRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError(BadRequestPrefix + "malformed image assistant payload")
		return
	}

	turn := volley.Turn{
		UserID:         req.UserID,
		Input:          req.Prompt,
		Mode:           params.Mode(req.ImageProcessingMode),
		ActiveImageURL: req.ActiveImageURL,
		RequestID:      volley.NewRequestID(h.now()),
	}
	if err := volley.Validate(turn); err != nil {
		c.sendError(BadRequestPrefix + err.Error())
		return
	}

	unlock := h.locks.Lock(req.UserID)
	defer unlock()

	notifier := volley.NotifierFunc(func(msg string) {
		c.send(TypeState, StatePayload{
			WaitingForImages:   msg == volley.MsgGeneratingImage,
			CurrentRequestID:   turn.RequestID,
			StateChangeMessage: msg,
		})
	})

	out, err := h.proc.Process(ctx, turn, notifier)
	if err != nil {
		h.logger.Warn("image assistant turn failed", zap.String("request_id", turn.RequestID), zap.Error(err))
		if errors.Is(err, volley.ErrInvalidInput) {
			c.sendError(BadRequestPrefix + err.Error())
		} else {
			c.sendError(err.Error())
		}
		c.send(TypeState, StatePayload{CurrentRequestID: turn.RequestID})
		return
	}

	c.send(TypeText, TextPayload{Delta: out.Volley.ResponseToUser, HTML: h.render(out.Volley.ResponseToUser)})
	c.send(TypeImage, ImagePayload{URLs: out.ImageURLs})
	c.send(TypeState, StatePayload{CurrentRequestID: turn.RequestID})
}

// render converts the response text to HTML. Rendering failures fall back
// to an empty string; the raw text is always sent.
func (h *Handler) render(text string) string {
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(text), &buf); err != nil {
		h.logger.Debug("rendering response markdown failed", zap.Error(err))
		return ""
	}
	return buf.String()
}

// conn serializes writes to one websocket.
type conn struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	logger *zap.Logger
}

func (c *conn) send(typ string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(Envelope{Type: typ, Payload: payload}); err != nil {
		c.logger.Warn("websocket write failed", zap.String("type", typ), zap.Error(err))
	}
}

func (c *conn) sendError(msg string) {
	c.send(TypeError, ErrorPayload{Error: msg})
}
