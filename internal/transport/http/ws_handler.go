package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vinrai007/neww-mesgar10/internal/config"
	"github.com/vinrai007/neww-mesgar10/internal/core"
	"github.com/vinrai007/neww-mesgar10/internal/proto"
	"github.com/vinrai007/neww-mesgar10/internal/utils"
)

const (
	defaultWriteTimeout = 10 * time.Second
	inboundQueue        = 16
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub          *core.Hub
	cookieName   string
	readLimit    int64
	writeTimeout time.Duration
	sendBuffer   int
	rateLimit    int
	log          *zerolog.Logger

	// sessions counts running handlers and their routing goroutines.
	sessions sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &WSHandler{
		hub:          hub,
		cookieName:   cfg.AuthCookie,
		readLimit:    cfg.MaxMessageBytes,
		writeTimeout: writeTimeout,
		sendBuffer:   cfg.SendBuffer,
		rateLimit:    cfg.RateLimit,
		log:          logger,
	}
}

// wsTransport lets the hub ping and drop a connection.
type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) Ping(ctx context.Context) error { return t.conn.Ping(ctx) }
func (t wsTransport) Close() error                   { return t.conn.CloseNow() }

// Wait blocks until every session has ended and its routed frames are handled,
// or until ctx is done.
func (h *WSHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	h.sessions.Add(1)
	defer h.sessions.Done()

	credential := credentialFromRequest(r, h.cookieName)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := core.NewClient(utils.NewID(), r.RemoteAddr, wsTransport{conn: conn}, h.sendBuffer)
	if err := h.hub.Register(client); err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.Unregister(client)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()
	go h.hub.Watch(ctx, client)

	// Bind before reading so the first frame already has a sender.
	if id, err := h.hub.Authenticate(ctx, client, credential); err == nil {
		h.log.Debug().Str("client_id", client.ID).Int64("user_id", id.UserID).Msg("ws client authenticated")
	}

	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop reads frames and hands them to a per-connection router goroutine,
// so reading (and with it pong handling) never waits on persistence.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	frames := make(chan proto.Frame, inboundQueue)
	defer close(frames)
	h.sessions.Add(1)
	go h.route(ctx, client, frames)

	limiter := newRateLimiter(h.rateLimit)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			h.hub.Report(client, core.NewError(core.ErrCodeBadRequest, "binary frames are not supported"))
			continue
		}
		if !limiter.allow() {
			h.hub.Report(client, core.NewError(core.ErrCodeRateLimited, "too many messages"))
			continue
		}

		var frame proto.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("malformed ws frame")
			h.hub.Report(client, core.NewError(core.ErrCodeBadRequest, "invalid JSON"))
			continue
		}

		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// route handles frames in arrival order. Persistence outlives the connection:
// a frame read before disconnect is still stored.
func (h *WSHandler) route(ctx context.Context, client *core.Client, frames <-chan proto.Frame) {
	defer h.sessions.Done()
	persistCtx := context.WithoutCancel(ctx)
	for frame := range frames {
		_, _ = h.hub.HandleInbound(persistCtx, client, frame)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			data, err := event.Encode()
			if err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Str("kind", event.Kind.String()).Msg("encode ws event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
