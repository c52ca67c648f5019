package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/auth"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/config"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/proto"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/utils"
)

var errSlowConsumer = errors.New("slow consumer")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	svc  *core.Service
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(svc *core.Service, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{svc: svc, auth: authService, cfg: cfg, log: logger}
}

// handshakeToken reads the credential from the Authorization header, falling back
// to the token query parameter for browsers that cannot set headers on upgrade.
func handshakeToken(r *stdhttp.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// Authenticate before the upgrade so a rejected handshake leaves nothing behind.
	user, err := h.auth.Authenticate(ctx, handshakeToken(r))
	if err != nil {
		if isAuthFailure(err) {
			h.log.Debug().Err(err).Msg("ws handshake rejected")
			stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
			return
		}
		h.log.Error().Err(err).Msg("ws handshake auth error")
		stdhttp.Error(w, "internal server error", stdhttp.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), user.ID, user.Name, h.cfg.SessionBuffer)
	if err := h.svc.Connect(ctx, client); err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("register session")
		conn.Close(websocket.StatusTryAgainLater, "presence unavailable")
		return
	}
	defer h.svc.Disconnect(ctx, client)

	h.log.Info().Str("client_id", client.ID).Str("user_id", user.ID).Msg("ws session opened")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutines
	<-errCh
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errSlowConsumer) {
		status = websocket.StatusPolicyViolation
		reason = err.Error()
		err = nil
	}
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

	h.log.Info().Str("client_id", client.ID).Str("user_id", user.ID).Msg("ws session closed")
	conn.Close(status, reason)
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	if len(h.cfg.CORSOrigins) == 0 || slices.Contains(h.cfg.CORSOrigins, "*") {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.cfg.CORSOrigins
	}
	return opts
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			if err := h.writeError(ctx, conn, inbound.ID, protoError("rate_limited", "too many messages")); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := h.writeError(ctx, conn, inbound.ID, protoErr); err != nil {
				return err
			}
			continue
		}

		h.svc.Handle(ctx, client, cmd)
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, id string, protoErr *proto.Error) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout())
	defer cancel()
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, ID: id, Error: protoErr})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout())
			err := wsjson.Write(wctx, conn, outboundFromEvent(event))
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errSlowConsumer
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop detects dead peers so a dropped network is handled like a close.
func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	if h.cfg.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, h.writeTimeout())
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeTimeout() time.Duration {
	if h.cfg.PingTimeout > 0 {
		return h.cfg.PingTimeout
	}
	return 10 * time.Second
}
