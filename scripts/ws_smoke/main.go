package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/log"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/proto"
)

// ws_smoke joins a conversation, sends one message and waits for its ack and broadcast.
func main() {
	logger := log.New("info", "console")
	if err := run(); err != nil {
		logger.Error().Err(err).Msg("ws_smoke failed")
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("KASICHAT_TOKEN"), "JWT issued by the server token command")
	conversation := flag.String("conversation", "", "conversation id to join")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *conversation == "" {
		return errors.New("-token and -conversation are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ, id string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeJoin, "join-1", proto.ConversationData{ConversationID: *conversation}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeSend, "send-1", proto.SendData{ConversationID: *conversation, Content: *text}); err != nil {
		return err
	}

	acked, broadcast := false, false
	for !acked || !broadcast {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			ID    string          `json:"id"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("received type=%s event=%s id=%s\n", outbound.Type, outbound.Event, outbound.ID)
		if outbound.Error != nil {
			return fmt.Errorf("%s failed: %s: %s", outbound.ID, outbound.Error.Code, outbound.Error.Message)
		}

		switch {
		case outbound.Type == proto.OutboundTypeAck && outbound.ID == "send-1":
			acked = true
		case outbound.Type == proto.OutboundTypeEvent && outbound.Event == proto.EventMessage:
			var msg proto.Message
			if err := json.Unmarshal(outbound.Data, &msg); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("message seq=%d sender=%s content=%q\n", msg.Seq, msg.Sender.Name, msg.Content)
			broadcast = true
		}
	}
	return nil
}
