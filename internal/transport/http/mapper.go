package http

import (
	"encoding/json"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/proto"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	cmd := &core.Command{RequestID: inbound.ID}

	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var data proto.ConversationData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, err
		}
		if data.ConversationID == "" {
			return nil, protoError(core.ErrCodeValidation, "conversationId is required")
		}
		cmd.Kind = core.CommandJoinConversation
		if inbound.Type == proto.InboundTypeLeave {
			cmd.Kind = core.CommandLeaveConversation
		}
		cmd.ConversationID = data.ConversationID
	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, err
		}
		cmd.Kind = core.CommandTyping
		cmd.ConversationID = data.ConversationID
		cmd.IsTyping = data.IsTyping
	case proto.InboundTypeSend:
		var data proto.SendData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, err
		}
		cmd.Kind = core.CommandSendMessage
		cmd.ConversationID = data.ConversationID
		cmd.Content = data.Content
		cmd.ContentType = store.ContentType(data.ContentType)
		cmd.AttachmentURL = data.AttachmentURL
	case proto.InboundTypeEdit:
		var data proto.EditData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, err
		}
		cmd.Kind = core.CommandEditMessage
		cmd.MessageID = data.MessageID
		cmd.Content = data.Content
	case proto.InboundTypeDelete:
		var data proto.DeleteData
		if err := decodeData(inbound.Data, &data); err != nil {
			return nil, err
		}
		cmd.Kind = core.CommandDeleteMessage
		cmd.MessageID = data.MessageID
	default:
		return nil, protoError(core.ErrCodeBadRequest, "unknown message type")
	}

	return cmd, nil
}

func decodeData(raw json.RawMessage, v any) *proto.Error {
	if len(raw) == 0 {
		return protoError(core.ErrCodeBadRequest, "data is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protoError(core.ErrCodeBadRequest, "malformed data")
	}
	return nil
}

func protoError(code, msg string) *proto.Error {
	return &proto.Error{Code: code, Message: msg}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data:  proto.NewMessage(event.Message),
		}
	case core.EventMessageEdited:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageEdited,
			Data: proto.MessageEdited{
				MessageID:      event.MessageID,
				ConversationID: event.ConversationID,
				Content:        event.Content,
				Edited:         true,
			},
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageDeleted,
			Data: proto.MessageDeleted{
				MessageID:      event.MessageID,
				ConversationID: event.ConversationID,
			},
		}
	case core.EventTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventTyping,
			Data: proto.Typing{
				ConversationID: event.ConversationID,
				UserID:         event.UserID,
				IsTyping:       event.IsTyping,
			},
		}
	case core.EventUserStatus:
		status := proto.StatusOffline
		if event.Online {
			status = proto.StatusOnline
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserStatus,
			Data:  proto.UserStatus{UserID: event.UserID, Status: status},
		}
	case core.EventAck:
		out := proto.Outbound{Type: proto.OutboundTypeAck, ID: event.RequestID}
		switch {
		case event.Error != nil:
			out.Error = protoError(event.Error.Code, event.Error.Message)
		case event.Message != nil:
			out.Data = proto.NewMessage(event.Message)
		default:
			out.Data = proto.ConversationData{ConversationID: event.ConversationID}
		}
		return out
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, ID: event.RequestID, Error: protoError("unknown", "unknown error")}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			ID:    event.RequestID,
			Error: protoError(event.Error.Code, event.Error.Message),
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
