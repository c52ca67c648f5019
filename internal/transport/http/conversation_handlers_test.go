package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/config"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/proto"
)

func TestAPIRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t, "x")

	if code := srv.do(t, http.MethodGet, "/api/conversations", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := srv.do(t, http.MethodGet, "/api/conversations", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", code)
	}
	if code := srv.do(t, http.MethodGet, "/api/conversations", srv.token(t, "ghost"), nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", code)
	}

	var me proto.User
	if code := srv.do(t, http.MethodGet, "/api/me", srv.token(t, "x"), nil, &me); code != http.StatusOK || me.ID != "x" {
		t.Fatalf("unexpected /api/me: %d %+v", code, me)
	}
}

func TestConversationLifecycle(t *testing.T) {
	srv := newTestServer(t, "x", "y", "z")
	tokenX, tokenY, tokenZ := srv.token(t, "x"), srv.token(t, "y"), srv.token(t, "z")

	var conv proto.Conversation
	code := srv.do(t, http.MethodPost, "/api/conversations", tokenX, map[string]any{
		"title":          "Flat 4B viewing",
		"propertyId":     "prop-42",
		"participantIds": []string{"y"},
	}, &conv)
	if code != http.StatusCreated {
		t.Fatalf("create conversation: %d", code)
	}
	if conv.Type != "property" || len(conv.Participants) != 2 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	if code := srv.do(t, http.MethodPost, "/api/conversations", tokenX, map[string]any{"participantIds": []string{}}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty participants, got %d", code)
	}

	for i := range 5 {
		var msg proto.Message
		code := srv.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", tokenX, map[string]any{"content": fmt.Sprintf("m%d", i)}, &msg)
		if code != http.StatusCreated {
			t.Fatalf("send %d: %d", i, code)
		}
	}

	var list ConversationListResponse
	srv.do(t, http.MethodGet, "/api/conversations", tokenY, nil, &list)
	if len(list.Conversations) != 1 || list.Conversations[0].UnreadCount != 5 || list.Conversations[0].LastMessageAt == nil {
		t.Fatalf("unexpected list for y: %+v", list)
	}

	if code := srv.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/read", tokenY, nil, nil); code != http.StatusNoContent {
		t.Fatalf("mark read: %d", code)
	}
	srv.do(t, http.MethodGet, "/api/conversations", tokenY, nil, &list)
	if list.Conversations[0].UnreadCount != 0 {
		t.Fatalf("unread not reset: %d", list.Conversations[0].UnreadCount)
	}

	// Participant gate on every read and write path.
	if code := srv.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", tokenZ, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider history, got %d", code)
	}
	if code := srv.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", tokenZ, map[string]any{"content": "let me in"}, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider send, got %d", code)
	}
	if code := srv.do(t, http.MethodGet, "/api/conversations/unknown/messages", tokenX, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown conversation, got %d", code)
	}

	if code := srv.do(t, http.MethodDelete, "/api/conversations/"+conv.ID+"/participants/me", tokenY, nil, nil); code != http.StatusNoContent {
		t.Fatalf("leave: %d", code)
	}
	if code := srv.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", tokenY, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 after leaving, got %d", code)
	}
}

func TestHistoryPaging(t *testing.T) {
	srv := newTestServer(t, "x", "y")
	tokenX := srv.token(t, "x")

	var conv proto.Conversation
	srv.do(t, http.MethodPost, "/api/conversations", tokenX, map[string]any{"participantIds": []string{"y"}}, &conv)

	var sent []proto.Message
	for i := range 5 {
		var msg proto.Message
		srv.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", tokenX, map[string]any{"content": fmt.Sprintf("m%d", i)}, &msg)
		sent = append(sent, msg)
	}

	var page HistoryResponse
	srv.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=2", tokenX, nil, &page)
	if len(page.Messages) != 2 || page.Messages[0].ID != sent[3].ID || page.Messages[1].ID != sent[4].ID || !page.HasMore {
		t.Fatalf("unexpected newest page: %+v", page)
	}

	cursor := url.QueryEscape(page.Messages[0].CreatedAt.Format(time.RFC3339Nano))
	srv.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=10&before="+cursor, tokenX, nil, &page)
	if len(page.Messages) != 3 || page.Messages[0].ID != sent[0].ID || page.Messages[2].ID != sent[2].ID || page.HasMore {
		t.Fatalf("unexpected older page: %+v", page)
	}

	if code := srv.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages?before=yesterday", tokenX, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", code)
	}
}

func TestHistoryDefaultPageReportsMore(t *testing.T) {
	srv := newTestServer(t, "x", "y")
	tokenX := srv.token(t, "x")
	ctx := context.Background()

	var conv proto.Conversation
	srv.do(t, http.MethodPost, "/api/conversations", tokenX, map[string]any{"participantIds": []string{"y"}}, &conv)

	pageSize := config.Default().HistoryPageSize
	for i := range pageSize + 1 {
		if _, err := srv.svc.SendMessage(ctx, "x", core.SendMessageInput{ConversationID: conv.ID, Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	var page HistoryResponse
	srv.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", tokenX, nil, &page)
	if len(page.Messages) != pageSize || !page.HasMore {
		t.Fatalf("expected %d messages with more available, got %d hasMore=%v", pageSize, len(page.Messages), page.HasMore)
	}

	srv.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=1000", tokenX, nil, &page)
	if len(page.Messages) != pageSize+1 || page.HasMore {
		t.Fatalf("expected the whole history, got %d hasMore=%v", len(page.Messages), page.HasMore)
	}
}

func TestMessageEditDeleteAuthorization(t *testing.T) {
	srv := newTestServer(t, "x", "y")
	tokenX, tokenY := srv.token(t, "x"), srv.token(t, "y")

	var conv proto.Conversation
	srv.do(t, http.MethodPost, "/api/conversations", tokenX, map[string]any{"participantIds": []string{"y"}}, &conv)

	var msg proto.Message
	srv.do(t, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", tokenX, map[string]any{"content": "hi"}, &msg)

	if code := srv.do(t, http.MethodPatch, "/api/messages/"+msg.ID, tokenY, map[string]any{"content": "hijack"}, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-sender edit, got %d", code)
	}
	if code := srv.do(t, http.MethodDelete, "/api/messages/"+msg.ID, tokenY, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-sender delete, got %d", code)
	}
	if code := srv.do(t, http.MethodPatch, "/api/messages/"+msg.ID, tokenX, map[string]any{"content": ""}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty edit, got %d", code)
	}

	var edited proto.Message
	if code := srv.do(t, http.MethodPatch, "/api/messages/"+msg.ID, tokenX, map[string]any{"content": "hi there"}, &edited); code != http.StatusOK {
		t.Fatalf("edit: %d", code)
	}
	if !edited.Edited || edited.Content != "hi there" {
		t.Fatalf("unexpected edited message: %+v", edited)
	}

	if code := srv.do(t, http.MethodDelete, "/api/messages/"+msg.ID, tokenX, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	if code := srv.do(t, http.MethodDelete, "/api/messages/"+msg.ID, tokenX, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted message, got %d", code)
	}
}

func TestPresenceEndpoints(t *testing.T) {
	srv := newTestServer(t, "x", "y")
	tokenX := srv.token(t, "x")

	var user proto.User
	if code := srv.do(t, http.MethodGet, "/api/users/y", tokenX, nil, &user); code != http.StatusOK {
		t.Fatalf("get user: %d", code)
	}
	if user.Name != "name-y" || user.Online == nil || *user.Online {
		t.Fatalf("unexpected user view: %+v", user)
	}
	if user.Email != "" {
		t.Fatalf("email must stay hidden from users without a shared conversation: %+v", user)
	}

	srv.do(t, http.MethodPost, "/api/conversations", tokenX, map[string]any{"participantIds": []string{"y"}}, nil)
	user = proto.User{}
	srv.do(t, http.MethodGet, "/api/users/y", tokenX, nil, &user)
	if user.Email != "y@example.com" {
		t.Fatalf("conversation partners see the email, got %+v", user)
	}
	user = proto.User{}
	srv.do(t, http.MethodGet, "/api/users/x", tokenX, nil, &user)
	if user.Email != "x@example.com" {
		t.Fatalf("own profile must include the email, got %+v", user)
	}
	if code := srv.do(t, http.MethodGet, "/api/users/ghost", tokenX, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}

	var presence PresenceResponse
	srv.do(t, http.MethodGet, "/api/presence?userId=x&userId=y", tokenX, nil, &presence)
	if presence.Online["x"] || presence.Online["y"] {
		t.Fatalf("nobody is connected: %+v", presence)
	}
	if code := srv.do(t, http.MethodGet, "/api/presence", tokenX, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", code)
	}
}
