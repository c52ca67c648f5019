package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
)

func newTestStore(t *testing.T, userIDs ...string) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	for _, id := range userIDs {
		if err := s.UpsertUser(ctx, &store.User{ID: id, Name: id + "-name", Email: id + "@example.com"}); err != nil {
			t.Fatalf("failed to create user %s: %v", id, err)
		}
	}
	return s
}

func createConversation(t *testing.T, s *SQLiteStore, id, owner string, others ...string) *store.Conversation {
	t.Helper()

	conv, err := s.CreateConversation(context.Background(), &store.Conversation{
		ID:        id,
		Type:      store.ConversationTypeGroup,
		CreatedBy: owner,
	}, others)
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	return conv
}

func sendText(t *testing.T, s *SQLiteStore, id, convID, sender, text string, at time.Time) *store.Message {
	t.Helper()

	msg := &store.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       sender,
		Content:        text,
		ContentType:    store.ContentTypeText,
		CreatedAt:      at,
	}
	if err := s.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("failed to create message %s: %v", id, err)
	}
	return msg
}

func TestCreateConversationAssignsRoles(t *testing.T) {
	s := newTestStore(t, "x", "y", "z")

	conv := createConversation(t, s, "c1", "x", "y", "z", "y")

	if len(conv.Participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(conv.Participants))
	}
	if p := conv.Participant("x"); p == nil || p.Role != store.RoleOwner {
		t.Fatalf("expected x to be owner, got %+v", p)
	}
	if p := conv.Participant("y"); p == nil || p.Role != store.RoleParticipant || p.User.Email != "y@example.com" {
		t.Fatalf("unexpected participant y: %+v", p)
	}
}

func TestCreateConversationUnknownParticipant(t *testing.T) {
	s := newTestStore(t, "x")

	_, err := s.CreateConversation(context.Background(), &store.Conversation{
		ID:        "c1",
		Type:      store.ConversationTypePrivate,
		CreatedBy: "x",
	}, []string{"ghost"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.GetConversation(context.Background(), "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("conversation should not exist after rollback, got %v", err)
	}
}

func TestCreateConversationDeduplicatesDirectKey(t *testing.T) {
	s := newTestStore(t, "x", "y")
	ctx := context.Background()
	key := "dm:x:y"

	first, err := s.CreateConversation(ctx, &store.Conversation{
		ID: "c1", Type: store.ConversationTypePrivate, CreatedBy: "x", DirectKey: &key,
	}, []string{"y"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}

	second, err := s.CreateConversation(ctx, &store.Conversation{
		ID: "c2", Type: store.ConversationTypePrivate, CreatedBy: "y", DirectKey: &key,
	}, []string{"x"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same conversation, got %s and %s", first.ID, second.ID)
	}
}

func TestCreateDirectConversationRestoresLeftParticipant(t *testing.T) {
	s := newTestStore(t, "x", "y")
	ctx := context.Background()
	key := "dm:x:y"

	first, err := s.CreateConversation(ctx, &store.Conversation{
		ID: "c1", Type: store.ConversationTypePrivate, CreatedBy: "x", DirectKey: &key,
	}, []string{"y"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := s.RemoveParticipant(ctx, first.ID, "x"); err != nil {
		t.Fatalf("remove participant: %v", err)
	}

	again, err := s.CreateConversation(ctx, &store.Conversation{
		ID: "c2", Type: store.ConversationTypePrivate, CreatedBy: "x", DirectKey: &key,
	}, []string{"y"})
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if again.ID != "c1" || len(again.Participants) != 2 {
		t.Fatalf("unexpected conversation after re-create: %+v", again)
	}
	if p := again.Participant("x"); p == nil || p.Role != store.RoleOwner {
		t.Fatalf("creator must be restored as owner, got %+v", p)
	}
	if _, err := s.GetParticipant(ctx, "c1", "x"); err != nil {
		t.Fatalf("participant row missing: %v", err)
	}
}

func TestSharesConversation(t *testing.T) {
	s := newTestStore(t, "x", "y", "z")
	ctx := context.Background()
	createConversation(t, s, "c1", "x", "y")

	if shared, err := s.SharesConversation(ctx, "x", "y"); err != nil || !shared {
		t.Fatalf("x and y share c1: shared=%v err=%v", shared, err)
	}
	if shared, _ := s.SharesConversation(ctx, "x", "z"); shared {
		t.Fatalf("x and z share nothing")
	}

	if err := s.RemoveParticipant(ctx, "c1", "y"); err != nil {
		t.Fatalf("remove participant: %v", err)
	}
	if shared, _ := s.SharesConversation(ctx, "x", "y"); shared {
		t.Fatalf("leaving ends the shared conversation")
	}
}

func TestCreateMessageUpdatesUnreadAndLastMessage(t *testing.T) {
	s := newTestStore(t, "x", "y", "z")
	ctx := context.Background()
	createConversation(t, s, "c1", "x", "y", "z")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sendText(t, s, "m1", "c1", "x", "hi", at)
	sendText(t, s, "m2", "c1", "x", "again", at.Add(time.Second))

	for id, want := range map[string]int{"x": 0, "y": 2, "z": 2} {
		p, err := s.GetParticipant(ctx, "c1", id)
		if err != nil {
			t.Fatalf("get participant %s: %v", id, err)
		}
		if p.UnreadCount != want {
			t.Errorf("participant %s: expected unread %d, got %d", id, want, p.UnreadCount)
		}
	}

	conv, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.LastMessageAt == nil || !conv.LastMessageAt.Equal(at.Add(time.Second)) {
		t.Fatalf("unexpected last_message_at: %v", conv.LastMessageAt)
	}

	if err := s.MarkRead(ctx, "c1", "y", at.Add(time.Minute)); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	p, _ := s.GetParticipant(ctx, "c1", "y")
	if p.UnreadCount != 0 || p.LastReadAt == nil {
		t.Fatalf("expected reset read state, got %+v", p)
	}
	p, _ = s.GetParticipant(ctx, "c1", "z")
	if p.UnreadCount != 2 {
		t.Fatalf("mark read must only touch the caller, z has %d", p.UnreadCount)
	}
}

func TestCreateMessageKeepsCreatedAtStrictlyIncreasing(t *testing.T) {
	s := newTestStore(t, "x", "y")
	createConversation(t, s, "c1", "x", "y")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := sendText(t, s, "m1", "c1", "x", "one", at)
	second := sendText(t, s, "m2", "c1", "y", "two", at)
	third := sendText(t, s, "m3", "c1", "x", "three", at.Add(-time.Hour))

	if !first.CreatedAt.Before(second.CreatedAt) || !second.CreatedAt.Before(third.CreatedAt) {
		t.Fatalf("created_at not increasing: %v %v %v", first.CreatedAt, second.CreatedAt, third.CreatedAt)
	}
	if first.Seq != 1 || second.Seq != 2 || third.Seq != 3 {
		t.Fatalf("unexpected seq: %d %d %d", first.Seq, second.Seq, third.Seq)
	}
}

func TestListMessagesPagesChronologically(t *testing.T) {
	s := newTestStore(t, "x", "y")
	ctx := context.Background()
	createConversation(t, s, "c1", "x", "y")

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ids := []string{"m1", "m2", "m3", "m4", "m5"}
	for i, id := range ids {
		sendText(t, s, id, "c1", "x", id, base.Add(time.Duration(i)*time.Second))
	}

	page, err := s.ListMessages(ctx, "c1", nil, 2)
	if err != nil {
		t.Fatalf("list newest: %v", err)
	}
	if len(page) != 2 || page[0].ID != "m4" || page[1].ID != "m5" {
		t.Fatalf("unexpected newest page: %v", messageIDs(page))
	}
	if page[0].Sender == nil || page[0].Sender.Name != "x-name" {
		t.Fatalf("sender not resolved: %+v", page[0].Sender)
	}

	cursor := page[0].CreatedAt
	older, err := s.ListMessages(ctx, "c1", &cursor, 10)
	if err != nil {
		t.Fatalf("list older: %v", err)
	}
	if got := messageIDs(older); len(got) != 3 || got[0] != "m1" || got[2] != "m3" {
		t.Fatalf("unexpected older page: %v", got)
	}
}

func TestUpdateAndDeleteRequireSender(t *testing.T) {
	s := newTestStore(t, "x", "y")
	ctx := context.Background()
	createConversation(t, s, "c1", "x", "y")
	sendText(t, s, "m1", "c1", "x", "hi", time.Now())

	if err := s.UpdateMessageContent(ctx, "m1", "y", "hijacked", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign edit, got %v", err)
	}
	if err := s.UpdateMessageContent(ctx, "m1", "x", "hi there", time.Now()); err != nil {
		t.Fatalf("edit: %v", err)
	}

	msg, err := s.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg.Content != "hi there" || !msg.Edited || msg.UpdatedAt == nil {
		t.Fatalf("unexpected edited message: %+v", msg)
	}

	if err := s.DeleteMessage(ctx, "m1", "y"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := s.DeleteMessage(ctx, "m1", "x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetMessage(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted message to be gone, got %v", err)
	}
}

func TestListConversationsOrdersByActivity(t *testing.T) {
	s := newTestStore(t, "x", "y", "z")
	ctx := context.Background()
	createConversation(t, s, "c1", "x", "y")
	createConversation(t, s, "c2", "x", "z")
	createConversation(t, s, "c3", "y", "z")

	sendText(t, s, "m1", "c2", "z", "newer", time.Now().Add(time.Hour))
	sendText(t, s, "m2", "c1", "y", "older", time.Now())

	conversations, err := s.ListConversations(ctx, "x")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(conversations) != 2 || conversations[0].ID != "c2" || conversations[1].ID != "c1" {
		t.Fatalf("unexpected order: %+v", conversations)
	}
	if p := conversations[0].Participant("x"); p == nil || p.UnreadCount != 1 {
		t.Fatalf("expected unread 1 for x in c2, got %+v", p)
	}
	if len(conversations[1].Participants) != 2 {
		t.Fatalf("expected participants loaded, got %d", len(conversations[1].Participants))
	}
}

func TestRemoveParticipant(t *testing.T) {
	s := newTestStore(t, "x", "y")
	ctx := context.Background()
	createConversation(t, s, "c1", "x", "y")

	if err := s.RemoveParticipant(ctx, "c1", "y"); err != nil {
		t.Fatalf("remove participant: %v", err)
	}
	if _, err := s.GetParticipant(ctx, "c1", "y"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.RemoveParticipant(ctx, "c1", "y"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second removal, got %v", err)
	}
}

func TestCreateMessageRollsBackOnUnreadFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewFromDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT last_message_at, message_seq FROM conversations`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"last_message_at", "message_seq"}).AddRow(nil, 0))
	mock.ExpectExec(`INSERT INTO messages`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE conversations SET last_message_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE conversation_participants SET unread_count`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	msg := &store.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "x",
		Content:        "hi",
		ContentType:    store.ContentTypeText,
	}
	if err := s.CreateMessage(context.Background(), msg); err == nil {
		t.Fatalf("expected error")
	}
	if msg.Seq != 0 {
		t.Fatalf("seq must not be assigned on failure, got %d", msg.Seq)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t, "x")

	err := s.CreateMessage(context.Background(), &store.Message{
		ID: "m1", ConversationID: "nope", SenderID: "x", Content: "hi", ContentType: store.ContentTypeText,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func messageIDs(messages []*store.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}
