package core

import (
	"context"
	"testing"
	"time"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/fabric"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/presence"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store/sqlite"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/utils"
)

type testEnv struct {
	store    store.Store
	bus      *fabric.Local
	hub      *Hub
	presence presence.Registry
	svc      *Service
}

func newTestEnv(t *testing.T, users ...string) *testEnv {
	t.Helper()
	return newTestEnvWithPresence(t, presence.NewMemory(), users...)
}

func newTestEnvWithPresence(t *testing.T, reg presence.Registry, users ...string) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	for _, id := range users {
		if err := st.UpsertUser(context.Background(), &store.User{ID: id, Name: "name-" + id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}

	bus := fabric.NewLocal()
	hub := NewHub(bus, nil)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	t.Cleanup(hub.Stop)

	return &testEnv{
		store:    st,
		bus:      bus,
		hub:      hub,
		presence: reg,
		svc:      NewService(st, hub, reg, Options{MaxContentLength: 100}, nil),
	}
}

// connect opens a session for userID the way the websocket handler does.
func (e *testEnv) connect(t *testing.T, userID string) *Client {
	t.Helper()

	c := NewClient(utils.NewID(), userID, "", 256)
	if err := e.svc.Connect(context.Background(), c); err != nil {
		t.Fatalf("connect %s: %v", userID, err)
	}
	t.Cleanup(func() { e.svc.Disconnect(context.Background(), c) })
	return c
}

func (e *testEnv) conversation(t *testing.T, creator string, others ...string) *store.Conversation {
	t.Helper()

	conv, err := e.svc.CreateConversation(context.Background(), creator, CreateConversationInput{ParticipantIDs: others})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func (e *testEnv) join(t *testing.T, c *Client, conversationID string) {
	t.Helper()

	if err := e.svc.JoinConversation(context.Background(), c, conversationID); err != nil {
		t.Fatalf("join %s: %v", conversationID, err)
	}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain discards everything queued so far.
func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func expectNoEvent(t *testing.T, ch <-chan *Event, kinds ...EventKind) {
	t.Helper()

	for {
		select {
		case ev := <-ch:
			for _, k := range kinds {
				if ev.Kind == k {
					t.Fatalf("unexpected event: %+v", ev)
				}
			}
		default:
			return
		}
	}
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()

	ce := AsCoreError(err)
	if ce == nil || ce.Code != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}
