package agent

import (
	"testing"

	"github.com/bashclaw/bashclaw/internal/sessions"
)

func newTestSessionStore(t *testing.T) *sessions.Store {
	t.Helper()
	store, err := sessions.Open(t.TempDir(), sessions.ScopePerChannelPeer)
	if err != nil {
		t.Fatalf("open sessions store: %v", err)
	}
	return store
}

func TestBuildMessages_AppendsNewUserTurnAfterHistory(t *testing.T) {
	store := newTestSessionStore(t)
	e := &Engine{Sessions: store}
	file := store.File("a1", "cli", "alice")

	if err := store.Append(file, "user", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(file, "assistant", "hi there"); err != nil {
		t.Fatal(err)
	}

	msgs, err := e.BuildMessages(file, "what's up", 50)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages (2 history + 1 new), got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "hi there" {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
	if msgs[2].Role != "user" || msgs[2].Content != "what's up" {
		t.Errorf("unexpected new turn: %+v", msgs[2])
	}
}

func TestBuildMessages_EmptyHistoryStillAppendsNewTurn(t *testing.T) {
	store := newTestSessionStore(t)
	e := &Engine{Sessions: store}
	file := store.File("a1", "cli", "bob")

	msgs, err := e.BuildMessages(file, "first message", 50)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "first message" {
		t.Fatalf("expected single new turn, got %+v", msgs)
	}
}

func TestBuildMessages_RespectsMaxHistory(t *testing.T) {
	store := newTestSessionStore(t)
	e := &Engine{Sessions: store}
	file := store.File("a1", "cli", "carol")

	for i := 0; i < 10; i++ {
		if err := store.Append(file, "user", "turn"); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := e.BuildMessages(file, "latest", 3)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 3 history + 1 new = 4 messages, got %d", len(msgs))
	}
}
