package autoreply

import "testing"

func TestStore_Check_FixedStringAlternation(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("hello|hi there", "Hey!", "", 10); err != nil {
		t.Fatal(err)
	}

	resp, ok, err := s.Check("hi there, how are you", "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || resp != "Hey!" {
		t.Errorf("Check() = (%q, %v), want (Hey!, true)", resp, ok)
	}

	_, ok, err = s.Check("goodbye", "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no match")
	}
}

func TestStore_Check_RegexMetacharsNotHonoured(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("a.b", "matched literal a.b", "", 0); err != nil {
		t.Fatal(err)
	}

	// "aXb" would match the regex "a.b" but must NOT match literally.
	_, ok, err := s.Check("aXb", "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("regex metacharacter should not be honoured")
	}

	_, ok, err = s.Check("say a.b now", "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected literal a.b substring to match")
	}
}

func TestStore_Check_EmptyMessageNeverMatches(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("anything", "resp", "", 0); err != nil {
		t.Fatal(err)
	}
	_, ok, err := s.Check("", "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("empty message should never match")
	}
}

func TestStore_Check_PriorityOrder(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("hello", "low priority wins last", "", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("hello", "high priority wins first", "", 1); err != nil {
		t.Fatal(err)
	}

	resp, ok, err := s.Check("hello world", "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || resp != "high priority wins first" {
		t.Errorf("Check() = %q, want high-priority rule to win", resp)
	}
}

func TestStore_Check_ChannelScoped(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("ping", "pong-discord", "discord", 0); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := s.Check("ping", "telegram"); ok {
		t.Error("rule scoped to discord should not match telegram")
	}
	resp, ok, err := s.Check("ping", "discord")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || resp != "pong-discord" {
		t.Errorf("Check() = %q, want pong-discord", resp)
	}
}
