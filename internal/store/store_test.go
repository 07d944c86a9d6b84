package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListMessages(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := s.RecordMessage(MessageRecord{
			AccountID: "acct-1",
			ChatID:    "123@g.us",
			SenderID:  "555",
			Content:   "hello",
			IsGroup:   true,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordMessage: %v", err)
		}
	}
	if err := s.RecordMessage(MessageRecord{
		AccountID: "acct-2", ChatID: "9@c.us", SenderID: "9", Timestamp: base,
	}); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.RecentMessages("acct-1", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if !msgs[0].Timestamp.After(msgs[2].Timestamp) {
		t.Errorf("messages not newest-first: %v then %v", msgs[0].Timestamp, msgs[2].Timestamp)
	}
	if !msgs[0].IsGroup {
		t.Errorf("is_group lost in round trip")
	}
}

func TestRulePriorityOrdering(t *testing.T) {
	s := newTestStore(t)

	low, err := s.AddRule(ReplyRule{Match: MatchContains, Pattern: "hi", Response: "hey", Priority: 1, Enabled: true})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	high, err := s.AddRule(ReplyRule{Match: MatchExact, Pattern: "hi", Response: "hello there", Priority: 10, Enabled: true})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if _, err := s.AddRule(ReplyRule{Match: MatchPrefix, Pattern: "!", Response: "cmd", Priority: 5, Enabled: false}); err != nil {
		t.Fatal(err)
	}

	rules, err := s.EnabledRules()
	if err != nil {
		t.Fatalf("EnabledRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d enabled rules, want 2", len(rules))
	}
	if rules[0].ID != high || rules[1].ID != low {
		t.Errorf("priority order wrong: %+v", rules)
	}

	all, err := s.AllRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d total rules, want 3", len(all))
	}
}

func TestAddRuleRejectsUnknownMatch(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddRule(ReplyRule{Match: "fuzzy", Pattern: "x", Response: "y"}); err == nil {
		t.Fatal("expected error for unknown match type")
	}
}

func TestRuleEnableDisableDelete(t *testing.T) {
	s := newTestStore(t)
	id, err := s.AddRule(ReplyRule{Match: MatchContains, Pattern: "a", Response: "b", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetRuleEnabled(id, false); err != nil {
		t.Fatalf("SetRuleEnabled: %v", err)
	}
	if rules, _ := s.EnabledRules(); len(rules) != 0 {
		t.Fatalf("rule still enabled: %+v", rules)
	}

	if err := s.DeleteRule(id); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if err := s.DeleteRule(id); err == nil {
		t.Fatal("expected error deleting missing rule")
	}
	if err := s.SetRuleEnabled(999, true); err == nil {
		t.Fatal("expected error enabling missing rule")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if v, err := s.GetSetting("absent"); err != nil || v != "" {
		t.Fatalf("GetSetting(absent) = %q, %v", v, err)
	}
	if err := s.SetSetting("mode", "active"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("mode", "paused"); err != nil {
		t.Fatal(err)
	}
	if v, err := s.GetSetting("mode"); err != nil || v != "paused" {
		t.Fatalf("GetSetting(mode) = %q, %v", v, err)
	}
}
