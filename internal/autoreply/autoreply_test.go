package autoreply

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/store"
)

type staticRules struct{ rules []store.ReplyRule }

func (s staticRules) EnabledRules() ([]store.ReplyRule, error) { return s.rules, nil }

type captureSender struct {
	mu    sync.Mutex
	sends []string
}

func (c *captureSender) SendText(ctx context.Context, chatID, text string) error {
	c.mu.Lock()
	c.sends = append(c.sends, chatID+":"+text)
	c.mu.Unlock()
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

func TestMatchTypes(t *testing.T) {
	rules := staticRules{rules: []store.ReplyRule{
		{ID: 1, Match: store.MatchExact, Pattern: "ping", Response: "pong", Priority: 5},
		{ID: 2, Match: store.MatchPrefix, Pattern: "!help", Response: "commands: ...", Priority: 4},
		{ID: 3, Match: store.MatchRegex, Pattern: `(?i)order\s+#\d+`, Response: "checking your order", Priority: 3},
		{ID: 4, Match: store.MatchContains, Pattern: "price", Response: "see our catalog", Priority: 2},
	}}
	r := New(rules, &captureSender{}, time.Minute)

	cases := []struct {
		text     string
		response string
		matched  bool
	}{
		{"ping", "pong", true},
		{"PING ", "pong", true},
		{"!help me", "commands: ...", true},
		{"my Order #42 is late", "checking your order", true},
		{"what is the PRICE of this", "see our catalog", true},
		{"unrelated chatter", "", false},
	}
	for _, tc := range cases {
		got, ok := r.Match(tc.text)
		if ok != tc.matched || got != tc.response {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tc.text, got, ok, tc.response, tc.matched)
		}
	}
}

func TestHighestPriorityWins(t *testing.T) {
	// Store returns rules ordered by descending priority.
	rules := staticRules{rules: []store.ReplyRule{
		{ID: 2, Match: store.MatchContains, Pattern: "hello", Response: "vip greeting", Priority: 10},
		{ID: 1, Match: store.MatchContains, Pattern: "hello", Response: "plain greeting", Priority: 1},
	}}
	r := New(rules, &captureSender{}, time.Minute)

	got, ok := r.Match("hello there")
	if !ok || got != "vip greeting" {
		t.Fatalf("Match = %q, %v", got, ok)
	}
}

func TestCooldownPerSender(t *testing.T) {
	rules := staticRules{rules: []store.ReplyRule{
		{ID: 1, Match: store.MatchContains, Pattern: "hi", Response: "hello", Priority: 1},
	}}
	sender := &captureSender{}
	r := New(rules, sender, 30*time.Second)

	clock := time.Now()
	r.now = func() time.Time { return clock }

	msg := func(senderID string) *bus.InboundMessage {
		return &bus.InboundMessage{AccountID: "a", ChatID: "c", SenderID: senderID, Content: "hi"}
	}

	r.HandleMessage(context.Background(), msg("alice"))
	r.HandleMessage(context.Background(), msg("alice")) // within cooldown
	r.HandleMessage(context.Background(), msg("bob"))   // independent sender
	if got := sender.count(); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}

	clock = clock.Add(31 * time.Second)
	r.HandleMessage(context.Background(), msg("alice"))
	if got := sender.count(); got != 3 {
		t.Fatalf("sends after cooldown = %d, want 3", got)
	}
}

func TestInvalidRegexNeverMatches(t *testing.T) {
	rules := staticRules{rules: []store.ReplyRule{
		{ID: 1, Match: store.MatchRegex, Pattern: "([", Response: "broken"},
	}}
	r := New(rules, &captureSender{}, time.Minute)
	if _, ok := r.Match("(["); ok {
		t.Fatal("broken regex rule matched")
	}
}
