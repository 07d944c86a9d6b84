// Package autoreply answers inbound messages from a persisted rule set,
// rate-limited per sender.
package autoreply

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/store"
)

// Sender delivers a reply. Satisfied by the connection supervisor.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// RuleSource provides the active rules. Satisfied by *store.Store.
type RuleSource interface {
	EnabledRules() ([]store.ReplyRule, error)
}

// Replier matches inbound messages against reply rules and sends the
// highest-priority response. A per-sender cooldown keeps the account from
// flooding chatty senders.
type Replier struct {
	rules    RuleSource
	sender   Sender
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

func New(rules RuleSource, sender Sender, cooldown time.Duration) *Replier {
	return &Replier{
		rules:    rules,
		sender:   sender,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// HandleMessage is the bus subscriber entry point.
func (r *Replier) HandleMessage(ctx context.Context, msg *bus.InboundMessage) {
	response, matched := r.Match(msg.Content)
	if !matched {
		return
	}
	if !r.allow(msg.SenderID) {
		return
	}
	if err := r.sender.SendText(ctx, msg.ChatID, response); err != nil {
		slog.Warn("auto-reply send failed",
			"account", msg.AccountID, "chat", msg.ChatID, "error", err)
		return
	}
	slog.Info("auto-reply sent", "account", msg.AccountID, "chat", msg.ChatID)
}

// Match returns the response of the highest-priority rule matching text.
func (r *Replier) Match(text string) (string, bool) {
	rules, err := r.rules.EnabledRules()
	if err != nil {
		slog.Warn("failed to load reply rules", "error", err)
		return "", false
	}
	// Rules arrive ordered by descending priority; first hit wins.
	for _, rule := range rules {
		if ruleMatches(rule, text) {
			return rule.Response, true
		}
	}
	return "", false
}

func ruleMatches(rule store.ReplyRule, text string) bool {
	lower := strings.ToLower(text)
	pattern := strings.ToLower(rule.Pattern)
	switch rule.Match {
	case store.MatchContains:
		return pattern != "" && strings.Contains(lower, pattern)
	case store.MatchExact:
		return strings.TrimSpace(lower) == pattern
	case store.MatchPrefix:
		return pattern != "" && strings.HasPrefix(lower, pattern)
	case store.MatchRegex:
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			slog.Warn("invalid reply rule regex", "rule", rule.ID, "error", err)
			return false
		}
		return re.MatchString(text)
	}
	return false
}

// allow checks and advances the per-sender cooldown window.
func (r *Replier) allow(senderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if last, ok := r.lastSent[senderID]; ok && now.Sub(last) < r.cooldown {
		return false
	}
	r.lastSent[senderID] = now
	return true
}
