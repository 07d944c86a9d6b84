// Package notify informs operators of terminal account states over Slack.
// Transient retries stay out of the channel; only events that require a
// human (logged out, reconnect exhaustion) are posted.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/waharvest/waharvest/internal/bus"
	"github.com/waharvest/waharvest/internal/supervisor"
)

// poster is the slice of the Slack API the notifier needs.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts terminal-state alerts to one operator channel.
type SlackNotifier struct {
	api     poster
	channel string
}

func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{api: slack.New(token), channel: channel}
}

// HandleState is the bus subscriber entry point. Non-terminal transitions
// are ignored.
func (n *SlackNotifier) HandleState(ctx context.Context, evt *bus.StateEvent) {
	if evt.State != string(supervisor.StateClosedTerminal) {
		return
	}
	text := fmt.Sprintf("Account %s is logged out and needs re-pairing (%s).",
		evt.AccountID, evt.Reason)
	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		slog.Warn("operator notification failed",
			"account", evt.AccountID, "error", err)
	}
}
