package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"github.com/waharvest/waharvest/internal/bus"
)

type capturePoster struct {
	channels []string
}

func (c *capturePoster) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	c.channels = append(c.channels, channelID)
	return channelID, "", nil
}

func TestOnlyTerminalStatesNotify(t *testing.T) {
	p := &capturePoster{}
	n := &SlackNotifier{api: p, channel: "#ops"}

	for _, state := range []string{"CONNECTING", "OPEN", "CLOSED_RECOVERABLE"} {
		n.HandleState(context.Background(), &bus.StateEvent{AccountID: "a", State: state})
	}
	if len(p.channels) != 0 {
		t.Fatalf("posted for non-terminal states: %v", p.channels)
	}

	n.HandleState(context.Background(), &bus.StateEvent{
		AccountID: "a", State: "CLOSED_TERMINAL", Reason: "logged out",
	})
	if len(p.channels) != 1 || !strings.Contains(p.channels[0], "#ops") {
		t.Fatalf("posts = %v", p.channels)
	}
}
