// Package notify posts ops-facing escalation notifications to Slack.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts escalation notices to the configured ops channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty the notifier is a noop,
// logging the notice instead of posting it.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a Slack client (a bot token was
// given) and a non-empty channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// Escalation is an ops-facing notice about a message needing human
// attention or a dispatch that landed in the dead letter path.
type Escalation struct {
	Reason         string
	ConversationID string
	Platform       string
	Detail         string
}

// NotifyEscalation posts an escalation notice, or logs it when Slack isn't configured.
func (n *Notifier) NotifyEscalation(ctx context.Context, e Escalation) error {
	text := fmt.Sprintf(":rotating_light: %s — platform=%s conversation=%s %s", e.Reason, e.Platform, e.ConversationID, e.Detail)

	if !n.IsEnabled() {
		n.logger.Info("ops notification (slack disabled)", "reason", e.Reason, "conversationId", e.ConversationID, "platform", e.Platform)
		return nil
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting escalation to slack: %w", err)
	}
	n.logger.Info("posted ops notification", "reason", e.Reason, "conversationId", e.ConversationID)
	return nil
}
