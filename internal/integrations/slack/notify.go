// Package slacknotify posts finished audit summaries to a Slack channel.
package slacknotify

import (
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"podaudit/internal/report"
)

// Poster is the slice of the Slack API the notifier needs.
type Poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

type Notifier struct {
	api       Poster
	channelID string
}

// New builds a notifier, or nil when Slack delivery is not configured.
func New(botToken, channelID string) *Notifier {
	if botToken == "" || channelID == "" {
		return nil
	}
	return &Notifier{api: slack.New(botToken), channelID: channelID}
}

// NewWithPoster is New with an injected client, for tests.
func NewWithPoster(api Poster, channelID string) *Notifier {
	return &Notifier{api: api, channelID: channelID}
}

// DeliverSummaries posts one message containing every distributor's bilingual
// summary pair. A nil notifier is a no-op so callers don't have to guard.
func (n *Notifier) DeliverSummaries(summaries []report.Summary) error {
	if n == nil || len(summaries) == 0 {
		return nil
	}

	var blocks []string
	for _, s := range summaries {
		blocks = append(blocks, fmt.Sprintf("*%s*\n_%s_", s.MessageZH, s.MessageEN))
	}
	msg := strings.Join(blocks, "\n---\n")

	_, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(msg, false))
	if err != nil {
		return fmt.Errorf("post summaries to %s: %w", n.channelID, err)
	}
	log.Printf("Posted %d DSP summaries to %s", len(summaries), n.channelID)
	return nil
}
