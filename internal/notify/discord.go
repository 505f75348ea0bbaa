package notify

import (
	"context"
	"fmt"
	"net/http"
)

// Discord rejects embeds whose description exceeds this many characters.
const discordDescriptionMax = 4096

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color"`
}

type discordMessage struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender delivers alerts as a single embed through an incoming
// webhook.
type DiscordSender struct {
	url    string
	client *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{url: webhookURL, client: &http.Client{Timeout: webhookTimeout}}
}

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	msg := discordMessage{
		Username: "studiobot",
		Embeds: []discordEmbed{{
			Title:       title,
			Description: truncateRunes(message, discordDescriptionMax),
			Color:       0xE67E22,
		}},
	}
	if err := postJSON(ctx, d.client, d.url, msg); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
