package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embed colours by event.
var discordColors = map[string]int{
	"operation_succeeded":  0x2ecc71,
	"operation_failed":     0xe74c3c,
	"group_discovered":     0x3498db,
	"group_status_changed": 0xf1c40f,
	"round_advanced":       0x9b59b6,
}

const discordDefaultColor = 0x95a5a6

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
	Footer      *struct {
		Text string `json:"text"`
	} `json:"footer,omitempty"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender posts to a Discord webhook as a single embed.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender. A nil client gets a 10 second
// timeout.
func NewDiscordSender(webhookURL, username string, client *http.Client) *DiscordSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DiscordSender{webhookURL: webhookURL, username: username, client: client}
}

func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	color, ok := discordColors[msg.Event]
	if !ok {
		color = discordDefaultColor
	}
	embed := discordEmbed{Title: msg.Title, Description: msg.Body, Color: color}
	if !msg.Time.IsZero() {
		embed.Timestamp = msg.Time.UTC().Format(time.RFC3339)
	}
	if msg.Event != "" {
		embed.Footer = &struct {
			Text string `json:"text"`
		}{Text: msg.Event}
	}

	body, err := json.Marshal(discordPayload{Username: d.username, Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
