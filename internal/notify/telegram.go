package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender sends HTML-formatted messages through the Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender. An empty baseURL means the
// public Bot API; a nil client gets a 10 second timeout.
func NewTelegramSender(baseURL, token, chatID string, client *http.Client) *TelegramSender {
	if baseURL == "" {
		baseURL = telegramAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chatID:  chatID,
		client:  client,
	}
}

// FormatTelegram renders msg as Bot API HTML. Body lines that look like
// hashes or addresses are wrapped in <code>.
func FormatTelegram(msg Message) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(msg.Title))
	b.WriteString("</b>")
	for _, line := range strings.Split(msg.Body, "\n") {
		if line == "" {
			continue
		}
		b.WriteByte('\n')
		label, value, ok := strings.Cut(line, " 0x")
		if ok {
			b.WriteString(html.EscapeString(label))
			b.WriteString(" <code>0x")
			b.WriteString(html.EscapeString(value))
			b.WriteString("</code>")
			continue
		}
		b.WriteString(html.EscapeString(line))
	}
	return b.String()
}

func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     FormatTelegram(msg),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
