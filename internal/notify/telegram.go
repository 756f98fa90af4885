package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTelegramBaseURL is the public Bot API endpoint.
	DefaultTelegramBaseURL = "https://api.telegram.org"
	// DefaultTelegramRateLimit stays under the per-chat limit of one message per second.
	DefaultTelegramRateLimit = rate.Limit(1.0)
	// DefaultTelegramTimeout for HTTP requests.
	DefaultTelegramTimeout = 10 * time.Second
)

// Telegram posts compact reports to a chat through the Bot API.
type Telegram struct {
	httpClient *http.Client
	baseURL    string
	token      string
	chatID     string
	limiter    *rate.Limiter
}

// TelegramOption configures a Telegram channel.
type TelegramOption func(*Telegram)

// WithTelegramBaseURL sets the Bot API endpoint.
func WithTelegramBaseURL(baseURL string) TelegramOption {
	return func(t *Telegram) {
		t.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTelegramHTTPClient sets a custom HTTP client.
func WithTelegramHTTPClient(client *http.Client) TelegramOption {
	return func(t *Telegram) {
		t.httpClient = client
	}
}

// WithTelegramRateLimit sets the message rate (messages per second).
func WithTelegramRateLimit(rps float64) TelegramOption {
	return func(t *Telegram) {
		t.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewTelegram creates a chat channel for the bot token and chat id.
func NewTelegram(token, chatID string, opts ...TelegramOption) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram chat id is empty")
	}

	t := &Telegram{
		httpClient: &http.Client{Timeout: DefaultTelegramTimeout},
		baseURL:    DefaultTelegramBaseURL,
		token:      token,
		chatID:     chatID,
		limiter:    rate.NewLimiter(DefaultTelegramRateLimit, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name implements Notifier.
func (t *Telegram) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify implements Notifier. Only events with changes are sent.
func (t *Telegram) Notify(ctx context.Context, ev Event) error {
	if !ev.HasChanges() {
		return ErrSkipped
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      formatTelegram(ev),
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// The URL carries the token; drop it from the error.
		return fmt.Errorf("telegram request failed: %s", redact(err.Error(), t.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var out botResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	if !out.OK {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "REDACTED")
}

// formatTelegram renders a compact MarkdownV2 message.
func formatTelegram(ev Event) string {
	report := ev.Report
	var lines []string

	lines = append(lines, fmt.Sprintf("*Change Report* \\- `%s`", escapeCode(ev.Source)), "")
	lines = append(lines, "*Summary:* "+escapeMarkdown(report.Summary()), "")

	if items := report.NewItems(); len(items) > 0 {
		lines = append(lines, fmt.Sprintf("*New:* %d", len(items)))
		shown, more := head(items, telegramItemLimit)
		for _, item := range shown {
			lines = append(lines, "  • "+escapeMarkdown(truncate(firstValue(item), 50)))
		}
		lines = appendMore(lines, more)
	}

	if items := report.RemovedItems(); len(items) > 0 {
		lines = append(lines, fmt.Sprintf("*Removed:* %d", len(items)))
		shown, more := head(items, telegramItemLimit)
		for _, item := range shown {
			lines = append(lines, "  • "+escapeMarkdown(truncate(firstValue(item), 50)))
		}
		lines = appendMore(lines, more)
	}

	if changes := report.ModifiedItems(); len(changes) > 0 {
		lines = append(lines, fmt.Sprintf("*Modified:* %d", len(changes)))
		shown, more := head(changes, telegramItemLimit)
		for _, c := range shown {
			lines = append(lines, "  • "+escapeMarkdown(truncate(c.ID, 40)))
		}
		lines = appendMore(lines, more)
	}

	return strings.Join(lines, "\n")
}

func appendMore(lines []string, more int) []string {
	if more > 0 {
		lines = append(lines, fmt.Sprintf("  _\\.\\.\\. and %d more_", more))
	}
	return lines
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes every MarkdownV2 special character.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var codeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// escapeCode escapes text inside an inline code span.
func escapeCode(s string) string {
	return codeEscaper.Replace(s)
}
