// Package telegram adapts the Telegram bot API as the conversational
// channel used to collect received quantities and to raise alerts.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// longPollSeconds is the server-side hold on getUpdates; kept under the
// HTTP client timeout.
const longPollSeconds = 25

// Channel is a two-way Telegram conversation with one chat.
type Channel struct {
	botToken     string
	chatID       string
	apiBase      string
	replyTimeout time.Duration
	client       *http.Client

	mu     sync.Mutex
	offset int64
}

var _ ports.Channel = (*Channel)(nil)

// Options tunes the channel; zero values fall back to defaults.
type Options struct {
	// APIBase overrides the Telegram endpoint, for tests.
	APIBase string
	// ReplyTimeout bounds one AwaitReply call. Defaults to 5 minutes; a
	// human is on the other end.
	ReplyTimeout time.Duration
	Client       *http.Client
}

// NewChannel registers bot token and chat identifier.
func NewChannel(botToken, chatID string, opts Options) *Channel {
	if opts.APIBase == "" {
		opts.APIBase = defaultAPIBase
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 5 * time.Minute
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: (longPollSeconds + 5) * time.Second}
	}
	return &Channel{
		botToken:     botToken,
		chatID:       chatID,
		apiBase:      strings.TrimSuffix(opts.APIBase, "/"),
		replyTimeout: opts.ReplyTimeout,
		client:       opts.Client,
	}
}

// Send posts a message to the chat. System messages are prefixed so
// operators can tell alerts from conversational prompts.
func (c *Channel) Send(ctx context.Context, text string, system bool) error {
	if c.botToken == "" || c.chatID == "" {
		return fmt.Errorf("telegram channel misconfigured")
	}
	if system {
		text = "[system] " + text
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// AwaitReply long-polls getUpdates until the chat produces a text
// message or the reply timeout elapses, in which case it returns
// domain.ErrChannelTimeout. Replies arriving for other chats are
// consumed and dropped.
func (c *Channel) AwaitReply(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.replyTimeout)
	defer cancel()

	for {
		updates, err := c.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("await reply: %w", domain.ErrChannelTimeout)
			}
			return "", fmt.Errorf("await reply: %w", err)
		}

		for _, u := range updates {
			if u.UpdateID >= c.offset {
				c.offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			if strconv.FormatInt(u.Message.Chat.ID, 10) != c.chatID {
				continue
			}
			return u.Message.Text, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("await reply: %w", domain.ErrChannelTimeout)
		default:
		}
	}
}

func (c *Channel) fetchUpdates(ctx context.Context) ([]update, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates", c.apiBase, c.botToken)
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(longPollSeconds))
	if c.offset > 0 {
		q.Set("offset", strconv.FormatInt(c.offset, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram error: %s", resp.Status)
	}

	var payload updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("telegram rejected getUpdates")
	}
	return payload.Result, nil
}
