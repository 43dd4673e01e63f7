package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dmelnik/lumen/pkg/logger"
)

const defaultAPIBase = "https://api.telegram.org"

// BotClient is a narrow Telegram Bot API client covering only the calls the
// pipeline needs: reading channel post updates and publishing.
type BotClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewBotClient creates a client for the given bot token.
func NewBotClient(token string) *BotClient {
	return &BotClient{
		token:      token,
		baseURL:    defaultAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint. Intended for tests.
func (c *BotClient) SetBaseURL(url string) { c.baseURL = url }

// apiReply is the envelope every Bot API method returns.
type apiReply struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// update is the subset of a Bot API update the fetcher reads. Channel posts
// arrive as channel_post updates; reaction totals arrive separately as
// message_reaction_count updates referencing the post by message id.
type update struct {
	UpdateID    int64 `json:"update_id"`
	ChannelPost *struct {
		MessageID int64 `json:"message_id"`
		Chat      struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"channel_post"`
	ReactionCount *struct {
		MessageID int64 `json:"message_id"`
		Chat      struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"chat"`
		Reactions []struct {
			TotalCount int `json:"total_count"`
		} `json:"reactions"`
	} `json:"message_reaction_count"`
}

// FetchChannelPosts reads pending updates and folds channel posts together
// with their reaction counters for the named channel.
func (c *BotClient) FetchChannelPosts(ctx context.Context, channelID string) ([]Post, error) {
	var updates []update
	params := map[string]any{
		"allowed_updates": []string{"channel_post", "message_reaction_count"},
		"limit":           100,
	}
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, fmt.Errorf("failed to fetch channel updates: %w", err)
	}

	posts := make(map[int64]*Post)
	var order []int64
	for _, u := range updates {
		if u.ChannelPost != nil && matchesChannel(channelID, u.ChannelPost.Chat.ID, u.ChannelPost.Chat.Username) {
			if u.ChannelPost.Text == "" {
				continue
			}
			if _, seen := posts[u.ChannelPost.MessageID]; !seen {
				order = append(order, u.ChannelPost.MessageID)
			}
			posts[u.ChannelPost.MessageID] = &Post{
				ID:   u.ChannelPost.MessageID,
				Text: u.ChannelPost.Text,
			}
		}
		if u.ReactionCount != nil && matchesChannel(channelID, u.ReactionCount.Chat.ID, u.ReactionCount.Chat.Username) {
			p, seen := posts[u.ReactionCount.MessageID]
			if !seen {
				continue
			}
			total := 0
			for _, r := range u.ReactionCount.Reactions {
				total += r.TotalCount
			}
			p.ReactionCount = total
		}
	}

	out := make([]Post, 0, len(order))
	for _, id := range order {
		out = append(out, *posts[id])
	}
	logger.Debug("fetched %d channel posts from %s", len(out), channelID)
	return out, nil
}

func matchesChannel(channelID string, chatID int64, username string) bool {
	if channelID == "" {
		return true
	}
	if username != "" && ("@"+username == channelID || username == channelID) {
		return true
	}
	return fmt.Sprintf("%d", chatID) == channelID
}

// Publish sends text to the channel, as a photo caption when an image is
// attached.
func (c *BotClient) Publish(ctx context.Context, channelID, text string, image []byte) error {
	if len(image) == 0 {
		return c.call(ctx, "sendMessage", map[string]any{
			"chat_id": channelID,
			"text":    text,
		}, nil)
	}
	return c.sendPhoto(ctx, channelID, text, image)
}

// call posts a JSON-bodied Bot API method and decodes the result envelope.
func (c *BotClient) call(ctx context.Context, method string, params map[string]any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeReply(resp.Body, method, out)
}

// sendPhoto uploads the image as multipart form data with the caption.
func (c *BotClient) sendPhoto(ctx context.Context, channelID, caption string, image []byte) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("chat_id", channelID); err != nil {
		return fmt.Errorf("failed to build photo upload: %w", err)
	}
	if err := form.WriteField("caption", caption); err != nil {
		return fmt.Errorf("failed to build photo upload: %w", err)
	}
	part, err := form.CreateFormFile("photo", "art.png")
	if err != nil {
		return fmt.Errorf("failed to build photo upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("failed to build photo upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("failed to build photo upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &buf)
	if err != nil {
		return fmt.Errorf("failed to create sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendPhoto request failed: %w", err)
	}
	defer resp.Body.Close()

	return decodeReply(resp.Body, "sendPhoto", nil)
}

func (c *BotClient) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func decodeReply(r io.Reader, method string, out any) error {
	var reply apiReply
	if err := json.NewDecoder(r).Decode(&reply); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", method, err)
	}
	if !reply.OK {
		return fmt.Errorf("%s rejected: %s", method, reply.Description)
	}
	if out != nil {
		if err := json.Unmarshal(reply.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}
