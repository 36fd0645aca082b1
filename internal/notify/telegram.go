package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrDisabled = errors.New("notifier disabled")

const telegramAPI = "https://api.telegram.org"

// Telegram sends through the Bot API sendMessage method.
type Telegram struct {
	Token   string
	ChatID  string // used when Notify gets an empty recipient
	BaseURL string
	Client  *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	if token == "" {
		return nil
	}
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		BaseURL: telegramAPI,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Notify(ctx context.Context, recipient, text string) error {
	if t == nil || t.Token == "" {
		return ErrDisabled
	}
	if recipient == "" {
		recipient = t.ChatID
	}
	if recipient == "" {
		return errors.New("telegram: no chat id")
	}
	body, err := json.Marshal(telegramMessage{ChatID: recipient, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(t.BaseURL, "/") + "/bot" + t.Token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// the url embeds the token; keep it out of logs
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	_ = json.NewDecoder(resp.Body).Decode(&tr)
	if resp.StatusCode/100 != 2 || !tr.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, tr.Description)
	}
	return nil
}
