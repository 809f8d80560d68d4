package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chatlink/internal/logger"
)

// Notifier доставляет уведомление пользователю, который сейчас не подключён.
// Ошибки доставки не возвращаются: уведомление best-effort.
type Notifier interface {
	Notify(ctx context.Context, userID int64, title, body string, data map[string]string)
}

// Client вызывает микросервис пуш-уведомлений. Если URL пустой, методы ничего не делают.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Notifier = (*Client)(nil)

// NewClient создаёт клиент. Пустой baseURL отключает пуши.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool { return c.baseURL != "" }

// Subscription: подписка из браузера (PushSubscription.toJSON()).
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Subscription) Valid() bool {
	return s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}

type SubscribeRequest struct {
	UserID       int64        `json:"user_id"`
	Subscription Subscription `json:"subscription"`
}

type UnsubscribeRequest struct {
	UserID   int64  `json:"user_id"`
	Endpoint string `json:"endpoint"`
}

type NotifyRequest struct {
	UserID int64             `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Subscribe сохраняет подписку пользователя на push-сервисе.
func (c *Client) Subscribe(ctx context.Context, userID int64, sub Subscription) error {
	if c.baseURL == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/api/subscribe", SubscribeRequest{UserID: userID, Subscription: sub})
}

// Unsubscribe удаляет подписку по endpoint.
func (c *Client) Unsubscribe(ctx context.Context, userID int64, endpoint string) error {
	if c.baseURL == "" {
		return nil
	}
	return c.do(ctx, http.MethodDelete, "/api/subscribe", UnsubscribeRequest{UserID: userID, Endpoint: endpoint})
}

// Notify отправляет пуш пользователю. Ошибки только логируются.
func (c *Client) Notify(ctx context.Context, userID int64, title, body string, data map[string]string) {
	if c.baseURL == "" {
		return
	}
	req := NotifyRequest{UserID: userID, Title: title, Body: body, Data: data}
	if err := c.do(ctx, http.MethodPost, "/api/notify", req); err != nil {
		logger.Errorf("push notify user=%d: %v", userID, err)
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("push %s %s: %d", method, path, resp.StatusCode)
	}
	return nil
}
