package push

import (
	"context"
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatlink/internal/logger"
)

// Sender рассылает Web Push по всем подпискам пользователя через VAPID.
// Подписки, на которые сервис браузера ответил 404/410, удаляются.
type Sender struct {
	subs  *SubscriptionStore
	vapid *webpush.Options
	send  func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)
}

// NewSender: при keys == nil отправка отключена, подписки продолжают сохраняться.
func NewSender(subs *SubscriptionStore, keys *VAPIDKeys) *Sender {
	s := &Sender{subs: subs, send: webpush.SendNotificationWithContext}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		s.vapid = &webpush.Options{
			Subscriber:      "chatlink-push",
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		}
	}
	return s
}

func (s *Sender) Enabled() bool { return s.vapid != nil }

// Send возвращает число подписок, принявших уведомление.
func (s *Sender) Send(ctx context.Context, req NotifyRequest) (int, error) {
	if s.vapid == nil {
		return 0, nil
	}
	subs, err := s.subs.List(ctx, req.UserID)
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(map[string]any{"title": req.Title, "body": req.Body, "data": req.Data})
	if err != nil {
		return 0, err
	}
	delivered := 0
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := s.send(ctx, payload, wpSub, s.vapid)
		if err != nil {
			logger.Errorf("push send %s: %v", shortEndpoint(sub.Endpoint), err)
			continue
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			if err := s.subs.Remove(ctx, req.UserID, sub.Endpoint); err != nil {
				logger.Errorf("push prune user=%d: %v", req.UserID, err)
			}
		case resp.StatusCode < 300:
			delivered++
		}
	}
	return delivered, nil
}

func shortEndpoint(e string) string {
	return e[:min(50, len(e))]
}
