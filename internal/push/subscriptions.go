package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	subsKeyPrefix   = "chatlink:push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

// SubscriptionStore хранит подписки пользователя в Redis-списке (последние maxSubsPerUser).
type SubscriptionStore struct {
	rdb *redis.Client
}

func NewSubscriptionStore(rdb *redis.Client) *SubscriptionStore {
	return &SubscriptionStore{rdb: rdb}
}

func subsKey(userID int64) string {
	return fmt.Sprintf("%s%d", subsKeyPrefix, userID)
}

// Add добавляет подписку; повторная подписка того же endpoint заменяет старую.
func (s *SubscriptionStore) Add(ctx context.Context, userID int64, sub Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	if err := s.Remove(ctx, userID, sub.Endpoint); err != nil {
		return err
	}
	key := subsKey(userID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, string(raw))
		pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
		pipe.Expire(ctx, key, subscriptionTTL)
		return nil
	})
	return err
}

// Remove удаляет подписки с данным endpoint.
func (s *SubscriptionStore) Remove(ctx context.Context, userID int64, endpoint string) error {
	key := subsKey(userID)
	items, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, item := range items {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint == endpoint {
			if err := s.rdb.LRem(ctx, key, 0, item).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SubscriptionStore) List(ctx context.Context, userID int64) ([]Subscription, error) {
	items, err := s.rdb.LRange(ctx, subsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	subs := make([]Subscription, 0, len(items))
	for _, item := range items {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}
