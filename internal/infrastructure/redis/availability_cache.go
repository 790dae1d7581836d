package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCacheInterface は空席数キャッシュのインターフェース
type AvailabilityCacheInterface interface {
	GetAvailableSeats(ctx context.Context, flightID string) (int, error)
	SetAvailableSeats(ctx context.Context, flightID string, seats int, ttl time.Duration) error
	Invalidate(ctx context.Context, flightID string) error
}

// AvailabilityCache はフライトの空席数を短時間キャッシュする
// 表示用の値であり、予約可否の判定には使わない
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache は新しいAvailabilityCacheインスタンスを作成する
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// GetAvailableSeats はフライトの空席数をキャッシュから取得する
func (c *AvailabilityCache) GetAvailableSeats(ctx context.Context, flightID string) (int, error) {
	val, err := c.client.Get(ctx, availableSeatsKey(flightID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailableSeats はフライトの空席数をキャッシュに保存する
func (c *AvailabilityCache) SetAvailableSeats(ctx context.Context, flightID string, seats int, ttl time.Duration) error {
	if err := c.client.Set(ctx, availableSeatsKey(flightID), seats, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はフライトのキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, flightID string) error {
	if err := c.client.Del(ctx, availableSeatsKey(flightID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func availableSeatsKey(flightID string) string {
	return fmt.Sprintf("flights:available:%s", flightID)
}

var _ AvailabilityCacheInterface = (*AvailabilityCache)(nil)
