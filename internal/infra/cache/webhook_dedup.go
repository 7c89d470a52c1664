package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WebhookDedup は処理済みwebhookイベントIDを覚えておく。
// Stripeはat-least-once配送なので同じイベントが複数回届く。
// MarkPaid側の条件付き更新だけでも結果は正しいが、ここで弾けば二度目の処理を省ける。
//
// 記録は処理が成功した後に行う。先に記録すると、初回がDB障害で
// 失敗したとき再送が「処理済み」と誤判定されて取りこぼす。
type WebhookDedup interface {
	// 既に処理済みならtrue。
	Seen(ctx context.Context, eventID string) (bool, error)
	// 処理成功後に呼ぶ。
	MarkSeen(ctx context.Context, eventID string) error
}

type redisWebhookDedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisWebhookDedup(addr string, ttl time.Duration) WebhookDedup {
	return &redisWebhookDedup{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func dedupKey(eventID string) string {
	return fmt.Sprintf("storefront:webhook:%s", eventID)
}

func (d *redisWebhookDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *redisWebhookDedup) MarkSeen(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, dedupKey(eventID), "1", d.ttl).Err()
}

// Redis未設定のとき用。常に「未処理」を返し、冪等性はDBの条件付き更新に任せる。
type noopWebhookDedup struct{}

func NewNoopWebhookDedup() WebhookDedup {
	return noopWebhookDedup{}
}

func (noopWebhookDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return false, nil
}

func (noopWebhookDedup) MarkSeen(ctx context.Context, eventID string) error {
	return nil
}
