package infrastructure

import (
	"context"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"vinheria/internal/pkg/apperr"
)

// DefaultRedisKey 存放 商品 -> 数量 的 hash
const DefaultRedisKey = "inventory:stock"

const maxRestockAttempts = 10

// reserveScript 在 Redis 内部完成检查和扣减，多个副本的并发预占在服务端串行执行。
// 成功返回 {1, 剩余}，库存不足返回 {0, 当前可用}。
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local requested = tonumber(ARGV[2])
if current < requested then
    return {0, current}
end
return {1, redis.call('HINCRBY', KEYS[1], ARGV[1], -requested)}
`)

// RedisRepository 用单个 Redis hash 存库存，多个库存服务副本可以共享
type RedisRepository struct {
	client redis.UniversalClient
	key    string
}

func NewRedisRepository(client redis.UniversalClient, key string) *RedisRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRepository{client: client, key: key}
}

// Seed 清掉上一个进程留下的数据，再写入目录
func (r *RedisRepository) Seed(ctx context.Context, catalog map[string]int) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(catalog) > 0 {
			fields := make(map[string]interface{}, len(catalog))
			for p, q := range catalog {
				fields[p] = q
			}
			pipe.HSet(ctx, r.key, fields)
		}
		return nil
	})
	return errors.Wrap(err, "seed stock")
}

func (r *RedisRepository) Quantity(ctx context.Context, product string) (int, error) {
	q, err := r.client.HGet(ctx, r.key, product).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read stock of %q", product)
	}
	return q, nil
}

func (r *RedisRepository) Snapshot(ctx context.Context) (map[string]int, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read stock snapshot")
	}
	out := make(map[string]int, len(raw))
	for p, v := range raw {
		q, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt stock value for %q", p)
		}
		out[p] = q
	}
	return out, nil
}

func (r *RedisRepository) Reserve(ctx context.Context, product string, quantity int) (int, error) {
	res, err := reserveScript.Run(ctx, r.client, []string{r.key}, product, quantity).Int64Slice()
	if err != nil {
		return 0, errors.Wrapf(err, "reserve %q", product)
	}
	if len(res) != 2 {
		return 0, errors.Errorf("unexpected reserve script result %v", res)
	}
	if res[0] == 0 {
		return int(res[1]), apperr.InsufficientStock(int(res[1]), quantity)
	}
	return int(res[1]), nil
}

// Restock 用 WATCH + MULTI 做"读取-检查溢出-累加"。期间若有预占脚本改了
// 同一个 key，事务失败并重试。
func (r *RedisRepository) Restock(ctx context.Context, product string, quantity int) (int, error) {
	var newQuantity int64
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, r.key, product).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if int64(quantity) > math.MaxInt64-current {
			return errRestockOverflow(product)
		}
		var incr *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.HIncrBy(ctx, r.key, product, int64(quantity))
			return nil
		})
		if err != nil {
			return err
		}
		newQuantity = incr.Val()
		return nil
	}

	for i := 0; i < maxRestockAttempts; i++ {
		err := r.client.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if _, ok := apperr.As(err); ok {
			return 0, err
		}
		if err != nil {
			return 0, errors.Wrapf(err, "restock %q", product)
		}
		return int(newQuantity), nil
	}
	return 0, errors.Errorf("restock %q: key kept changing after %d attempts", product, maxRestockAttempts)
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "ping redis")
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
