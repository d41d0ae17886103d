package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// RedisForwarder puts frames onto a Redis pub/sub channel via PublishRemote
// and, in the other direction, feeds frames received from Redis back into
// the local Bus. Bus.Publish does not call PublishRemote; a frame reaches
// Redis only through an explicit PublishRemote call. Grounded on the teacher's internal/realtime/bus
// redisBus, narrowed to this domain's Frame type. Optional: a single-
// process deployment runs Bus alone; this only matters once more than one
// API/worker process shares subscribers (SPEC_FULL.md §9).
type RedisForwarder struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	local   *Bus
}

func NewRedisForwarder(log *logger.Logger, addr, channel string, local *Bus) (*RedisForwarder, error) {
	if addr == "" {
		return nil, fmt.Errorf("progress bus: redis addr required")
	}
	if channel == "" {
		channel = "voxpipe:progress"
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("progress bus: redis ping: %w", err)
	}

	return &RedisForwarder{
		log:     log.With("component", "ProgressBusRedisForwarder"),
		rdb:     rdb,
		channel: channel,
		local:   local,
	}, nil
}

// PublishRemote mirrors frame onto the shared Redis channel, for other
// processes' StartForwarder loops to pick up.
func (f *RedisForwarder) PublishRemote(ctx context.Context, frame Frame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.channel, raw).Err()
}

// StartForwarder subscribes to the shared channel and republishes every
// received frame into the local Bus, so subscribers attached to this
// process see frames published by any process.
func (f *RedisForwarder) StartForwarder(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("progress bus: redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var frame Frame
				if err := json.Unmarshal([]byte(m.Payload), &frame); err != nil {
					f.log.Warn("bad redis progress frame payload", "error", err)
					continue
				}
				f.local.Publish(frame)
			}
		}
	}()
	return nil
}

func (f *RedisForwarder) Close() error {
	if f == nil || f.rdb == nil {
		return nil
	}
	return f.rdb.Close()
}
