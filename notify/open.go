package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/config"
	"github.com/warp/inventory-ledger/ledger"
)

// Open connects the entry publishers enabled in cfg and returns them as one
// ledger.Publisher, or nil when none is configured. The returned func closes
// every connection that was opened.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (ledger.Publisher, func(), error) {
	var (
		fanout  Fanout
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		fanout = append(fanout, NewRedisPublisher(client, cfg.Redis.Stream))
		closers = append(closers, func() { client.Close() })
		log.Info("publishing entries to redis", zap.String("stream", cfg.Redis.Stream))
	}

	if cfg.MongoDB.URI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		archiver, err := NewMongoArchiver(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		fanout = append(fanout, archiver)
		closers = append(closers, func() { archiver.Close(context.Background()) })
		log.Info("archiving entries to mongodb", zap.String("db", cfg.MongoDB.DBName))
	}

	if len(fanout) == 0 {
		return nil, closeAll, nil
	}
	return fanout, closeAll, nil
}
