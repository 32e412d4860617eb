package realtime

import (
	"context"
	"fmt"

	"github.com/tbourn/pst-admin-backend/internal/config"
)

var (
	_ Hub = (*Memory)(nil)
	_ Hub = (*Redis)(nil)
	_ Hub = (*NATS)(nil)
)

// Open builds the hub selected by cfg.Driver.
func Open(ctx context.Context, cfg config.RealtimeConfig) (Hub, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(DefaultBuffer), nil
	case "redis":
		return DialRedis(ctx, cfg.RedisURL)
	case "nats":
		return DialNATS(cfg.NATSURL)
	default:
		return nil, fmt.Errorf("realtime: unsupported driver %q", cfg.Driver)
	}
}
