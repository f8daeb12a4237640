package cmd

import (
	"context"
	"fmt"

	"github.com/jigged/shopfloor/pkg/occupancy"
)

// NewOccupancyRegistry builds the station occupancy registry. The redis
// backend shares occupancy between API instances.
func NewOccupancyRegistry(ctx context.Context, backend, redisURL string) (occupancy.Registry, error) {
	switch backend {
	case "", "memory":
		return occupancy.NewMemory(), nil
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("redis occupancy backend requires a redis url")
		}

		registry, err := occupancy.NewRedis(ctx, redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis occupancy registry: %w", err)
		}

		return registry, nil
	default:
		return nil, fmt.Errorf("unsupported occupancy backend: %s", backend)
	}
}
