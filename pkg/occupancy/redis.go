package occupancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "shopfloor:occupancy:"
	maxTxAttempts    = 5
)

// Redis shares occupancy between engine processes through a Redis instance.
// Every write to a station key runs inside a WATCH/MULTI transaction.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedis connects to the Redis server described by redisURL
// (redis://[user:pass@]host:port/db).
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisWithClient(client, defaultKeyPrefix), nil
}

// NewRedisWithClient wraps an existing client; keys are namespaced by prefix.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &Redis{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Redis) key(stationID string) string {
	return r.prefix + stationID
}

func (r *Redis) Occupy(ctx context.Context, stationID, operatorID string) (models.Occupancy, error) {
	err := validateIDs(stationID, operatorID)
	if err != nil {
		return models.Occupancy{}, err
	}

	var result models.Occupancy

	err = r.transaction(ctx, r.key(stationID), func(tx *redis.Tx) error {
		current, held, err := r.read(ctx, tx, stationID)
		if err != nil {
			return err
		}

		if held && current.OperatorID != operatorID {
			return &models.ConflictError{
				StationID:       stationID,
				CurrentOccupant: current.OperatorID,
				Since:           current.Since,
			}
		}

		result = models.Occupancy{StationID: stationID, OperatorID: operatorID, Since: r.now()}

		return r.write(ctx, tx, result)
	})
	if err != nil {
		return models.Occupancy{}, err
	}

	return result, nil
}

func (r *Redis) Takeover(ctx context.Context, stationID, newOperatorID string) (models.Occupancy, error) {
	err := validateIDs(stationID, newOperatorID)
	if err != nil {
		return models.Occupancy{}, err
	}

	occupancy := models.Occupancy{StationID: stationID, OperatorID: newOperatorID, Since: r.now()}

	payload, err := json.Marshal(occupancy)
	if err != nil {
		return models.Occupancy{}, fmt.Errorf("failed to marshal occupancy: %w", err)
	}

	err = r.client.Set(ctx, r.key(stationID), payload, 0).Err()
	if err != nil {
		return models.Occupancy{}, fmt.Errorf("failed to take over station %s: %w", stationID, err)
	}

	return occupancy, nil
}

func (r *Redis) Release(ctx context.Context, stationID string) error {
	err := r.client.Del(ctx, r.key(stationID)).Err()
	if err != nil {
		return fmt.Errorf("failed to release station %s: %w", stationID, err)
	}

	return nil
}

func (r *Redis) Get(ctx context.Context, stationID string) (models.Occupancy, bool, error) {
	return r.read(ctx, r.client, stationID)
}

func (r *Redis) List(ctx context.Context) ([]models.Occupancy, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]models.Occupancy, 0, len(keys))
	if len(keys) == 0 {
		return list, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load occupancies: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue // released between SCAN and MGET
		}

		var occupancy models.Occupancy

		err := json.Unmarshal([]byte(raw), &occupancy)
		if err != nil {
			return nil, fmt.Errorf("failed to decode occupancy %s: %w", keys[i], err)
		}

		list = append(list, occupancy)
	}

	sortByStation(list)

	return list, nil
}

func (r *Redis) ReleaseOlderThan(ctx context.Context, cutoff time.Time) ([]models.Occupancy, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	released := make([]models.Occupancy, 0)

	for _, candidate := range list {
		if !candidate.Since.Before(cutoff) {
			continue
		}

		expired := false

		err := r.transaction(ctx, r.key(candidate.StationID), func(tx *redis.Tx) error {
			current, held, err := r.read(ctx, tx, candidate.StationID)
			if err != nil || !held || !current.Since.Before(cutoff) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, r.key(candidate.StationID))

				return nil
			})
			expired = err == nil

			return err
		})
		if err != nil {
			return released, fmt.Errorf("failed to expire station %s: %w", candidate.StationID, err)
		}

		if expired {
			released = append(released, candidate)
		}
	}

	return released, nil
}

func (r *Redis) Reset(ctx context.Context) error {
	keys, err := r.keys(ctx)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	err = r.client.Del(ctx, keys...).Err()
	if err != nil {
		return fmt.Errorf("failed to reset occupancies: %w", err)
	}

	return nil
}

func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	err := iter.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to scan occupancy keys: %w", err)
	}

	return keys, nil
}

func (r *Redis) read(ctx context.Context, cmd redis.Cmdable, stationID string) (models.Occupancy, bool, error) {
	raw, err := cmd.Get(ctx, r.key(stationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Occupancy{}, false, nil
	}

	if err != nil {
		return models.Occupancy{}, false, fmt.Errorf("failed to read station %s: %w", stationID, err)
	}

	var occupancy models.Occupancy

	err = json.Unmarshal(raw, &occupancy)
	if err != nil {
		return models.Occupancy{}, false, fmt.Errorf("failed to decode station %s: %w", stationID, err)
	}

	return occupancy, true, nil
}

func (r *Redis) write(ctx context.Context, tx *redis.Tx, occupancy models.Occupancy) error {
	payload, err := json.Marshal(occupancy)
	if err != nil {
		return fmt.Errorf("failed to marshal occupancy: %w", err)
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(occupancy.StationID), payload, 0)

		return nil
	})

	return err
}

// transaction runs fn under WATCH key, restarting when a concurrent writer
// touched the key before EXEC.
func (r *Redis) transaction(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for range maxTxAttempts {
		err := r.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return fmt.Errorf("occupancy transaction on %s aborted after %d attempts: %w", key, maxTxAttempts, redis.TxFailedErr)
}
