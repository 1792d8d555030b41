package geo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/box3-delivery/internal/models"
)

// RedisIndex implements Index using Redis GEO commands.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key}
}

func (r *RedisIndex) Upsert(ctx context.Context, orderID uint64, c models.Coord) error {
	return r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: c.Lon, Latitude: c.Lat, Name: member(orderID)}).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, orderID uint64) error {
	return r.client.ZRem(ctx, r.key, member(orderID)).Err()
}

func (r *RedisIndex) Nearby(ctx context.Context, c models.Coord, radiusKm float64, limit int) ([]Hit, error) {
	res, err := r.client.GeoRadius(ctx, r.key, c.Lon, c.Lat, &redis.GeoRadiusQuery{Radius: radiusKm, Unit: "km", WithDist: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius %s: %w", r.key, err)
	}
	out := make([]Hit, 0, len(res))
	for _, g := range res {
		id, err := strconv.ParseUint(g.Name, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Hit{OrderID: id, DistanceKm: g.Dist})
	}
	return out, nil
}

func (r *RedisIndex) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisIndex) Close() error { return r.client.Close() }

func member(id uint64) string { return strconv.FormatUint(id, 10) }
