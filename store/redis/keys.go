package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "stagepass"

// keyspace wraps the prefix in a hash tag, so every key of a store hashes to
// the same Redis Cluster slot. The Lua scripts touch index members and user
// sets they derive at run time, which is only legal within a single slot.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return keyspace{prefix: "{" + prefix + "}:"}
}

func (k keyspace) refresh(hash string) string { return k.prefix + "rt:" + hash }

func (k keyspace) userIndex(userID string) string { return k.prefix + "rtu:" + userID }

func (k keyspace) singleUse(hash string) string { return k.prefix + "su:" + hash }

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// scanKeys calls fn for every key matching pattern. A cluster client scans
// each master, since SCAN only walks the node it is sent to.
func scanKeys(ctx context.Context, client goredis.UniversalClient, pattern string, fn func(key string) error) error {
	scan := func(ctx context.Context, c goredis.Cmdable) error {
		iter := c.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := fn(iter.Val()); err != nil {
				return err
			}
		}
		return iter.Err()
	}

	if cluster, ok := client.(*goredis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return scan(ctx, node)
		})
	}
	return scan(ctx, client)
}
