// Package cache is the Cache Layer component: a namespaced key→bytes store
// over Redis with per-namespace TTLs, used by the Retriever (retrieval:*,
// embedding:*), the LLM Cluster (llm:*), and the Voice Session Manager
// (tts:*). It is grounded on the redis/go-redis/v9 client already wired
// into the corpus's stream/registry code, narrowed to the
// Get/Set/Del/TTL surface this platform actually needs.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Namespace groups keys that are invalidated and TTL'd together. The
// platform's namespaces are fixed: retrieval, embedding, llm, tts.
type Namespace string

const (
	NamespaceRetrieval Namespace = "retrieval"
	NamespaceEmbedding Namespace = "embedding"
	NamespaceLLM       Namespace = "llm"
	NamespaceTTS       Namespace = "tts"
)

// Cache is a namespaced, per-project key→bytes store. No operation can
// read or write across namespaces or projects by construction: every key
// is built from Namespace/project/localKey by this package, never passed
// through raw.
type Cache struct {
	rdb *redis.Client
}

// New wraps an already-connected Redis client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func buildKey(ns Namespace, projectID, key string) string {
	return string(ns) + ":" + projectID + ":" + key
}

// Get fetches a cached value, returning ErrMiss if it is absent or
// expired.
func (c *Cache) Get(ctx context.Context, ns Namespace, projectID, key string) ([]byte, error) {
	v, err := c.rdb.Get(ctx, buildKey(ns, projectID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return v, nil
}

// Set writes a value with the given TTL. A zero TTL means "never expire",
// used sparingly since every namespace in this platform is expected to
// carry a TTL from configuration.
func (c *Cache) Set(ctx context.Context, ns Namespace, projectID, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, buildKey(ns, projectID, key), value, ttl).Err()
}

// Delete removes a single key.
func (c *Cache) Delete(ctx context.Context, ns Namespace, projectID, key string) error {
	return c.rdb.Del(ctx, buildKey(ns, projectID, key)).Err()
}

// InvalidateProjectNamespace drops every key in a namespace for a project,
// used when a project's indices are rebuilt and its retrieval cache must
// not serve stale results.
func (c *Cache) InvalidateProjectNamespace(ctx context.Context, ns Namespace, projectID string) error {
	pattern := string(ns) + ":" + projectID + ":*"
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
