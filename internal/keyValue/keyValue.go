// Package keyValue is a TTL key-value cache backed by an in-process map
// in self-contained mode or by Redis otherwise. The HTTP middleware uses
// it to avoid hitting the database on every authenticated request.
package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type value struct {
	value   string
	expires time.Time
}

type Cache struct {
	mutex         sync.RWMutex
	hashmap       map[string]value
	sugar         *zap.SugaredLogger
	redisClient   *redis.Client
	selfContained bool
}

var redisCtx = context.Background()

func Setup(sugar *zap.SugaredLogger, redisClient *redis.Client, selfContained bool) *Cache {
	cache := &Cache{
		hashmap:       make(map[string]value),
		sugar:         sugar,
		redisClient:   redisClient,
		selfContained: selfContained,
	}

	if selfContained {
		go cache.evictExpiredKeys()
	}

	return cache
}

func (c *Cache) evictExpiredKeys() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		for key, v := range c.hashmap {
			if v.expires.Before(time.Now()) {
				delete(c.hashmap, key)
			}
		}
		c.mutex.Unlock()
	}
}

func (c *Cache) Get(key string) (string, error) {
	if c.selfContained {
		c.mutex.RLock()
		defer c.mutex.RUnlock()

		v := c.hashmap[key]
		if !v.expires.IsZero() && v.expires.Before(time.Now()) {
			return "", nil
		}
		return v.value, nil
	}

	result, err := c.redisClient.Get(redisCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return result, nil
}

func (c *Cache) Set(key string, val string, expires time.Duration) error {
	c.sugar.Debugf("Setting key [%s]", key)

	if c.selfContained {
		c.mutex.Lock()
		defer c.mutex.Unlock()

		c.hashmap[key] = value{val, time.Now().Add(expires)}
		return nil
	}

	_, err := c.redisClient.Set(redisCtx, key, val, expires).Result()
	return err
}

func (c *Cache) Delete(key string) error {
	c.sugar.Debugf("Deleting key [%s]", key)

	if c.selfContained {
		c.mutex.Lock()
		defer c.mutex.Unlock()

		delete(c.hashmap, key)
		return nil
	}

	return c.redisClient.Del(redisCtx, key).Err()
}
