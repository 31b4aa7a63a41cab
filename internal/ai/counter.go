package ai

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"taskhive/internal/activity"
)

// taskCounter tracks how many assistant operations have targeted each task.
// Counts live in an LRU for fast reads; on a miss (restart, eviction) the
// activity log is the durable source.
type taskCounter struct {
	cache    *lru.Cache[string, int]
	activity *activity.Store
}

func newTaskCounter(activityStore *activity.Store, size int) (*taskCounter, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, err
	}
	return &taskCounter{cache: cache, activity: activityStore}, nil
}

func counterKey(userID, taskID string) string {
	return fmt.Sprintf("%s:%s", userID, taskID)
}

// count returns the current tally, falling back to the activity log when
// the cache has no entry.
func (c *taskCounter) count(ctx context.Context, userID, taskID string) (int, error) {
	key := counterKey(userID, taskID)
	if n, ok := c.cache.Get(key); ok {
		return n, nil
	}
	n, err := c.activity.CountForTask(ctx, userID, taskID, "ai")
	if err != nil {
		return 0, err
	}
	c.cache.Add(key, n)
	return n, nil
}

// increment bumps the tally after a successful assistant operation and
// returns the new value.
func (c *taskCounter) increment(ctx context.Context, userID, taskID string) (int, error) {
	n, err := c.count(ctx, userID, taskID)
	if err != nil {
		return 0, err
	}
	n++
	c.cache.Add(counterKey(userID, taskID), n)
	return n, nil
}
