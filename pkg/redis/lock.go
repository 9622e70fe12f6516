package redis

import (
	"context"
	"time"
)

// releaseScript deletes the lock only while it still holds owner.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// AcquireLock takes the named lock for ttl. It returns false when another
// owner holds it.
func (c *Client) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, c.lockKey(name), owner, ttl)
}

// ReleaseLock frees the named lock if owner still holds it. A lock that
// expired and was taken by another worker is left alone.
func (c *Client) ReleaseLock(ctx context.Context, name, owner string) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := c.store.Eval(ctx, releaseScript, []string{c.lockKey(name)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) lockKey(name string) string {
	return c.key(lockPrefix, name)
}
