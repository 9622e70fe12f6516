package redis

import (
	"context"
	"time"
)

// windowScript counts a hit and arms the window TTL in one round trip, so a
// counter can never be left behind without an expiry.
const windowScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

// FixedWindowAllow counts one request against scope and reports whether it
// is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.store == nil {
		return false, 0, errNotInitialized
	}
	if window <= 0 {
		window = time.Minute
	}
	count, err := c.store.Eval(ctx, windowScript, []string{c.rateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func (c *Client) rateLimitKey(scope string) string {
	return c.key(rateLimitPrefix, scope)
}
