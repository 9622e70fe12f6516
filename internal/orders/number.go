package orders

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const orderNumberPrefix = "ORD"

// NumberGenerator produces candidate order numbers. Uniqueness is enforced by
// the orders_order_number_key constraint and retried on collision.
type NumberGenerator func() string

// FormatOrderNumber renders ORD<yyyymmdd><4 digits>.
func FormatOrderNumber(now time.Time, suffix int) string {
	return fmt.Sprintf("%s%s%04d", orderNumberPrefix, now.Format("20060102"), suffix%10000)
}

// NewNumberGenerator returns a generator driven by the given clock and random source.
func NewNumberGenerator(now func() time.Time, intN func(n int) int) NumberGenerator {
	if now == nil {
		now = time.Now
	}
	if intN == nil {
		intN = rand.IntN
	}
	return func() string {
		return FormatOrderNumber(now(), intN(10000))
	}
}
