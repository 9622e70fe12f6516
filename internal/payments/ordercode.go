package payments

import (
	"math/rand/v2"
	"time"
)

// NewGatewayOrderCode builds the numeric order code PayOS requires: the last
// nine digits of the unix millisecond clock followed by three random digits.
// The result never exceeds twelve digits.
func NewGatewayOrderCode(now time.Time, intN func(n int) int) int64 {
	if intN == nil {
		intN = rand.IntN
	}
	code := (now.UnixMilli()%1_000_000_000)*1000 + int64(intN(1000))
	if code <= 0 {
		return 1
	}
	return code
}
