package checkout

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberPrefix = "KR"

// newOrderNumber builds a human-quotable order reference: prefix, order
// date, and a random uppercase suffix. The suffix comes from a fresh UUID
// rather than the clock, so two checkouts in the same instant cannot
// collide; the unique index on order_number backstops the residual chance.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return orderNumberPrefix + now.UTC().Format("20060102") + suffix
}
