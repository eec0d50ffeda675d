package gateway

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakenet/core/events"
)

func TestQuotaLimiterPrunesStaleEpochs(t *testing.T) {
	limiter := newQuotaLimiter(2)
	now := time.Unix(1_000_000, 0)
	limiter.nowFn = func() time.Time { return now }

	first := testHarnessAddr(0x01)
	second := testHarnessAddr(0x02)

	require.True(t, limiter.Allow(first))
	require.True(t, limiter.Allow(first))
	require.False(t, limiter.Allow(first))
	require.True(t, limiter.Allow(second))
	require.Len(t, limiter.usage, 2)

	// A new epoch resets the quota and drops every counter from the old one.
	now = now.Add(61 * time.Second)
	require.True(t, limiter.Allow(first))
	require.Len(t, limiter.usage, 1)
}

func TestIPRateLimiterThrottlesBurst(t *testing.T) {
	limiter := newIPRateLimiter(60)
	now := time.Unix(1_000_000, 0)
	limiter.nowFn = func() time.Time { return now }

	require.True(t, limiter.allow("10.0.0.1"))
	require.False(t, limiter.allow("10.0.0.1"))
	require.True(t, limiter.allow("10.0.0.2"))

	// One token per second at 60 requests per minute.
	now = now.Add(time.Second)
	require.True(t, limiter.allow("10.0.0.1"))
}

func TestIPRateLimiterPrunesIdleVisitors(t *testing.T) {
	limiter := newIPRateLimiter(60)
	now := time.Unix(1_000_000, 0)
	limiter.nowFn = func() time.Time { return now }

	require.True(t, limiter.allow("10.0.0.1"))
	now = now.Add(visitorIdleTTL + time.Minute)
	require.True(t, limiter.allow("10.0.0.2"))
	require.Len(t, limiter.visitors, 1)
}

func TestIPRateLimiterDisabledWhenUnconfigured(t *testing.T) {
	require.Nil(t, newIPRateLimiter(0))
}

type recordingEmitter struct {
	seen []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) { r.seen = append(r.seen, ev) }

func TestBufferedEmitterHoldsUntilFlush(t *testing.T) {
	inner := &recordingEmitter{}
	buffered := newBufferedEmitter(inner)

	buffered.Emit(events.StakeDeposited{User: testHarnessAddr(0x01), Amount: big.NewInt(5)})
	require.Empty(t, inner.seen)

	buffered.Flush()
	require.Len(t, inner.seen, 1)

	buffered.Emit(events.StakeWithdrawn{User: testHarnessAddr(0x01), Amount: big.NewInt(5)})
	buffered.Discard()
	buffered.Flush()
	require.Len(t, inner.seen, 1)
}

func testHarnessAddr(suffix byte) [20]byte {
	var addr [20]byte
	addr[19] = suffix
	return addr
}
