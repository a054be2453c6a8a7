package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/resilience"
)

func TestBreakerMetricsFollowTransitions(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	breaker := resilience.NewBreaker(1, 0.5, 20*time.Millisecond).WithTarget("mpesa")
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	state := testutil.ToFloat64(resilience.BreakerState.WithLabelValues("mpesa"))
	require.Equal(t, 1.0, state)

	require.Eventually(t, func() bool {
		return breaker.Allow(ctx)
	}, 100*time.Millisecond, 5*time.Millisecond)

	state = testutil.ToFloat64(resilience.BreakerState.WithLabelValues("mpesa"))
	require.Equal(t, 2.0, state)

	breaker.Report(ctx, true)

	state = testutil.ToFloat64(resilience.BreakerState.WithLabelValues("mpesa"))
	require.Equal(t, 0.0, state)

	opened := testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("mpesa"))
	require.Equal(t, 1.0, opened)

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("mpesa", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("mpesa", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("mpesa", "half_open", "closed")))
}
